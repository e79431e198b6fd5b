package lspproxy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"

	"github.com/vraftls/vraftls/pkg/tracing"
	"github.com/vraftls/vraftls/pkg/wireerr"
)

// requestTimeout bounds how long a request waits for a reply before the
// analyzer is presumed stuck (spec.md §4.5).
const requestTimeout = 30 * time.Second

// languageServerCommand is the static spawn table: one binary per language
// id, matching the editor-language-id/extension fallback table in
// pkg/vfspath (spec.md §4.6).
var languageServerCommand = map[string]string{
	"rust":       "rust-analyzer",
	"typescript": "typescript-language-server",
	"javascript": "typescript-language-server",
	"go":         "gopls",
	"python":     "pyright-langserver",
}

// commandArgs supplies the --stdio flag typescript-language-server and
// pyright-langserver require to speak JSON-RPC over stdio; rust-analyzer
// and gopls default to stdio and need no flag.
var commandArgs = map[string][]string{
	"typescript-language-server": {"--stdio"},
	"pyright-langserver":         {"--stdio"},
}

// Proxy manages one analyzer child process for a single language: framing
// requests/notifications onto its stdin, and demultiplexing replies read
// off its stdout by a dedicated reader goroutine onto per-request channels
// (spec.md §4.5).
type Proxy struct {
	language string
	cmd      *exec.Cmd
	stdin    io.WriteCloser

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan *rpcMessage

	nextID int64

	done     chan struct{}
	doneOnce sync.Once
	doneErr  error

	logger zerolog.Logger
}

// Spawn starts the analyzer process for lang and begins reading its
// replies. It fails with wireerr.UnsupportedLanguage if lang has no entry
// in the spawn table.
func Spawn(lang string, logger zerolog.Logger) (*Proxy, error) {
	bin, ok := languageServerCommand[lang]
	if !ok {
		return nil, wireerr.UnsupportedLanguage(lang)
	}

	cmd := exec.Command(bin, commandArgs[bin]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, wireerr.LanguageServerNotRunning(lang + ": stdin pipe: " + err.Error())
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, wireerr.LanguageServerNotRunning(lang + ": stdout pipe: " + err.Error())
	}

	if err := cmd.Start(); err != nil {
		return nil, wireerr.LanguageServerNotRunning(lang + ": spawn " + bin + ": " + err.Error())
	}

	p := &Proxy{
		language: lang,
		cmd:      cmd,
		stdin:    stdin,
		pending:  make(map[int64]chan *rpcMessage),
		nextID:   1,
		done:     make(chan struct{}),
		logger:   logger.With().Str("language", lang).Str("analyzer", bin).Logger(),
	}

	go p.readLoop(stdout)

	p.logger.Info().Msg("spawned language server")
	return p, nil
}

// Language returns the language id this proxy was spawned for.
func (p *Proxy) Language() string { return p.language }

func (p *Proxy) readLoop(stdout io.ReadCloser) {
	reader := bufio.NewReader(stdout)
	for {
		body, err := readFrame(reader)
		if err != nil {
			p.fail(err)
			return
		}

		var msg rpcMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			p.logger.Warn().Err(err).Msg("discarding malformed analyzer frame")
			continue
		}

		if msg.ID == nil {
			// Notification from the analyzer (e.g. textDocument/publishDiagnostics).
			// The proxy has no sink to forward notifications to, so they are
			// dropped.
			continue
		}

		p.pendingMu.Lock()
		ch, ok := p.pending[*msg.ID]
		if ok {
			delete(p.pending, *msg.ID)
		}
		p.pendingMu.Unlock()

		if ok {
			ch <- &msg
		}
	}
}

// fail marks the proxy as dead and fails every pending request.
func (p *Proxy) fail(err error) {
	p.doneOnce.Do(func() {
		p.doneErr = wireerr.LanguageServerNotRunning(p.language + ": " + err.Error())
		close(p.done)

		p.pendingMu.Lock()
		pending := p.pending
		p.pending = make(map[int64]chan *rpcMessage)
		p.pendingMu.Unlock()

		for _, ch := range pending {
			close(ch)
		}
	})
}

func (p *Proxy) writeMessage(msg rpcMessage) error {
	body, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return writeFrame(p.stdin, body)
}

// Request sends a JSON-RPC request and blocks until a reply arrives, ctx is
// canceled, or requestTimeout elapses.
func (p *Proxy) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, span := tracing.Start(ctx, "lspproxy", method)
	defer span.End()

	select {
	case <-p.done:
		return nil, p.doneErr
	default:
	}

	paramsRaw, err := json.Marshal(params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, wireerr.Serialization(err.Error())
	}

	id := atomic.AddInt64(&p.nextID, 1) - 1
	ch := make(chan *rpcMessage, 1)

	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()

	if err := p.writeMessage(rpcMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: paramsRaw}); err != nil {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, p.doneErr
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-timeoutCtx.Done():
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
		return nil, wireerr.Timeout(method)
	case <-p.done:
		return nil, p.doneErr
	}
}

// Notify sends a JSON-RPC notification; no reply is expected.
func (p *Proxy) Notify(method string, params any) error {
	select {
	case <-p.done:
		return p.doneErr
	default:
	}
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return wireerr.Serialization(err.Error())
	}
	return p.writeMessage(rpcMessage{JSONRPC: "2.0", Method: method, Params: paramsRaw})
}

// Shutdown runs the standard LSP shutdown/exit sequence, then kills the
// process if it has not exited on its own (spec.md §4.5).
func (p *Proxy) Shutdown(ctx context.Context) error {
	_, reqErr := p.Request(ctx, "shutdown", struct{}{})
	_ = p.Notify("exit", struct{}{})

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = p.cmd.Process.Kill()
		<-done
	}

	p.fail(errors.New("shut down"))
	if reqErr != nil {
		return reqErr
	}
	return nil
}
