package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vraftls/vraftls/pkg/lspproxy"
	"github.com/vraftls/vraftls/pkg/vmetrics"
	"github.com/vraftls/vraftls/pkg/wireerr"
)

// rpcRequest is the shape of an inbound JSON-RPC request or notification
// from the editor. Requests carry an ID; notifications omit it.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorObject `json:"error,omitempty"`
}

type rpcErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server drives the editor-facing JSON-RPC loop over an arbitrary
// ReadWriter (stdio in the common case): it reads Content-Length framed
// requests, dispatches each by method name to the Gateway, and writes
// framed responses back, serializing all writes behind one mutex so
// concurrently-handled requests never interleave frames (spec.md §4.6).
type Server struct {
	gw     *Gateway
	reader *bufio.Reader
	writer io.Writer
	wmu    sync.Mutex
	logger zerolog.Logger
}

// NewServer wraps gw to serve the Content-Length framed JSON-RPC protocol
// over r/w.
func NewServer(gw *Gateway, r io.Reader, w io.Writer, logger zerolog.Logger) *Server {
	return &Server{gw: gw, reader: bufio.NewReader(r), writer: w, logger: logger}
}

// Serve reads and dispatches requests until the stream closes or ctx is
// canceled. Each request is handled in its own goroutine so a slow
// request/response round trip to an analyzer never blocks unrelated
// notifications (spec.md §4.6).
func (s *Server) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		body, err := readFrame(s.reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		var req rpcRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.logger.Warn().Err(err).Msg("malformed json-rpc frame")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dispatch(ctx, req)
		}()
	}
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) {
	start := time.Now()
	result, rpcErr := s.handle(ctx, req.Method, req.Params)
	vmetrics.GatewayRequestLatencySeconds.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if rpcErr != nil {
		vmetrics.GatewayRequestsTotal.WithLabelValues(req.Method, "error").Inc()
	} else {
		vmetrics.GatewayRequestsTotal.WithLabelValues(req.Method, "ok").Inc()
	}

	if len(req.ID) == 0 {
		// Notification: no reply expected, errors are only logged.
		if rpcErr != nil {
			s.logger.Warn().Err(rpcErr).Str("method", req.Method).Msg("notification handler failed")
		}
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = &rpcErrorObject{Code: rpcErrorCode(rpcErr), Message: rpcErr.Error()}
	} else {
		resp.Result = result
	}
	if err := s.writeMessage(resp); err != nil {
		s.logger.Error().Err(err).Msg("write response")
	}
}

// handle routes one method to the matching Gateway call, marshaling params
// in and the result out. Unknown methods return a "method not found" error,
// which is reported with the generic internal-error code -32603.
func (s *Server) handle(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "initialize":
		var p InitializeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		result, err := s.gw.Initialize(ctx, p)
		if err != nil {
			return nil, err
		}
		return marshal(result)

	case "initialized":
		return marshal(nil)

	case "shutdown":
		if err := s.gw.Shutdown(ctx); err != nil {
			return nil, err
		}
		return marshal(nil)

	case "textDocument/didOpen":
		var p DidOpenTextDocumentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		s.gw.DidOpen(ctx, p)
		return nil, nil

	case "textDocument/didChange":
		var p DidChangeTextDocumentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		s.gw.DidChange(ctx, p)
		return nil, nil

	case "textDocument/didClose":
		var p DidCloseTextDocumentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		s.gw.DidClose(ctx, p)
		return nil, nil

	case "textDocument/didSave":
		var p DidSaveTextDocumentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		s.gw.DidSave(ctx, p)
		return nil, nil

	case "textDocument/completion":
		var p CompletionParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		return s.gw.Completion(ctx, p)

	case "textDocument/hover":
		var p TextDocumentPositionParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		return s.gw.Hover(ctx, p)

	case "textDocument/definition":
		var p TextDocumentPositionParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		return s.gw.Definition(ctx, p)

	case "textDocument/references":
		var p ReferenceParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		return s.gw.References(ctx, p)

	case "textDocument/documentSymbol":
		var p DocumentSymbolParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		return s.gw.DocumentSymbol(ctx, p)

	case "textDocument/formatting":
		var p DocumentFormattingParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		return s.gw.Formatting(ctx, p)

	case "textDocument/rename":
		var p RenameParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		return s.gw.Rename(ctx, p)

	case "textDocument/codeAction":
		var p CodeActionParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		return s.gw.CodeAction(ctx, p)

	case "workspace/symbol":
		var p WorkspaceSymbolParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		return s.gw.WorkspaceSymbol(ctx, p)

	case "workspace/diagnostic":
		var p WorkspaceDiagnosticParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		return s.gw.WorkspaceDiagnostic(ctx, p)

	case "exit":
		return nil, nil

	default:
		return nil, fmt.Errorf("method not found: %s", method)
	}
}

// rpcErrorCode recovers the analyzer's own JSON-RPC error code when err
// came straight from an analyzer round trip (lspproxy.RPCError), and falls
// back to the generic JSON-RPC "internal error" code otherwise (a VFS/
// router error, a timeout, a decode failure, ...).
func rpcErrorCode(err error) int {
	var analyzerErr *lspproxy.RPCError
	if errors.As(err, &analyzerErr) {
		return analyzerErr.Code
	}
	return -32603
}

func marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, wireerr.Serialization(err.Error())
	}
	return b, nil
}

func (s *Server) writeMessage(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return wireerr.Serialization(err.Error())
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	if _, err := io.WriteString(s.writer, header); err != nil {
		return wireerr.Internal("gateway: write header: " + err.Error())
	}
	if _, err := s.writer.Write(body); err != nil {
		return wireerr.Internal("gateway: write body: " + err.Error())
	}
	return nil
}

// readFrame reads one `Content-Length` framed message, mirroring
// pkg/lspproxy's analyzer-facing framing (spec.md §4.5) on the
// editor-facing side of the gateway.
func readFrame(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		name, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, wireerr.Serialization("gateway: bad Content-Length: " + value)
			}
			contentLength = n
		}
	}
	if contentLength < 0 {
		return nil, wireerr.Serialization("gateway: frame missing Content-Length")
	}
	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
