// Package lspproxy implements the gateway's half of JSON-RPC-over-stdio
// framing and the per-language analyzer process pool: one child process per
// language (rust-analyzer, typescript-language-server, gopls,
// pyright-langserver), spawned on demand and reused across requests
// (spec.md §4.5, §4.6).
package lspproxy

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vraftls/vraftls/pkg/wireerr"
)

// writeFrame encodes body as a single `Content-Length: N\r\n\r\n<body>`
// frame, the wire format every analyzer speaks over stdio (spec.md §4.5).
func writeFrame(w io.Writer, body []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	if _, err := io.WriteString(w, header); err != nil {
		return wireerr.Internal("lspproxy: write header: " + err.Error())
	}
	if _, err := w.Write(body); err != nil {
		return wireerr.Internal("lspproxy: write body: " + err.Error())
	}
	return nil
}

// readFrame reads one `Content-Length` framed message from r. It returns
// io.EOF unwrapped when the stream closes cleanly between frames, so
// callers can distinguish "process exited" from a framing error.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var contentLength = -1

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
				return nil, wireerr.Serialization("lspproxy: bad Content-Length: " + value)
			}
			contentLength = n
		}
	}

	if contentLength < 0 {
		return nil, wireerr.Serialization("lspproxy: frame missing Content-Length")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// rpcMessage is the shape common to JSON-RPC requests, responses and
// notifications exchanged with an analyzer.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an analyzer's JSON-RPC error object, exported so a caller
// (pkg/gateway's dispatch, in particular) can type-assert Proxy.Request's
// returned error back to the analyzer's original code instead of
// collapsing every analyzer failure to one generic code.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("analyzer error %d: %s", e.Code, e.Message)
}

func encodeMessage(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, wireerr.Serialization(err.Error())
	}
	// json.Encoder.Encode appends a trailing newline; the frame's
	// Content-Length must match the body exactly.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
