package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vraftls/vraftls/pkg/lspproxy"
	"github.com/vraftls/vraftls/pkg/router"
	"github.com/vraftls/vraftls/pkg/vfs"
	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vfspath"
)

func frame(body []byte) []byte {
	return []byte(fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body))
}

func TestServerDispatchesInitializeRequest(t *testing.T) {
	sm := vfs.New(vfsid.GroupID(1), fixedClock{ms: 1})
	rtr, err := router.New()
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}
	defer rtr.Close()
	gw := New(lspproxy.NewPool(zerolog.Nop()), rtr, func(vfspath.Path) *vfs.StateMachine { return sm }, zerolog.Nop())

	reqBody, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "initialize"})
	var in bytes.Buffer
	in.Write(frame(reqBody))
	var out bytes.Buffer

	srv := NewServer(gw, &in, &out, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Serve(ctx); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if !bytes.Contains(out.Bytes(), []byte("Content-Length")) {
		t.Fatalf("expected a framed response, got %q", out.String())
	}
	if !bytes.Contains(out.Bytes(), []byte("serverInfo")) {
		t.Fatalf("expected initialize result in response, got %q", out.String())
	}
}

func TestServerUnknownMethodReturnsError(t *testing.T) {
	sm := vfs.New(vfsid.GroupID(1), fixedClock{ms: 1})
	rtr, err := router.New()
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}
	defer rtr.Close()
	gw := New(lspproxy.NewPool(zerolog.Nop()), rtr, func(vfspath.Path) *vfs.StateMachine { return sm }, zerolog.Nop())

	reqBody, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: json.RawMessage("7"), Method: "workspace/bogus"})
	var in bytes.Buffer
	in.Write(frame(reqBody))
	var out bytes.Buffer

	srv := NewServer(gw, &in, &out, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Serve(ctx); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte(`"error"`)) {
		t.Fatalf("expected an error response, got %q", out.String())
	}
}

func TestServerReturnsOnCleanEOF(t *testing.T) {
	sm := vfs.New(vfsid.GroupID(1), fixedClock{ms: 1})
	rtr, err := router.New()
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}
	defer rtr.Close()
	gw := New(lspproxy.NewPool(zerolog.Nop()), rtr, func(vfspath.Path) *vfs.StateMachine { return sm }, zerolog.Nop())

	var in, out bytes.Buffer
	srv := NewServer(gw, &in, &out, zerolog.Nop())
	if err := srv.Serve(context.Background()); err != nil {
		t.Fatalf("expected clean EOF to return nil, got %v", err)
	}
}
