package lspproxy

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)

	if err := writeFrame(&buf, body); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	got, err := readFrame(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("round trip mismatch: got %s want %s", got, body)
	}
}

func TestReadFrameMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	first := []byte(`{"a":1}`)
	second := []byte(`{"b":2}`)
	writeFrame(&buf, first)
	writeFrame(&buf, second)

	r := bufio.NewReader(&buf)
	got1, err := readFrame(r)
	if err != nil || !bytes.Equal(got1, first) {
		t.Fatalf("first frame: got %s err %v", got1, err)
	}
	got2, err := readFrame(r)
	if err != nil || !bytes.Equal(got2, second) {
		t.Fatalf("second frame: got %s err %v", got2, err)
	}
}

func TestReadFrameEOF(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader(nil))
	if _, err := readFrame(r); err != io.EOF {
		t.Fatalf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestReadFrameMissingContentLength(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("X-Custom: 1\r\n\r\n"))
	if _, err := readFrame(r); err == nil {
		t.Fatal("expected error for missing Content-Length")
	}
}

func TestPoolUnsupportedLanguage(t *testing.T) {
	pool := NewPool(zerolog.New(io.Discard))
	if _, err := pool.GetOrSpawn("cobol"); err == nil {
		t.Fatal("expected UnsupportedLanguage error")
	}
}
