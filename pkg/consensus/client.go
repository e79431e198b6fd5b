package consensus

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/wireerr"
)

// rpcTimeout is the default consensus RPC deadline spec.md §6 names.
const rpcTimeout = 10 * time.Second

// Client dials another node's raft HTTP surface (internal/httpserver's
// /raft/{append_entries,install_snapshot,vote} handlers), the way
// cback.go's svc.Request builds one *http.Request per call and hands it to
// a bare *http.Client. A non-2xx response is a network error (spec.md §6),
// surfaced as wireerr.NodeUnreachable so the caller's retry classification
// (§7) applies uniformly.
type Client struct {
	hc *http.Client
}

// NewClient returns a Client with the spec's default RPC timeout.
func NewClient() *Client {
	return &Client{hc: &http.Client{Timeout: rpcTimeout}}
}

func (c *Client) post(ctx context.Context, addr string, node vfsid.NodeID, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return wireerr.Serialization(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+path, bytes.NewReader(buf))
	if err != nil {
		return wireerr.Internal("consensus: build request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return wireerr.NodeUnreachable(node)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return wireerr.NodeUnreachable(node)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return wireerr.Serialization(err.Error())
	}
	return nil
}

// AppendEntries posts req to node at addr's /raft/append_entries endpoint.
func (c *Client) AppendEntries(ctx context.Context, addr string, node vfsid.NodeID, req AppendEntriesRequest) (AppendEntriesResponse, error) {
	var resp AppendEntriesResponse
	err := c.post(ctx, addr, node, "/raft/append_entries", req, &resp)
	return resp, err
}

// InstallSnapshot posts req to node at addr's /raft/install_snapshot endpoint.
func (c *Client) InstallSnapshot(ctx context.Context, addr string, node vfsid.NodeID, req InstallSnapshotRequest) (InstallSnapshotResponse, error) {
	var resp InstallSnapshotResponse
	err := c.post(ctx, addr, node, "/raft/install_snapshot", req, &resp)
	return resp, err
}

// Vote posts req to node at addr's /raft/vote endpoint.
func (c *Client) Vote(ctx context.Context, addr string, node vfsid.NodeID, req VoteRequest) (VoteResponse, error) {
	var resp VoteResponse
	err := c.post(ctx, addr, node, "/raft/vote", req, &resp)
	return resp, err
}
