package consensus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vraftls/vraftls/pkg/vfsid"
)

func TestClientVoteRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/raft/vote" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req VoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(VoteResponse{Term: req.Term, Granted: true})
	}))
	defer srv.Close()

	c := NewClient()
	addr := strings.TrimPrefix(srv.URL, "http://")
	resp, err := c.Vote(context.Background(), addr, vfsid.NodeID(1), VoteRequest{GroupID: 1, Term: 5, CandidateID: 9})
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if !resp.Granted || resp.Term != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClientNonTwoxxIsNodeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient()
	addr := strings.TrimPrefix(srv.URL, "http://")
	_, err := c.AppendEntries(context.Background(), addr, vfsid.NodeID(2), AppendEntriesRequest{GroupID: 1})
	if err == nil {
		t.Fatal("expected error")
	}
}
