// Package httpserver exposes the consensus RPC surface spec.md §6 names
// (`append_entries`, `install_snapshot`, `vote`) as JSON-over-HTTP, posted
// by a peer as `http://{peer}/raft/{method}`. Grounded on reva's go-chi
// usage in internal/http/services/cback/cback.go: a *chi.Mux built once at
// construction time, handlers decoding their body into the matching
// pkg/consensus wire type and writing back JSON.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/vraftls/vraftls/pkg/consensus"
	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vmetrics"
	"github.com/vraftls/vraftls/pkg/wireerr"
)

// GroupLookup resolves a group id to the locally-hosted *consensus.Group
// serving it, or false if this node does not host that group.
type GroupLookup func(vfsid.GroupID) (*consensus.Group, bool)

// Server is the node-to-node raft HTTP surface. It holds no state of its
// own beyond the group lookup; each request is handled against whichever
// *consensus.Group is hosting the targeted group id at the time.
type Server struct {
	router *chi.Mux
	lookup GroupLookup
	logger zerolog.Logger
}

// CORSConfig governs cross-origin access to the optional management surface
// (the /metrics endpoint, primarily polled from an operator's browser rather
// than from another raft peer).
type CORSConfig struct {
	AllowedOrigins []string
}

// New builds a Server whose /raft/{method} routes dispatch through lookup.
func New(lookup GroupLookup, corsConf CORSConfig, logger zerolog.Logger) *Server {
	s := &Server{router: chi.NewRouter(), lookup: lookup, logger: logger}
	s.router.Use(cors.New(cors.Options{AllowedOrigins: corsConf.AllowedOrigins}).Handler)
	s.router.Post("/raft/append_entries", s.handleAppendEntries)
	s.router.Post("/raft/install_snapshot", s.handleInstallSnapshot)
	s.router.Post("/raft/vote", s.handleVote)
	s.router.Method(http.MethodGet, "/metrics", vmetrics.Handler())
	return s
}

// Handler returns the server's http.Handler, for mounting under a listener.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleAppendEntries(w http.ResponseWriter, r *http.Request) {
	var req consensus.AppendEntriesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	group, ok := s.lookup(req.GroupID)
	if !ok {
		writeError(w, s.logger, wireerr.GroupNotFound(uint64(req.GroupID)))
		return
	}

	entries := req.DecodeEntries()
	if len(entries) == 0 {
		writeJSON(w, consensus.AppendEntriesResponse{Term: req.Term, Success: true})
		return
	}

	if _, err := group.ProposeBatch(entries); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, consensus.AppendEntriesResponse{Term: req.Term, Success: true})
}

func (s *Server) handleInstallSnapshot(w http.ResponseWriter, r *http.Request) {
	var req consensus.InstallSnapshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	group, ok := s.lookup(req.GroupID)
	if !ok {
		writeError(w, s.logger, wireerr.GroupNotFound(uint64(req.GroupID)))
		return
	}

	snap, err := consensus.DecodeSnapshotBytes(req.Data)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := group.InstallSnapshot(snap); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, consensus.InstallSnapshotResponse{Term: req.Term})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req consensus.VoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	group, ok := s.lookup(req.GroupID)
	if !ok {
		writeError(w, s.logger, wireerr.GroupNotFound(uint64(req.GroupID)))
		return
	}

	granted, err := group.Vote(req.Term, req.CandidateID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, consensus.VoteResponse{Term: req.Term, Granted: granted})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "error: invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	logger.Warn().Err(err).Msg("raft rpc failed")
	status := http.StatusInternalServerError
	if wireerr.Retriable(err) {
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
