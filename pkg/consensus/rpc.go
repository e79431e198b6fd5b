package consensus

import (
	"github.com/vraftls/vraftls/pkg/vfs"
	"github.com/vraftls/vraftls/pkg/vfsid"
)

// This file defines the JSON wire shapes for the three consensus RPC
// methods spec.md §6 names (`append_entries`, `install_snapshot`, `vote`),
// posted as `http://{peer}/raft/{method}`. They reuse storedEntry/
// storedCommand/storedPath from codec.go (which already strip vfspath.Path
// down to its exported textual form) so the durable and wire encodings stay
// in lockstep; only the outer envelope and byte format (JSON here, msgpack
// on disk) differ.

// WireEntry is the JSON form of a vfs.LogEntry exchanged over the raft RPC
// surface.
type WireEntry struct {
	Term    uint64
	Index   uint64
	Kind    vfs.EntryKind
	Members []vfsid.NodeID
	Command storedCommand
}

func encodeWireEntry(e vfs.LogEntry) WireEntry {
	s := encodeEntry(e)
	return WireEntry{Term: s.Term, Index: s.Index, Kind: s.Kind, Members: s.Members, Command: s.Command}
}

func decodeWireEntry(w WireEntry) vfs.LogEntry {
	return decodeEntry(storedEntry{Term: w.Term, Index: w.Index, Kind: w.Kind, Members: w.Members, Command: w.Command})
}

// AppendEntriesRequest carries the entries a leader has decided for group
// down to a replica (spec.md §6). This transport layer does not itself
// decide which entries to send or when to retry; it assumes the caller
// already knows it is (or believes it is) talking to the current term's
// leader stream.
type AppendEntriesRequest struct {
	GroupID      vfsid.GroupID
	Term         uint64
	Entries      []WireEntry
	LeaderCommit uint64
}

// AppendEntriesResponse reports whether the entries were durably applied.
type AppendEntriesResponse struct {
	Term    uint64
	Success bool
}

// DecodeEntries decodes req's wire entries back into vfs.LogEntry values.
func (req AppendEntriesRequest) DecodeEntries() []vfs.LogEntry {
	out := make([]vfs.LogEntry, len(req.Entries))
	for i, e := range req.Entries {
		out[i] = decodeWireEntry(e)
	}
	return out
}

// EncodeAppendEntries builds the wire request for entries destined for
// group at term.
func EncodeAppendEntries(group vfsid.GroupID, term uint64, entries []vfs.LogEntry, leaderCommit uint64) AppendEntriesRequest {
	wire := make([]WireEntry, len(entries))
	for i, e := range entries {
		wire[i] = encodeWireEntry(e)
	}
	return AppendEntriesRequest{GroupID: group, Term: term, Entries: wire, LeaderCommit: leaderCommit}
}

// VoteRequest asks a peer to cast (or refuse) a ballot for CandidateID in
// Term (spec.md §6).
type VoteRequest struct {
	GroupID     vfsid.GroupID
	Term        uint64
	CandidateID vfsid.NodeID
}

// VoteResponse reports the peer's ballot.
type VoteResponse struct {
	Term    uint64
	Granted bool
}

// InstallSnapshotRequest carries a full encoded snapshot for group. The
// underlying transport is a single HTTP POST rather than a chunked stream
// (spec.md §4.3's chunked transfer is the wire-level concern of a real
// network transport; this payload is the snapshot a completed transfer
// yields, ready for Group.InstallSnapshot).
type InstallSnapshotRequest struct {
	GroupID vfsid.GroupID
	Term    uint64
	Data    []byte
}

// InstallSnapshotResponse acknowledges receipt.
type InstallSnapshotResponse struct {
	Term uint64
}
