// Package vfsid defines the opaque, fixed-width identifiers used throughout
// the gateway: file ids, node ids, consensus group ids, client ids and
// monotonic file versions. It also derives the 64-bit partition key used to
// map a path to the consensus group that owns it.
package vfsid

import "github.com/cespare/xxhash/v2"

// FileID is a 64-bit opaque identifier, minted by the owning group's state
// machine on create. It is stable across renames and never reused within a
// group.
type FileID uint64

// NodeID is a 64-bit cluster-unique identifier for a gateway/consensus node.
type NodeID uint64

// GroupID is a 64-bit identifier for a consensus group. GroupZero is
// reserved for the metadata group and never owns user files (spec.md §3,
// Open Question in §9 — the metadata group's own schema is an external
// collaborator).
type GroupID uint64

// GroupZero is the reserved metadata group id.
const GroupZero GroupID = 0

// IsReserved reports whether g is the reserved metadata group.
func (g GroupID) IsReserved() bool { return g == GroupZero }

// FileVersion is a 64-bit monotonic counter, starting at 0 for a newly
// created file and incremented by 1 on every content mutation. Rename does
// not increment it.
type FileVersion uint64

// Next returns the version following v, i.e. the version after a content mutation.
func (v FileVersion) Next() FileVersion { return v + 1 }

// LogIndex is the monotonically increasing 64-bit index of a log entry
// within the durable log store.
type LogIndex uint64

// LogID pairs a term with an index; entries are totally ordered by index
// within a term and by term across terms (GLOSSARY).
type LogID struct {
	Term  uint64
	Index LogIndex
}

// Less reports whether id sorts before other by (term, then index).
func (id LogID) Less(other LogID) bool {
	if id.Term != other.Term {
		return id.Term < other.Term
	}
	return id.Index < other.Index
}

// ClientID isolates multi-tenant workspaces sharing one group (spec.md §3).
type ClientID string

// PartitionKey hashes a path's original textual form into the 64-bit key
// used to map files to consensus groups. The hash is content-free and
// non-cryptographic (spec.md §3).
func PartitionKey(original string) uint64 {
	return xxhash.Sum64String(original)
}

// Checksum computes the non-cryptographic 64-bit content hash stored on a
// VfsFile. It must be recomputed on every content mutation (spec.md §3).
func Checksum(content []byte) uint64 {
	return xxhash.Sum64(content)
}
