package consensus

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vraftls/vraftls/pkg/vfs"
	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vfspath"
)

// storedPath is the wire form of a vfspath.Path: Path keeps its fields
// unexported so callers can't construct one that skips normalization, which
// means the consensus layer serializes the textual form and re-normalizes
// on decode rather than reflecting over Path directly.
type storedPath struct {
	Original  string
	ClientID  string
	HasClient bool
}

func encodePath(p vfspath.Path) storedPath {
	cid, ok := p.ClientID()
	return storedPath{Original: p.Original(), ClientID: string(cid), HasClient: ok}
}

func decodePath(s storedPath) vfspath.Path {
	if s.HasClient {
		return vfspath.WithClient(s.Original, vfsid.ClientID(s.ClientID))
	}
	return vfspath.New(s.Original)
}

type storedBatchOp struct {
	Kind    vfs.BatchOpKind
	Path    storedPath
	Content []byte
	FileID  vfsid.FileID
}

type storedCommand struct {
	Kind               vfs.CommandKind
	Path               storedPath
	Content            []byte
	FileID             vfsid.FileID
	ExpectedVersion    vfsid.FileVersion
	HasExpectedVersion bool
	NewPath            storedPath
	Ops                []storedBatchOp
	InvalidateIDs      []vfsid.FileID
}

func encodeCommand(c vfs.Command) storedCommand {
	ops := make([]storedBatchOp, len(c.Ops))
	for i, op := range c.Ops {
		ops[i] = storedBatchOp{Kind: op.Kind, Path: encodePath(op.Path), Content: op.Content, FileID: op.FileID}
	}
	return storedCommand{
		Kind:               c.Kind,
		Path:               encodePath(c.Path),
		Content:            c.Content,
		FileID:             c.FileID,
		ExpectedVersion:    c.ExpectedVersion,
		HasExpectedVersion: c.HasExpectedVersion,
		NewPath:            encodePath(c.NewPath),
		Ops:                ops,
		InvalidateIDs:      c.InvalidateIDs,
	}
}

func decodeCommand(s storedCommand) vfs.Command {
	ops := make([]vfs.BatchOp, len(s.Ops))
	for i, op := range s.Ops {
		ops[i] = vfs.BatchOp{Kind: op.Kind, Path: decodePath(op.Path), Content: op.Content, FileID: op.FileID}
	}
	return vfs.Command{
		Kind:               s.Kind,
		Path:               decodePath(s.Path),
		Content:            s.Content,
		FileID:             s.FileID,
		ExpectedVersion:    s.ExpectedVersion,
		HasExpectedVersion: s.HasExpectedVersion,
		NewPath:            decodePath(s.NewPath),
		Ops:                ops,
		InvalidateIDs:      s.InvalidateIDs,
	}
}

// storedEntry is the durable form of a vfs.LogEntry.
type storedEntry struct {
	Term       uint64
	Index      uint64
	Kind       vfs.EntryKind
	Members    []vfsid.NodeID
	Command    storedCommand
}

func encodeEntry(e vfs.LogEntry) storedEntry {
	return storedEntry{
		Term:    e.ID.Term,
		Index:   uint64(e.ID.Index),
		Kind:    e.Kind,
		Members: e.Membership.Members,
		Command: encodeCommand(e.Command),
	}
}

func decodeEntry(s storedEntry) vfs.LogEntry {
	return vfs.LogEntry{
		ID:         vfsid.LogID{Term: s.Term, Index: vfsid.LogIndex(s.Index)},
		Kind:       s.Kind,
		Membership: vfs.Membership{Members: s.Members},
		Command:    decodeCommand(s.Command),
	}
}

func marshalEntry(e vfs.LogEntry) ([]byte, error) {
	return msgpack.Marshal(encodeEntry(e))
}

func unmarshalEntry(data []byte) (vfs.LogEntry, error) {
	var s storedEntry
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return vfs.LogEntry{}, err
	}
	return decodeEntry(s), nil
}
