package consensus

import (
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vraftls/vraftls/pkg/vfs"
	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/wireerr"
)

type storedFile struct {
	ID           vfsid.FileID
	Path         storedPath
	Version      vfsid.FileVersion
	Content      []byte
	HasContent   bool
	Checksum     uint64
	LastModified int64
	OwningGroup  vfsid.GroupID
	ReadOnly     bool
	Encoding     string
	HasEncoding  bool
	LineEnding   vfs.LineEnding
	Attributes   map[string]string
}

type storedSnapshot struct {
	LastTerm       uint64
	LastIndex      uint64
	HasLastApplied bool
	Members        []vfsid.NodeID
	Files          []storedFile
}

func encodeSnapshot(snap vfs.Snapshot) storedSnapshot {
	files := make([]storedFile, len(snap.Files))
	for i, f := range snap.Files {
		data, loaded := f.Content.Bytes()
		files[i] = storedFile{
			ID:           f.ID,
			Path:         encodePath(f.Path),
			Version:      f.Version,
			Content:      data,
			HasContent:   loaded,
			Checksum:     f.Checksum,
			LastModified: f.LastModified,
			OwningGroup:  f.OwningGroup,
			ReadOnly:     f.Metadata.ReadOnly,
			Encoding:     f.Metadata.Encoding,
			HasEncoding:  f.Metadata.HasEncoding,
			LineEnding:   f.Metadata.LineEnding,
			Attributes:   f.Metadata.Attributes,
		}
	}
	return storedSnapshot{
		LastTerm:       snap.LastAppliedLog.Term,
		LastIndex:      uint64(snap.LastAppliedLog.Index),
		HasLastApplied: snap.HasLastAppliedLog,
		Members:        snap.Membership.Members,
		Files:          files,
	}
}

func decodeSnapshot(s storedSnapshot) vfs.Snapshot {
	files := make([]vfs.File, len(s.Files))
	for i, sf := range s.Files {
		content := vfs.Content{Kind: vfs.ContentNotLoaded}
		if sf.HasContent {
			content = vfs.LoadedContent(sf.Content)
		}
		files[i] = vfs.File{
			ID:           sf.ID,
			Path:         decodePath(sf.Path),
			Version:      sf.Version,
			Content:      content,
			Checksum:     sf.Checksum,
			LastModified: sf.LastModified,
			OwningGroup:  sf.OwningGroup,
			Metadata: vfs.Metadata{
				ReadOnly:    sf.ReadOnly,
				Encoding:    sf.Encoding,
				HasEncoding: sf.HasEncoding,
				LineEnding:  sf.LineEnding,
				Attributes:  sf.Attributes,
			},
		}
	}
	return vfs.Snapshot{
		LastAppliedLog:    vfsid.LogID{Term: s.LastTerm, Index: vfsid.LogIndex(s.LastIndex)},
		HasLastAppliedLog: s.HasLastApplied,
		Membership:        vfs.Membership{Members: s.Members},
		Files:             files,
	}
}

// SnapshotStore persists the most recent installed/built snapshot for a
// group to a single file on disk, replaced atomically on every write so a
// reader never observes a partially-written snapshot (spec.md §4.1's "may
// instead swap the file map atomically", applied here to the on-disk copy).
type SnapshotStore struct {
	path string
}

// NewSnapshotStore returns a store rooted at dataDir/group-<id>/snapshot.bin.
func NewSnapshotStore(dataDir string, group vfsid.GroupID) *SnapshotStore {
	return &SnapshotStore{path: filepath.Join(dataDir, groupDirName(group), "snapshot.bin")}
}

// Save atomically writes snap as the group's current snapshot, replacing
// whatever was there before.
func (s *SnapshotStore) Save(snap vfs.Snapshot) error {
	data, err := msgpack.Marshal(encodeSnapshot(snap))
	if err != nil {
		return wireerr.Serialization(err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return wireerr.Storage(err.Error())
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return wireerr.Storage(err.Error())
	}
	return nil
}

// Load reads the group's current snapshot, if one has ever been saved.
func (s *SnapshotStore) Load() (vfs.Snapshot, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return vfs.Snapshot{}, false, nil
	}
	if err != nil {
		return vfs.Snapshot{}, false, wireerr.Storage(err.Error())
	}
	var stored storedSnapshot
	if err := msgpack.Unmarshal(data, &stored); err != nil {
		return vfs.Snapshot{}, false, wireerr.Serialization(err.Error())
	}
	return decodeSnapshot(stored), true, nil
}

// Receiver accumulates a snapshot streamed in chunks from a peer (the
// begin_receiving_snapshot / install_snapshot RPC pair, spec.md §4.2) before
// it is decoded and handed to a state machine.
type Receiver struct {
	file *renameio.PendingFile
}

// BeginReceiving opens a pending file that chunks are written into as they
// arrive; nothing is visible at finalPath until Finish is called.
func BeginReceiving(finalPath string) (*Receiver, error) {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return nil, wireerr.Storage(err.Error())
	}
	pf, err := renameio.NewPendingFile(finalPath)
	if err != nil {
		return nil, wireerr.Storage(err.Error())
	}
	return &Receiver{file: pf}, nil
}

// Write appends a chunk to the pending snapshot file, satisfying io.Writer
// so it can be used as the target of an io.Copy from the transport.
func (r *Receiver) Write(chunk []byte) (int, error) {
	n, err := r.file.Write(chunk)
	if err != nil {
		return n, wireerr.Storage(err.Error())
	}
	return n, nil
}

// Finish publishes the received bytes atomically at finalPath.
func (r *Receiver) Finish() error {
	if err := r.file.CloseAtomicallyReplace(); err != nil {
		return wireerr.Storage(err.Error())
	}
	return nil
}

// Abort discards the pending file without publishing it.
func (r *Receiver) Abort() error {
	return r.file.Cleanup()
}

// EncodeSnapshotBytes serializes snap the same way SnapshotStore persists
// it to disk, for embedding in an InstallSnapshotRequest body.
func EncodeSnapshotBytes(snap vfs.Snapshot) ([]byte, error) {
	data, err := msgpack.Marshal(encodeSnapshot(snap))
	if err != nil {
		return nil, wireerr.Serialization(err.Error())
	}
	return data, nil
}

// DecodeSnapshotBytes is the inverse of EncodeSnapshotBytes, used to decode
// an InstallSnapshotRequest's Data field.
func DecodeSnapshotBytes(data []byte) (vfs.Snapshot, error) {
	var stored storedSnapshot
	if err := msgpack.Unmarshal(data, &stored); err != nil {
		return vfs.Snapshot{}, wireerr.Serialization(err.Error())
	}
	return decodeSnapshot(stored), nil
}

// DecodeSnapshotFile reads and decodes a snapshot previously written by
// Receiver.Finish or SnapshotStore.Save.
func DecodeSnapshotFile(path string) (vfs.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vfs.Snapshot{}, wireerr.Storage(err.Error())
	}
	var stored storedSnapshot
	if err := msgpack.Unmarshal(data, &stored); err != nil {
		return vfs.Snapshot{}, wireerr.Serialization(err.Error())
	}
	return decodeSnapshot(stored), nil
}
