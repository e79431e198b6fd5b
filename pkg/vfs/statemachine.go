package vfs

import (
	"sync"
	"time"

	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vfspath"
	"github.com/vraftls/vraftls/pkg/wireerr"
)

// EntryKind discriminates LogEntry.
type EntryKind int

const (
	// BlankEntry is a no-op entry (e.g. emitted on leader election).
	BlankEntry EntryKind = iota
	// MembershipEntry replaces the stored membership configuration.
	MembershipEntry
	// CommandEntry carries a Command to dispatch.
	CommandEntry
)

// Membership is the cluster configuration recorded by a MembershipEntry.
type Membership struct {
	Members []vfsid.NodeID
}

// LogEntry is the unit the state machine consumes from the committed log
// (spec.md §4.1). Exactly one of Membership/Command is meaningful,
// matching Kind.
type LogEntry struct {
	ID         vfsid.LogID
	Kind       EntryKind
	Membership Membership
	Command    Command
}

// Clock abstracts "now" so Apply never reads the wall clock directly; the
// timestamp it produces is recorded on file state but never influences any
// apply-time decision (spec.md §4.1: "Apply must be deterministic").
type Clock interface {
	NowMillis() int64
}

// storedMembership pairs a membership with the log id it was recorded at.
type storedMembership struct {
	logID      vfsid.LogID
	hasLogID   bool
	membership Membership
}

// StateMachine is a single consensus group's deterministic VFS (spec.md
// §4.1). It owns the file map, the path index, the next-id counter, the
// group id, the broadcast channel sink, last_applied_log and the current
// stored membership. Apply is externally serialized by the consensus layer
// (spec.md §9): the mutex below guards concurrent reads alongside apply,
// not concurrent writers.
type StateMachine struct {
	mu sync.RWMutex

	groupID vfsid.GroupID
	clock   Clock

	files     map[vfsid.FileID]File
	pathIndex map[string]vfsid.FileID // keyed by Path.String()
	nextID    uint64

	lastAppliedLog    vfsid.LogID
	hasLastAppliedLog bool
	membership        storedMembership

	changes chan ChangeEvent
}

// changeBufferSize is the bounded broadcast channel's capacity; late
// subscribers may miss events once it fills (spec.md §3).
const changeBufferSize = 1024

// SystemClock reads the real wall clock; used outside of Apply's decision
// path purely to stamp LastModified (spec.md §4.1).
type SystemClock struct{}

// NowMillis returns the current time as milliseconds since the Unix epoch.
func (SystemClock) NowMillis() int64 { return time.Now().UnixMilli() }

// New creates a state machine for groupID with an empty VFS.
func New(groupID vfsid.GroupID, clock Clock) *StateMachine {
	return &StateMachine{
		groupID:   groupID,
		clock:     clock,
		files:     make(map[vfsid.FileID]File),
		pathIndex: make(map[string]vfsid.FileID),
		nextID:    1,
		changes:   make(chan ChangeEvent, changeBufferSize),
	}
}

// GroupID returns the consensus group this state machine belongs to.
func (sm *StateMachine) GroupID() vfsid.GroupID { return sm.groupID }

// Subscribe returns the state machine's single buffered channel of change
// events. Every caller gets the same channel, so each event is received by
// only one reader. Events emitted before a reader starts receiving stay in
// the buffer (up to its capacity) and are not replayed beyond that
// (spec.md §3).
func (sm *StateMachine) Subscribe() <-chan ChangeEvent { return sm.changes }

// LastAppliedLog returns the log id of the most recently applied entry.
func (sm *StateMachine) LastAppliedLog() (vfsid.LogID, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastAppliedLog, sm.hasLastAppliedLog
}

func (sm *StateMachine) emit(ev ChangeEvent) {
	select {
	case sm.changes <- ev:
	default:
		// bounded channel is full; the new event is dropped.
	}
}

// Apply consumes an ordered sequence of committed log entries and returns
// one response per entry, in order (spec.md §4.1). It is the sole writer
// entry point; callers (the consensus group coordinator) serialize calls
// to Apply so that at most one is in flight at a time.
func (sm *StateMachine) Apply(entries []LogEntry) []Response {
	responses := make([]Response, len(entries))
	for i, e := range entries {
		responses[i] = sm.applyOne(e)
	}
	return responses
}

func (sm *StateMachine) applyOne(e LogEntry) Response {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.lastAppliedLog = e.ID
	sm.hasLastAppliedLog = true

	switch e.Kind {
	case BlankEntry:
		return Response{}
	case MembershipEntry:
		sm.membership = storedMembership{logID: e.ID, hasLogID: true, membership: e.Membership}
		return Response{}
	case CommandEntry:
		return sm.applyCommandLocked(e.Command)
	default:
		return Response{Err: wireerr.Internal("unknown log entry kind")}
	}
}

func (sm *StateMachine) applyCommandLocked(cmd Command) Response {
	switch cmd.Kind {
	case CreateFileCmd:
		return sm.createFileLocked(cmd.Path, cmd.Content)
	case UpdateFileCmd:
		return sm.updateFileLocked(cmd.FileID, cmd.Content, cmd.ExpectedVersion, cmd.HasExpectedVersion)
	case DeleteFileCmd:
		return sm.deleteFileLocked(cmd.FileID)
	case RenameFileCmd:
		return sm.renameFileLocked(cmd.FileID, cmd.NewPath)
	case BatchWriteCmd:
		return sm.batchWriteLocked(cmd.Ops)
	case BatchWriteAtomicCmd:
		return sm.batchWriteAtomicLocked(cmd.Ops)
	case InvalidateCacheCmd:
		// No durable state change; present so analyzer caches elsewhere
		// observe the invalidation through the change stream (spec.md §4.1).
		for _, id := range cmd.InvalidateIDs {
			if f, ok := sm.files[id]; ok {
				sm.emit(ChangeEvent{Type: Modified, FileID: id, Path: f.Path, Version: f.Version, Timestamp: sm.now()})
			}
		}
		return Response{}
	default:
		return Response{Err: wireerr.Internal("unknown command kind")}
	}
}

func (sm *StateMachine) now() int64 {
	if sm.clock != nil {
		return sm.clock.NowMillis()
	}
	return 0
}

func (sm *StateMachine) createFileLocked(path vfspath.Path, content []byte) Response {
	key := path.String()
	if _, exists := sm.pathIndex[key]; exists {
		return Response{Err: wireerr.FileExists(path.Original())}
	}

	id := vfsid.FileID(sm.nextID)
	sm.nextID++

	f := File{
		ID:           id,
		Path:         path,
		Version:      0,
		Content:      LoadedContent(content),
		LastModified: sm.now(),
		OwningGroup:  sm.groupID,
		Metadata:     NewMetadata(content),
	}
	f.Checksum = checksumOf(f.Content)

	sm.files[id] = f
	sm.pathIndex[key] = id

	sm.emit(ChangeEvent{Type: Created, FileID: id, Path: path, Version: 0, Timestamp: f.LastModified})

	return Response{HasFileID: true, FileID: id}
}

func (sm *StateMachine) updateFileLocked(id vfsid.FileID, content []byte, expected vfsid.FileVersion, hasExpected bool) Response {
	f, ok := sm.files[id]
	if !ok {
		return Response{Err: wireerr.FileNotFound(id)}
	}
	if hasExpected && expected != f.Version {
		return Response{Err: &wireerr.VersionMismatch{Expected: uint64(expected), Actual: uint64(f.Version)}}
	}

	f.Content = LoadedContent(content)
	f.Checksum = checksumOf(f.Content)
	f.Version = f.Version.Next()
	f.LastModified = sm.now()
	sm.files[id] = f

	sm.emit(ChangeEvent{Type: Modified, FileID: id, Path: f.Path, Version: f.Version, Timestamp: f.LastModified})

	return Response{HasFileID: true, FileID: id}
}

func (sm *StateMachine) deleteFileLocked(id vfsid.FileID) Response {
	f, ok := sm.files[id]
	if !ok {
		return Response{Err: wireerr.FileNotFound(id)}
	}

	delete(sm.files, id)
	delete(sm.pathIndex, f.Path.String())

	sm.emit(ChangeEvent{Type: Deleted, FileID: id, Path: f.Path, Version: f.Version, Timestamp: sm.now()})

	return Response{}
}

func (sm *StateMachine) renameFileLocked(id vfsid.FileID, newPath vfspath.Path) Response {
	newKey := newPath.String()
	if _, exists := sm.pathIndex[newKey]; exists {
		return Response{Err: wireerr.FileExists(newPath.Original())}
	}
	f, ok := sm.files[id]
	if !ok {
		return Response{Err: wireerr.FileNotFound(id)}
	}

	delete(sm.pathIndex, f.Path.String())
	f.Path = newPath
	f.LastModified = sm.now()
	sm.files[id] = f
	sm.pathIndex[newKey] = id

	sm.emit(ChangeEvent{Type: Renamed, FileID: id, Path: newPath, Version: f.Version, Timestamp: f.LastModified})

	return Response{HasFileID: true, FileID: id}
}

// batchWriteLocked evaluates ops in order. The batch is not atomic: an
// error on op k leaves the effects of ops 0..k-1 committed and proceeds
// with k+1 (spec.md §4.1).
func (sm *StateMachine) batchWriteLocked(ops []BatchOp) Response {
	results := make([]BatchResult, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case BatchCreate:
			r := sm.createFileLocked(op.Path, op.Content)
			results[i] = BatchResult{Err: r.Err, FileID: r.FileID, HasFileID: r.HasFileID}
		case BatchUpdate:
			r := sm.updateFileLocked(op.FileID, op.Content, 0, false)
			results[i] = BatchResult{Err: r.Err, FileID: r.FileID, HasFileID: r.HasFileID}
		case BatchDelete:
			r := sm.deleteFileLocked(op.FileID)
			results[i] = BatchResult{Err: r.Err, FileID: r.FileID, HasFileID: r.HasFileID}
		}
	}
	return Response{BatchResults: results}
}

// batchWriteAtomicLocked validates every op against the current state
// before mutating anything; a single failure aborts the whole batch with
// no durable effect (spec.md §9, the atomic alternative to BatchWrite).
func (sm *StateMachine) batchWriteAtomicLocked(ops []BatchOp) Response {
	seenPaths := make(map[string]bool, len(ops))
	deleted := make(map[vfsid.FileID]bool)
	for _, op := range ops {
		switch op.Kind {
		case BatchCreate:
			key := op.Path.String()
			if _, exists := sm.pathIndex[key]; exists || seenPaths[key] {
				return Response{Err: wireerr.FileExists(op.Path.Original())}
			}
			seenPaths[key] = true
		case BatchUpdate, BatchDelete:
			if _, ok := sm.files[op.FileID]; !ok || deleted[op.FileID] {
				return Response{Err: wireerr.FileNotFound(op.FileID)}
			}
			if op.Kind == BatchDelete {
				deleted[op.FileID] = true
			}
		}
	}

	results := make([]BatchResult, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case BatchCreate:
			r := sm.createFileLocked(op.Path, op.Content)
			results[i] = BatchResult{Err: r.Err, FileID: r.FileID, HasFileID: r.HasFileID}
		case BatchUpdate:
			r := sm.updateFileLocked(op.FileID, op.Content, 0, false)
			results[i] = BatchResult{Err: r.Err, FileID: r.FileID, HasFileID: r.HasFileID}
		case BatchDelete:
			r := sm.deleteFileLocked(op.FileID)
			results[i] = BatchResult{Err: r.Err, FileID: r.FileID, HasFileID: r.HasFileID}
		}
	}
	return Response{BatchResults: results}
}
