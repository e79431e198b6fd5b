// Package consensus implements the per-group replicated log: a pebble-backed
// append-only store for committed entries plus the metadata (vote,
// committed index, last-purged index) a consensus group needs to recover
// after a restart, and the single-writer loop that feeds committed entries
// into a pkg/vfs.StateMachine (spec.md §4.2, §4.3).
package consensus

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vraftls/vraftls/pkg/vfs"
	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vmetrics"
	"github.com/vraftls/vraftls/pkg/wireerr"
)

// Key layout. RocksDB's column families don't exist in pebble; the same
// isolation is had with a one-byte key prefix per logical family, matching
// the layout original_source/crates/vraftls-raft/src/storage.rs documents
// as CF_LOGS/CF_META.
const (
	prefixLog  byte = 'L'
	prefixMeta byte = 'M'
)

var (
	metaKeyVote       = []byte{prefixMeta, 'v', 'o', 't', 'e'}
	metaKeyCommitted  = []byte{prefixMeta, 'c', 'o', 'm', 'm', 'i', 't', 't', 'e', 'd'}
	metaKeyLastPurged = []byte{prefixMeta, 'l', 'a', 's', 't', '_', 'p', 'u', 'r', 'g', 'e', 'd'}
)

func logKey(index vfsid.LogIndex) []byte {
	key := make([]byte, 9)
	key[0] = prefixLog
	binary.BigEndian.PutUint64(key[1:], uint64(index))
	return key
}

// Vote is a node's ballot for a term, durable across restarts so a node
// never votes twice in the same term (spec.md §4.2).
type Vote struct {
	Term      uint64
	NodeID    vfsid.NodeID
	Committed bool
}

// LogState summarizes what a LogStore holds: the last purged id (if any
// entries were ever compacted away) and the last log id present, used by a
// restarting node to resume consensus (spec.md §4.2).
type LogState struct {
	LastPurged    vfsid.LogID
	HasLastPurged bool
	LastLogID     vfsid.LogID
	HasLastLogID  bool
}

// LogStore is a single consensus group's durable log, backed by one pebble
// instance per group under dataDir/group-<groupID>/log (spec.md §4.2).
// Callers (the group's coordinator goroutine) serialize all writes; reads
// may happen concurrently with writes.
type LogStore struct {
	mu    sync.RWMutex
	db    *pebble.DB
	lock  *flock.Flock
	group vfsid.GroupID
}

// OpenLogStore opens (creating if necessary) the pebble instance for group
// under dataDir, taking an exclusive file lock on the group's data
// directory so two processes never open the same log store concurrently.
func OpenLogStore(dataDir string, group vfsid.GroupID) (*LogStore, error) {
	dir := filepath.Join(dataDir, groupDirName(group))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "consensus: create group data dir")
	}

	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "consensus: lock group data dir")
	}
	if !locked {
		return nil, errors.Errorf("consensus: group %d data dir already locked", uint64(group))
	}

	db, err := pebble.Open(filepath.Join(dir, "log"), &pebble.Options{})
	if err != nil {
		_ = lock.Unlock()
		return nil, errors.Wrap(err, "consensus: open pebble log store")
	}

	return &LogStore{db: db, lock: lock, group: group}, nil
}

func groupDirName(group vfsid.GroupID) string {
	return "group-" + itoa(uint64(group))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Close releases the pebble handle and the data-directory lock.
func (s *LogStore) Close() error {
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

// SaveVote persists the current vote. A node must not cast a second vote in
// a term it has already voted in (spec.md §4.2).
func (s *LogStore) SaveVote(v Vote) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return wireerr.Serialization(err.Error())
	}
	if err := s.db.Set(metaKeyVote, data, pebble.Sync); err != nil {
		return wireerr.Storage(err.Error())
	}
	return nil
}

// LoadVote returns the persisted vote, if any.
func (s *LogStore) LoadVote() (Vote, bool, error) {
	var v Vote
	data, closer, err := s.db.Get(metaKeyVote)
	if errors.Is(err, pebble.ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, wireerr.Storage(err.Error())
	}
	defer closer.Close()
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return v, false, wireerr.Serialization(err.Error())
	}
	return v, true, nil
}

// SaveCommitted persists the highest committed log id.
func (s *LogStore) SaveCommitted(id vfsid.LogID) error {
	data, err := msgpack.Marshal(id)
	if err != nil {
		return wireerr.Serialization(err.Error())
	}
	if err := s.db.Set(metaKeyCommitted, data, pebble.Sync); err != nil {
		return wireerr.Storage(err.Error())
	}
	return nil
}

// LoadCommitted returns the persisted committed log id, if any.
func (s *LogStore) LoadCommitted() (vfsid.LogID, bool, error) {
	return s.loadLogID(metaKeyCommitted)
}

func (s *LogStore) loadLogID(key []byte) (vfsid.LogID, bool, error) {
	var id vfsid.LogID
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return id, false, nil
	}
	if err != nil {
		return id, false, wireerr.Storage(err.Error())
	}
	defer closer.Close()
	if err := msgpack.Unmarshal(data, &id); err != nil {
		return id, false, wireerr.Serialization(err.Error())
	}
	return id, true, nil
}

// Append durably writes entries in order, each keyed by its log index, in
// one synced batch (spec.md §4.2: "append must fsync before acknowledging").
func (s *LogStore) Append(entries []vfs.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	groupLabel := strconv.FormatUint(uint64(s.group), 10)
	var totalBytes int
	for _, e := range entries {
		data, err := marshalEntry(e)
		if err != nil {
			return wireerr.Serialization(err.Error())
		}
		totalBytes += len(data)
		if err := batch.Set(logKey(e.ID.Index), data, nil); err != nil {
			return wireerr.Storage(err.Error())
		}
	}
	if err := s.db.Apply(batch, pebble.Sync); err != nil {
		return wireerr.Storage(err.Error())
	}
	vmetrics.LogAppendBytes.WithLabelValues(groupLabel).Observe(float64(totalBytes))
	return nil
}

// GetEntries returns entries with index in [start, end).
func (s *LogStore) GetEntries(start, end vfsid.LogIndex) ([]vfs.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: logKey(start),
		UpperBound: logKey(end),
	})
	if err != nil {
		return nil, wireerr.Storage(err.Error())
	}
	defer iter.Close()

	var out []vfs.LogEntry
	for iter.First(); iter.Valid(); iter.Next() {
		entry, err := unmarshalEntry(iter.Value())
		if err != nil {
			return nil, wireerr.Serialization(err.Error())
		}
		out = append(out, entry)
	}
	if err := iter.Error(); err != nil {
		return nil, wireerr.Storage(err.Error())
	}
	return out, nil
}

// TruncateFrom removes every entry with index >= from, used to discard a
// conflicting log suffix when a new leader overwrites it (spec.md §4.2).
func (s *LogStore) TruncateFrom(from vfsid.LogIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteRange(logKey(from), logKey(vfsid.LogIndex(^uint64(0))), pebble.Sync); err != nil {
		return wireerr.Storage(err.Error())
	}
	return nil
}

// PurgeBefore removes every entry with index <= upTo.Index (the snapshot at
// upTo already captures their effect) and records the purge point
// (spec.md §4.2).
func (s *LogStore) PurgeBefore(upTo vfsid.LogID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteRange(logKey(0), logKey(upTo.Index+1), pebble.Sync); err != nil {
		return wireerr.Storage(err.Error())
	}
	data, err := msgpack.Marshal(upTo)
	if err != nil {
		return wireerr.Serialization(err.Error())
	}
	if err := s.db.Set(metaKeyLastPurged, data, pebble.Sync); err != nil {
		return wireerr.Storage(err.Error())
	}
	return nil
}

// LogState reports the store's last-purged and last-present log ids,
// consulted by a node that just restarted (spec.md §4.2).
func (s *LogStore) LogState() (LogState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var state LogState

	lastPurged, ok, err := s.loadLogID(metaKeyLastPurged)
	if err != nil {
		return state, err
	}
	state.LastPurged, state.HasLastPurged = lastPurged, ok

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixLog},
		UpperBound: []byte{prefixLog + 1},
	})
	if err != nil {
		return state, wireerr.Storage(err.Error())
	}
	defer iter.Close()

	if iter.Last() {
		entry, err := unmarshalEntry(iter.Value())
		if err != nil {
			return state, wireerr.Serialization(err.Error())
		}
		state.LastLogID, state.HasLastLogID = entry.ID, true
	} else if ok {
		state.LastLogID, state.HasLastLogID = lastPurged, true
	}
	return state, nil
}
