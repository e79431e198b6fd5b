package consensus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vraftls/vraftls/pkg/tracing"
	"github.com/vraftls/vraftls/pkg/vfs"
	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vmetrics"
	"github.com/vraftls/vraftls/pkg/wireerr"
)

// snapshotThreshold is the number of newly appended entries after which the
// group coordinator builds and persists a fresh snapshot and purges the log
// entries it supersedes (spec.md §4.2's "periodic compaction").
const snapshotThreshold = 1000

// Group owns one consensus group's durable log, its on-disk snapshot, and
// the single vfs.StateMachine instance that is the group's deterministic
// apply target. Propose is the sole entry point that advances the log;
// calls are serialized by the mutex below so Apply is always invoked by at
// most one goroutine at a time (spec.md §4.1, §4.3: "single writer per
// group").
type Group struct {
	mu sync.Mutex

	id       vfsid.GroupID
	log      *LogStore
	snapshot *SnapshotStore
	sm       *vfs.StateMachine
	logger   zerolog.Logger

	sinceSnapshot int
}

// OpenGroup recovers a group's state from dataDir: it opens the log store,
// loads the most recent snapshot (if any) into a fresh state machine, then
// replays every log entry after the snapshot's last-applied index
// (spec.md §4.2's recovery sequence).
func OpenGroup(dataDir string, id vfsid.GroupID, clock vfs.Clock, logger zerolog.Logger) (*Group, error) {
	logStore, err := OpenLogStore(dataDir, id)
	if err != nil {
		return nil, err
	}
	snapStore := NewSnapshotStore(dataDir, id)

	sm := vfs.New(id, clock)

	snap, hasSnapshot, err := snapStore.Load()
	if err != nil {
		_ = logStore.Close()
		return nil, err
	}
	if hasSnapshot {
		sm.InstallSnapshot(snap)
		vmetrics.SnapshotsTotal.WithLabelValues(strconv.FormatUint(uint64(id), 10), "install").Inc()
	}

	replayFrom := vfsid.LogIndex(0)
	if last, ok := sm.LastAppliedLog(); ok {
		replayFrom = last.Index + 1
	}

	entries, err := logStore.GetEntries(replayFrom, vfsid.LogIndex(^uint64(0)))
	if err != nil {
		_ = logStore.Close()
		return nil, err
	}
	if len(entries) > 0 {
		sm.Apply(entries)
	}

	g := &Group{
		id:       id,
		log:      logStore,
		snapshot: snapStore,
		sm:       sm,
		logger:   logger.With().Uint64("group_id", uint64(id)).Logger(),
	}
	g.logger.Info().Int("replayed", len(entries)).Bool("snapshot_installed", hasSnapshot).Msg("recovered consensus group")
	return g, nil
}

// StateMachine returns the group's state machine for read-only queries.
// Queries bypass Propose and are not linearizable with respect to
// concurrent proposals on other nodes (spec.md §4.1).
func (g *Group) StateMachine() *vfs.StateMachine { return g.sm }

// ID returns the group's id.
func (g *Group) ID() vfsid.GroupID { return g.id }

// Close closes the underlying log store.
func (g *Group) Close() error { return g.log.Close() }

// Propose appends entry to the durable log, applies it to the state
// machine, persists the new committed index, and returns the apply
// response. This assumes entry has already been through leader election and
// replication (i.e. it is being called with the entry the consensus
// protocol decided to commit); Group itself does not implement leader
// election (spec.md §4.2, §4.3 — left to the transport/membership layer
// named in the Open Questions).
func (g *Group) Propose(entry vfs.LogEntry) (vfs.Response, error) {
	if g.id == 0 {
		return vfs.Response{}, errGroupZero
	}

	start := time.Now()
	groupLabel := strconv.FormatUint(uint64(g.id), 10)

	_, span := tracing.Start(context.Background(), "consensus", "propose")
	span.SetAttributes(attribute.Int64("group_id", int64(g.id)))
	defer span.End()

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.log.Append([]vfs.LogEntry{entry}); err != nil {
		vmetrics.ProposalsTotal.WithLabelValues(groupLabel, "rejected").Inc()
		return vfs.Response{}, err
	}

	resp := g.sm.Apply([]vfs.LogEntry{entry})[0]

	if err := g.log.SaveCommitted(entry.ID); err != nil {
		vmetrics.ProposalsTotal.WithLabelValues(groupLabel, "rejected").Inc()
		return resp, err
	}

	vmetrics.ProposalsTotal.WithLabelValues(groupLabel, "committed").Inc()
	vmetrics.ProposalLatencySeconds.WithLabelValues(groupLabel).Observe(time.Since(start).Seconds())

	g.sinceSnapshot++
	if g.sinceSnapshot >= snapshotThreshold {
		if err := g.compactLocked(); err != nil {
			g.logger.Warn().Err(err).Msg("snapshot compaction failed")
		}
	}

	return resp, nil
}

// ProposeBatch applies entries in order as a single log append, matching
// the semantics of n back-to-back Propose calls but with one fsync.
func (g *Group) ProposeBatch(entries []vfs.LogEntry) ([]vfs.Response, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if g.id == 0 {
		return nil, errGroupZero
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.log.Append(entries); err != nil {
		return nil, err
	}

	responses := g.sm.Apply(entries)

	last := entries[len(entries)-1]
	if err := g.log.SaveCommitted(last.ID); err != nil {
		return responses, err
	}

	g.sinceSnapshot += len(entries)
	if g.sinceSnapshot >= snapshotThreshold {
		if err := g.compactLocked(); err != nil {
			g.logger.Warn().Err(err).Msg("snapshot compaction failed")
		}
	}

	return responses, nil
}

// Compact forces an immediate snapshot-and-purge cycle regardless of
// sinceSnapshot.
func (g *Group) Compact() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.compactLocked()
}

func (g *Group) compactLocked() error {
	snap := g.sm.BuildSnapshot()
	if !snap.HasLastAppliedLog {
		return nil
	}
	if err := g.snapshot.Save(snap); err != nil {
		return err
	}
	if err := g.log.PurgeBefore(snap.LastAppliedLog); err != nil {
		return err
	}
	g.sinceSnapshot = 0
	vmetrics.SnapshotsTotal.WithLabelValues(strconv.FormatUint(uint64(g.id), 10), "build").Inc()
	g.logger.Info().Uint64("last_index", uint64(snap.LastAppliedLog.Index)).Msg("compacted group log")
	return nil
}

// Vote records a ballot for candidate in term if it is at least as large as
// the last vote this group cast, and reports whether the vote was granted.
// The actual leader-election decision procedure (comparing candidate
// recency, quorum counting) lives in the transport/membership layer named
// in the Open Questions; this method only enforces the single
// never-vote-twice-in-a-term durability guarantee the log store provides
// (spec.md §4.2, §6's `vote` RPC).
func (g *Group) Vote(term uint64, candidate vfsid.NodeID) (granted bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	current, hasVote, err := g.log.LoadVote()
	if err != nil {
		return false, err
	}
	if hasVote && current.Term > term {
		return false, nil
	}
	if hasVote && current.Term == term && current.NodeID != candidate {
		return false, nil
	}
	if err := g.log.SaveVote(Vote{Term: term, NodeID: candidate, Committed: true}); err != nil {
		return false, err
	}
	return true, nil
}

// InstallSnapshot replaces the group's state machine wholesale with snap,
// persists it, and purges every log entry it supersedes (spec.md §4.3's
// install side, driven by `/raft/install_snapshot` once a full transfer
// completes).
func (g *Group) InstallSnapshot(snap vfs.Snapshot) error {
	if g.id == 0 {
		return errGroupZero
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sm.InstallSnapshot(snap)
	if err := g.snapshot.Save(snap); err != nil {
		return err
	}
	if snap.HasLastAppliedLog {
		if err := g.log.PurgeBefore(snap.LastAppliedLog); err != nil {
			return err
		}
	}
	g.sinceSnapshot = 0
	vmetrics.SnapshotsTotal.WithLabelValues(strconv.FormatUint(uint64(g.id), 10), "install").Inc()
	return nil
}

// errGroupZero is returned when a caller tries to Propose against the
// reserved metadata group via this path (spec.md §9's Open Question: group
// 0 has no schema here).
var errGroupZero = wireerr.Internal("group 0 is reserved and has no command schema")
