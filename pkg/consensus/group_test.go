package consensus

import (
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vraftls/vraftls/pkg/vfs"
	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vfspath"
)

type fakeClock struct{ now int64 }

func (c *fakeClock) NowMillis() int64 { return c.now }

func silentLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func createEntry(idx uint64, path string) vfs.LogEntry {
	return vfs.LogEntry{
		ID:      vfsid.LogID{Term: 1, Index: vfsid.LogIndex(idx)},
		Kind:    vfs.CommandEntry,
		Command: vfs.Command{Kind: vfs.CreateFileCmd, Path: vfspath.New(path), Content: []byte("x")},
	}
}

func TestGroupProposeAppliesAndPersists(t *testing.T) {
	dir := t.TempDir()
	g, err := OpenGroup(dir, vfsid.GroupID(1), &fakeClock{now: 1}, silentLogger())
	if err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	defer g.Close()

	resp, err := g.Propose(createEntry(1, "/a.rs"))
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if resp.Err != nil || !resp.HasFileID || resp.FileID != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	committed, ok, err := g.log.LoadCommitted()
	if err != nil || !ok {
		t.Fatalf("expected committed index persisted: ok=%v err=%v", ok, err)
	}
	if committed.Index != 1 {
		t.Fatalf("expected committed index 1, got %d", committed.Index)
	}
}

func TestGroupRecoversAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	g1, err := OpenGroup(dir, vfsid.GroupID(2), &fakeClock{now: 1}, silentLogger())
	if err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	g1.Propose(createEntry(1, "/a.rs"))
	g1.Propose(createEntry(2, "/b.rs"))
	if err := g1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	g2, err := OpenGroup(dir, vfsid.GroupID(2), &fakeClock{now: 2}, silentLogger())
	if err != nil {
		t.Fatalf("reopen OpenGroup: %v", err)
	}
	defer g2.Close()

	if g2.StateMachine().FileCount() != 2 {
		t.Fatalf("expected 2 files after recovery, got %d", g2.StateMachine().FileCount())
	}
	if _, ok := g2.StateMachine().GetFileByPath(vfspath.New("/a.rs")); !ok {
		t.Fatal("expected /a.rs to survive recovery")
	}
}

func TestGroupCompactBuildsSnapshotAndPurges(t *testing.T) {
	dir := t.TempDir()
	g, err := OpenGroup(dir, vfsid.GroupID(3), &fakeClock{now: 1}, silentLogger())
	if err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	defer g.Close()

	g.Propose(createEntry(1, "/a.rs"))
	if err := g.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	snap, ok, err := g.snapshot.Load()
	if err != nil || !ok {
		t.Fatalf("expected snapshot saved: ok=%v err=%v", ok, err)
	}
	if len(snap.Files) != 1 {
		t.Fatalf("expected 1 file in snapshot, got %d", len(snap.Files))
	}

	entries, err := g.log.GetEntries(0, 10)
	if err != nil {
		t.Fatalf("GetEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected purged log, got %d entries", len(entries))
	}
}

func TestGroupVoteGrantsOncePerTerm(t *testing.T) {
	dir := t.TempDir()
	g, err := OpenGroup(dir, vfsid.GroupID(4), &fakeClock{now: 1}, silentLogger())
	if err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	defer g.Close()

	granted, err := g.Vote(1, vfsid.NodeID(7))
	if err != nil || !granted {
		t.Fatalf("expected first vote granted: granted=%v err=%v", granted, err)
	}

	granted, err = g.Vote(1, vfsid.NodeID(9))
	if err != nil || granted {
		t.Fatalf("expected second candidate in same term refused: granted=%v err=%v", granted, err)
	}

	granted, err = g.Vote(1, vfsid.NodeID(7))
	if err != nil || !granted {
		t.Fatalf("expected repeat vote for same candidate/term granted: granted=%v err=%v", granted, err)
	}

	granted, err = g.Vote(2, vfsid.NodeID(9))
	if err != nil || !granted {
		t.Fatalf("expected vote in a later term granted: granted=%v err=%v", granted, err)
	}

	granted, err = g.Vote(1, vfsid.NodeID(7))
	if err != nil || granted {
		t.Fatalf("expected vote for a stale term refused: granted=%v err=%v", granted, err)
	}
}

func TestGroupInstallSnapshotReplacesStateAndPurgesLog(t *testing.T) {
	dir := t.TempDir()
	g, err := OpenGroup(dir, vfsid.GroupID(5), &fakeClock{now: 1}, silentLogger())
	if err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	defer g.Close()

	g.Propose(createEntry(1, "/a.rs"))
	snap := g.StateMachine().BuildSnapshot()

	g.Propose(createEntry(2, "/b.rs"))
	if g.StateMachine().FileCount() != 2 {
		t.Fatalf("expected 2 files before install, got %d", g.StateMachine().FileCount())
	}

	if err := g.InstallSnapshot(snap); err != nil {
		t.Fatalf("InstallSnapshot: %v", err)
	}
	if g.StateMachine().FileCount() != 1 {
		t.Fatalf("expected 1 file after install, got %d", g.StateMachine().FileCount())
	}

	saved, ok, err := g.snapshot.Load()
	if err != nil || !ok {
		t.Fatalf("expected snapshot persisted: ok=%v err=%v", ok, err)
	}
	if len(saved.Files) != 1 {
		t.Fatalf("expected 1 file in persisted snapshot, got %d", len(saved.Files))
	}

	entries, err := g.log.GetEntries(0, 10)
	if err != nil {
		t.Fatalf("GetEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID.Index != 2 {
		t.Fatalf("expected log purged up to snapshot, leaving only index 2, got %d entries", len(entries))
	}
}

func TestGroupZeroRejectsProposals(t *testing.T) {
	dir := t.TempDir()
	g, err := OpenGroup(dir, vfsid.GroupID(0), &fakeClock{now: 1}, silentLogger())
	if err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	defer g.Close()

	if _, err := g.Propose(createEntry(1, "/a.rs")); err == nil {
		t.Fatal("expected group 0 to reject Propose")
	}
	if _, err := g.ProposeBatch([]vfs.LogEntry{createEntry(1, "/a.rs")}); err == nil {
		t.Fatal("expected group 0 to reject ProposeBatch")
	}
	if err := g.InstallSnapshot(vfs.Snapshot{}); err == nil {
		t.Fatal("expected group 0 to reject InstallSnapshot")
	}
}
