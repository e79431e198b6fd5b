package vfs

import (
	"testing"

	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vfspath"
	"github.com/vraftls/vraftls/pkg/wireerr"
)

type fakeClock struct{ now int64 }

func (c *fakeClock) NowMillis() int64 { return c.now }

func newTestSM() *StateMachine {
	return New(vfsid.GroupID(1), &fakeClock{now: 1000})
}

func createCmd(path string, content string) Command {
	return Command{Kind: CreateFileCmd, Path: vfspath.New(path), Content: []byte(content)}
}

func entry(idx uint64, cmd Command) LogEntry {
	return LogEntry{ID: vfsid.LogID{Term: 1, Index: vfsid.LogIndex(idx)}, Kind: CommandEntry, Command: cmd}
}

// Scenario 1 (spec.md §8): create then read.
func TestCreateThenRead(t *testing.T) {
	sm := newTestSM()
	sub := sm.Subscribe()

	resp := sm.Apply([]LogEntry{entry(1, createCmd("/a.rs", "fn main(){}"))})[0]
	if resp.Err != nil || !resp.HasFileID || resp.FileID != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	f, ok := sm.GetFileByPath(vfspath.New("/a.rs"))
	if !ok {
		t.Fatal("expected file to exist")
	}
	if f.ID != 1 || f.Version != 0 {
		t.Fatalf("unexpected file: %+v", f)
	}
	data, _ := f.Content.Bytes()
	if string(data) != "fn main(){}" {
		t.Fatalf("unexpected content: %q", data)
	}
	if f.Checksum != vfsid.Checksum(data) {
		t.Fatal("checksum invariant violated")
	}

	select {
	case ev := <-sub:
		if ev.Type != Created || ev.FileID != 1 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected a Created event")
	}
}

// Scenario 2 (spec.md §8): version-guarded update success then failure.
func TestVersionGuardedUpdate(t *testing.T) {
	sm := newTestSM()
	sm.Apply([]LogEntry{entry(1, createCmd("/a.rs", "fn main(){}"))})

	okCmd := Command{Kind: UpdateFileCmd, FileID: 1, Content: []byte("fn m(){}"), ExpectedVersion: 0, HasExpectedVersion: true}
	resp := sm.Apply([]LogEntry{entry(2, okCmd)})[0]
	if resp.Err != nil || resp.FileID != 1 {
		t.Fatalf("expected success, got %+v", resp)
	}
	f, _ := sm.GetFile(1)
	if f.Version != 1 {
		t.Fatalf("expected version 1, got %d", f.Version)
	}

	failCmd := Command{Kind: UpdateFileCmd, FileID: 1, Content: []byte("x"), ExpectedVersion: 0, HasExpectedVersion: true}
	resp2 := sm.Apply([]LogEntry{entry(3, failCmd)})[0]
	vm, ok := resp2.Err.(*wireerr.VersionMismatch)
	if !ok || vm.Expected != 0 || vm.Actual != 1 {
		t.Fatalf("expected VersionMismatch{0,1}, got %#v", resp2.Err)
	}
	f2, _ := sm.GetFile(1)
	if f2.Version != 1 {
		t.Fatalf("version must remain 1, got %d", f2.Version)
	}
}

// Scenario 3 (spec.md §8): rename collision.
func TestRenameCollision(t *testing.T) {
	sm := newTestSM()
	sm.Apply([]LogEntry{
		entry(1, createCmd("/a.rs", "a")),
		entry(2, createCmd("/b.rs", "b")),
	})

	renameCmd := Command{Kind: RenameFileCmd, FileID: 1, NewPath: vfspath.New("/b.rs")}
	resp := sm.Apply([]LogEntry{entry(3, renameCmd)})[0]
	if _, ok := resp.Err.(wireerr.FileExists); !ok {
		t.Fatalf("expected FileExists, got %#v", resp.Err)
	}

	f, _ := sm.GetFile(1)
	if f.Path.String() != "/a.rs" {
		t.Fatalf("id 1 should still map to /a.rs, got %s", f.Path.String())
	}
}

// Scenario 4 (spec.md §8): batch partial failure.
func TestBatchPartialFailure(t *testing.T) {
	sm := newTestSM()
	batch := Command{
		Kind: BatchWriteCmd,
		Ops: []BatchOp{
			{Kind: BatchCreate, Path: vfspath.New("/x"), Content: []byte("x")},
			{Kind: BatchUpdate, FileID: 999, Content: []byte("y")},
			{Kind: BatchCreate, Path: vfspath.New("/y"), Content: []byte("y")},
		},
	}
	resp := sm.Apply([]LogEntry{entry(1, batch)})[0]
	if len(resp.BatchResults) != 3 {
		t.Fatalf("expected 3 batch results, got %d", len(resp.BatchResults))
	}
	if resp.BatchResults[0].Err != nil || resp.BatchResults[0].FileID != 1 {
		t.Fatalf("op0: %+v", resp.BatchResults[0])
	}
	if _, ok := resp.BatchResults[1].Err.(wireerr.FileNotFound); !ok {
		t.Fatalf("op1: expected FileNotFound, got %#v", resp.BatchResults[1].Err)
	}
	if resp.BatchResults[2].Err != nil || resp.BatchResults[2].FileID != 2 {
		t.Fatalf("op2: %+v", resp.BatchResults[2])
	}

	if _, ok := sm.GetFileByPath(vfspath.New("/x")); !ok {
		t.Fatal("/x should exist")
	}
	if _, ok := sm.GetFileByPath(vfspath.New("/y")); !ok {
		t.Fatal("/y should exist")
	}
}

// Scenario 5 (spec.md §8): snapshot round-trip.
func TestSnapshotRoundTrip(t *testing.T) {
	sm := newTestSM()
	sm.Apply([]LogEntry{
		entry(1, createCmd("/a.rs", "a")),
		entry(2, createCmd("/b.rs", "b")),
		entry(3, Command{Kind: UpdateFileCmd, FileID: 1, Content: []byte("a2")}),
	})

	snap := sm.BuildSnapshot()

	fresh := New(vfsid.GroupID(1), &fakeClock{now: 2000})
	fresh.InstallSnapshot(snap)

	ids := fresh.AllFileIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 files after install, got %d", len(ids))
	}
	paths := map[string]bool{}
	for _, id := range ids {
		f, _ := fresh.GetFile(id)
		paths[f.Path.Original()] = true
	}
	if !paths["/a.rs"] || !paths["/b.rs"] {
		t.Fatalf("unexpected path set: %v", paths)
	}

	last, ok := fresh.LastAppliedLog()
	srcLast, srcOK := sm.LastAppliedLog()
	if !ok || !srcOK || last != srcLast {
		t.Fatalf("last_applied_log mismatch: %+v vs %+v", last, srcLast)
	}
}

// Scenario 6 (from spec.md §8, router half) is not exercised here or in
// pkg/router: the router caches leaders but performs no redirect retry.

func TestDeterministicReplay(t *testing.T) {
	entries := []LogEntry{
		entry(1, createCmd("/a.rs", "a")),
		entry(2, createCmd("/b.rs", "b")),
		entry(3, Command{Kind: UpdateFileCmd, FileID: 1, Content: []byte("a2")}),
		entry(4, Command{Kind: DeleteFileCmd, FileID: 2}),
	}

	sm1 := newTestSM()
	sm1.Apply(entries)

	sm2 := newTestSM()
	sm2.Apply(entries)

	ids1, ids2 := sm1.AllFileIDs(), sm2.AllFileIDs()
	if len(ids1) != len(ids2) {
		t.Fatalf("replica state diverged: %v vs %v", ids1, ids2)
	}
	for _, id := range ids1 {
		f1, _ := sm1.GetFile(id)
		f2, ok := sm2.GetFile(id)
		if !ok || f1.Path.String() != f2.Path.String() || f1.Version != f2.Version {
			t.Fatalf("replica state diverged for id %d: %+v vs %+v", id, f1, f2)
		}
	}
	last1, _ := sm1.LastAppliedLog()
	last2, _ := sm2.LastAppliedLog()
	if last1 != last2 {
		t.Fatalf("last_applied_log diverged: %+v vs %+v", last1, last2)
	}
}

func TestInvalidateCacheIsNoop(t *testing.T) {
	sm := newTestSM()
	sm.Apply([]LogEntry{entry(1, createCmd("/a.rs", "a"))})
	before := sm.FileCount()

	resp := sm.Apply([]LogEntry{entry(2, Command{Kind: InvalidateCacheCmd, InvalidateIDs: []vfsid.FileID{1}})})[0]
	if resp.Err != nil {
		t.Fatalf("unexpected error: %v", resp.Err)
	}
	if sm.FileCount() != before {
		t.Fatal("InvalidateCache must not change durable state")
	}
}
