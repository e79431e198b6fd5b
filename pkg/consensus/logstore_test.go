package consensus

import (
	"testing"

	"github.com/vraftls/vraftls/pkg/vfs"
	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vfspath"
)

func openTestStore(t *testing.T) *LogStore {
	t.Helper()
	store, err := OpenLogStore(t.TempDir(), vfsid.GroupID(1))
	if err != nil {
		t.Fatalf("OpenLogStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEntry(idx uint64) vfs.LogEntry {
	return vfs.LogEntry{
		ID:   vfsid.LogID{Term: 1, Index: vfsid.LogIndex(idx)},
		Kind: vfs.CommandEntry,
		Command: vfs.Command{
			Kind:    vfs.CreateFileCmd,
			Path:    vfspath.New("/a.rs"),
			Content: []byte("fn main(){}"),
		},
	}
}

func TestAppendAndReadRange(t *testing.T) {
	store := openTestStore(t)

	entries := []vfs.LogEntry{testEntry(1), testEntry(2), testEntry(3)}
	if err := store.Append(entries); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.GetEntries(1, 4)
	if err != nil {
		t.Fatalf("GetEntries: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, e := range got {
		if e.ID.Index != vfsid.LogIndex(i+1) {
			t.Fatalf("entry %d has wrong index %d", i, e.ID.Index)
		}
		if e.Command.Path.String() != "/a.rs" {
			t.Fatalf("entry %d path mismatch: %s", i, e.Command.Path.String())
		}
	}
}

func TestTruncateFromDropsSuffix(t *testing.T) {
	store := openTestStore(t)
	store.Append([]vfs.LogEntry{testEntry(1), testEntry(2), testEntry(3)})

	if err := store.TruncateFrom(2); err != nil {
		t.Fatalf("TruncateFrom: %v", err)
	}

	got, err := store.GetEntries(0, 10)
	if err != nil {
		t.Fatalf("GetEntries: %v", err)
	}
	if len(got) != 1 || got[0].ID.Index != 1 {
		t.Fatalf("expected only index 1 to remain, got %+v", got)
	}
}

func TestPurgeBeforeRecordsLastPurged(t *testing.T) {
	store := openTestStore(t)
	store.Append([]vfs.LogEntry{testEntry(1), testEntry(2), testEntry(3)})

	purgeID := vfsid.LogID{Term: 1, Index: 2}
	if err := store.PurgeBefore(purgeID); err != nil {
		t.Fatalf("PurgeBefore: %v", err)
	}

	got, err := store.GetEntries(0, 10)
	if err != nil {
		t.Fatalf("GetEntries: %v", err)
	}
	if len(got) != 1 || got[0].ID.Index != 3 {
		t.Fatalf("expected only index 3 to remain, got %+v", got)
	}

	state, err := store.LogState()
	if err != nil {
		t.Fatalf("LogState: %v", err)
	}
	if !state.HasLastPurged || state.LastPurged != purgeID {
		t.Fatalf("expected last purged %+v, got %+v (has=%v)", purgeID, state.LastPurged, state.HasLastPurged)
	}
}

func TestVoteRoundTrip(t *testing.T) {
	store := openTestStore(t)

	if _, ok, err := store.LoadVote(); err != nil || ok {
		t.Fatalf("expected no vote initially, got ok=%v err=%v", ok, err)
	}

	v := Vote{Term: 5, NodeID: vfsid.NodeID(7), Committed: true}
	if err := store.SaveVote(v); err != nil {
		t.Fatalf("SaveVote: %v", err)
	}

	got, ok, err := store.LoadVote()
	if err != nil || !ok {
		t.Fatalf("LoadVote: ok=%v err=%v", ok, err)
	}
	if got != v {
		t.Fatalf("vote mismatch: got %+v want %+v", got, v)
	}
}

func TestLogStateReflectsLastEntry(t *testing.T) {
	store := openTestStore(t)
	store.Append([]vfs.LogEntry{testEntry(1), testEntry(2)})

	state, err := store.LogState()
	if err != nil {
		t.Fatalf("LogState: %v", err)
	}
	if !state.HasLastLogID || state.LastLogID.Index != 2 {
		t.Fatalf("expected last log id index 2, got %+v", state.LastLogID)
	}
}
