package router

import (
	"context"
	"sync"
	"testing"

	"github.com/vraftls/vraftls/pkg/vfsid"
)

type fakeParticipant struct {
	mu       sync.Mutex
	refuse   map[vfsid.GroupID]bool
	prepared []vfsid.GroupID
	committed []vfsid.GroupID
	aborted   []vfsid.GroupID
}

func newFakeParticipant(refuse ...vfsid.GroupID) *fakeParticipant {
	r := make(map[vfsid.GroupID]bool, len(refuse))
	for _, g := range refuse {
		r[g] = true
	}
	return &fakeParticipant{refuse: r}
}

func (f *fakeParticipant) Prepare(_ context.Context, _ string, group vfsid.GroupID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared = append(f.prepared, group)
	return !f.refuse[group], nil
}

func (f *fakeParticipant) Commit(_ context.Context, _ string, group vfsid.GroupID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, group)
	return nil
}

func (f *fakeParticipant) Abort(_ context.Context, _ string, group vfsid.GroupID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, group)
	return nil
}

func TestCoordinatorCommitsWhenAllPrepareSucceed(t *testing.T) {
	p := newFakeParticipant()
	c := NewCoordinator(p)
	defer c.Close()

	groups := []vfsid.GroupID{1, 2, 3}
	if err := c.Run(context.Background(), groups); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(p.committed) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(p.committed))
	}
	if len(p.aborted) != 0 {
		t.Fatalf("expected no aborts, got %d", len(p.aborted))
	}
}

func TestCoordinatorAbortsWhenAParticipantRefuses(t *testing.T) {
	p := newFakeParticipant(vfsid.GroupID(2))
	c := NewCoordinator(p)
	defer c.Close()

	groups := []vfsid.GroupID{1, 2, 3}
	err := c.Run(context.Background(), groups)
	if err == nil {
		t.Fatal("expected abort error")
	}
	if len(p.committed) != 0 {
		t.Fatalf("expected no commits, got %d", len(p.committed))
	}
	if len(p.aborted) != 3 {
		t.Fatalf("expected 3 aborts, got %d", len(p.aborted))
	}
}
