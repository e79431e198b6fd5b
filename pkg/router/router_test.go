package router

import (
	"testing"

	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vfspath"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestRouteForFileUncachedIsLocalOnly(t *testing.T) {
	r := newTestRouter(t)
	d := r.RouteForFile(vfspath.New("/a.rs"))
	if d.Kind != LocalOnly {
		t.Fatalf("expected LocalOnly, got %v", d.Kind)
	}
}

func TestRouteForFileCachedIsSingle(t *testing.T) {
	r := newTestRouter(t)
	path := vfspath.New("/a.rs")
	r.CacheFileOwner(path, vfsid.NodeID(7))

	d := r.RouteForFile(path)
	if d.Kind != Single || d.Node != 7 {
		t.Fatalf("expected Single(7), got %+v", d)
	}
}

func TestInvalidateFileForgetsOwner(t *testing.T) {
	r := newTestRouter(t)
	path := vfspath.New("/a.rs")
	r.CacheFileOwner(path, vfsid.NodeID(7))
	r.InvalidateFile(path)

	d := r.RouteForFile(path)
	if d.Kind != LocalOnly {
		t.Fatalf("expected LocalOnly after invalidate, got %v", d.Kind)
	}
}

func TestIsLocal(t *testing.T) {
	r := newTestRouter(t)
	if r.IsLocal(vfsid.NodeID(1)) {
		t.Fatal("expected no local node before SetLocalNode")
	}
	r.SetLocalNode(vfsid.NodeID(1))
	if !r.IsLocal(vfsid.NodeID(1)) {
		t.Fatal("expected node 1 to be local")
	}
	if r.IsLocal(vfsid.NodeID(2)) {
		t.Fatal("expected node 2 to not be local")
	}
}

func TestGetLeaderRoundTrip(t *testing.T) {
	r := newTestRouter(t)
	r.UpdateLeader(vfsid.GroupID(3), vfsid.NodeID(9))

	leader, ok := r.GetLeader(3)
	if !ok || leader != 9 {
		t.Fatalf("expected leader 9, got %d (ok=%v)", leader, ok)
	}
}

func TestRouteWorkspaceEmptyIsLocalOnly(t *testing.T) {
	r := newTestRouter(t)
	d := r.RouteWorkspace(nil)
	if d.Kind != LocalOnly {
		t.Fatalf("expected LocalOnly for no known groups, got %v", d.Kind)
	}
}

func TestRouteWorkspaceScatterGather(t *testing.T) {
	r := newTestRouter(t)
	groups := []vfsid.GroupID{1, 2, 3}
	d := r.RouteWorkspace(groups)
	if d.Kind != ScatterGather || len(d.Groups) != 3 {
		t.Fatalf("expected ScatterGather over 3 groups, got %+v", d)
	}
}

func TestResponseAggregator(t *testing.T) {
	agg := NewResponseAggregator[int]()
	agg.AddResponse(1)
	agg.AddResponse(2)
	agg.AddError("node 3 unreachable")

	if len(agg.Responses()) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(agg.Responses()))
	}
	if !agg.HasErrors() || len(agg.Errors()) != 1 {
		t.Fatalf("expected 1 error, got %v", agg.Errors())
	}
}
