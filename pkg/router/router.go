package router

import (
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"

	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vfspath"
	"github.com/vraftls/vraftls/pkg/vmetrics"
)

// cacheNumCounters/cacheMaxCost size the ristretto admission policy; both
// caches here hold short fixed-size values (a node id), so cost is always 1
// per entry and MaxCost is simply the target entry count.
const (
	cacheNumCounters = 1_000_000
	cacheMaxCost     = 100_000
	cacheBufferItems = 64
)

// Router decides how to route an LSP request across the cluster (spec.md
// §4.4). File ownership and group leadership are cached with bounded,
// cost-aware LFU caches so a long-lived gateway process doesn't retain
// unbounded routing state for files and groups it saw once.
type Router struct {
	fileCache    *ristretto.Cache
	groupLeaders *ristretto.Cache

	mu          sync.RWMutex
	localNodeID vfsid.NodeID
	hasLocal    bool
}

// New constructs a Router with fresh routing caches.
func New() (*Router, error) {
	fileCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, errors.Wrap(err, "router: create file cache")
	}
	groupLeaders, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, errors.Wrap(err, "router: create group leader cache")
	}
	return &Router{fileCache: fileCache, groupLeaders: groupLeaders}, nil
}

// Close releases the routing caches' background goroutines.
func (r *Router) Close() {
	r.fileCache.Close()
	r.groupLeaders.Close()
}

// SetLocalNode records which node this router instance is running on.
func (r *Router) SetLocalNode(id vfsid.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localNodeID = id
	r.hasLocal = true
}

// IsLocal reports whether node is the node this Router instance runs on.
// Callers use this to tell a Single decision that resolves to "here" (serve
// from local state) apart from one that resolves to some other node.
func (r *Router) IsLocal(node vfsid.NodeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasLocal && r.localNodeID == node
}

// UpdateLeader records the current leader for group, learned from a
// NotLeader redirect or a membership push (spec.md §4.4, §7). The cache key
// is the raw uint64: ristretto's default hashing only recognizes a fixed
// set of builtin types, not named types like vfsid.GroupID.
func (r *Router) UpdateLeader(group vfsid.GroupID, leader vfsid.NodeID) {
	r.groupLeaders.SetWithTTL(uint64(group), leader, 1, 0)
	r.groupLeaders.Wait()
}

// GetLeader returns the cached leader for group, if known.
func (r *Router) GetLeader(group vfsid.GroupID) (vfsid.NodeID, bool) {
	v, ok := r.groupLeaders.Get(uint64(group))
	if !ok {
		return 0, false
	}
	return v.(vfsid.NodeID), true
}

// CacheFileOwner records which node currently owns path, learned from a
// successful response or an explicit push (spec.md §4.4).
func (r *Router) CacheFileOwner(path vfspath.Path, node vfsid.NodeID) {
	r.fileCache.SetWithTTL(path.String(), node, 1, 0)
	r.fileCache.Wait()
}

// InvalidateFile forgets path's cached owner, e.g. after a NotLeader
// redirect invalidated the assumption (spec.md §4.4, §7).
func (r *Router) InvalidateFile(path vfspath.Path) {
	r.fileCache.Del(path.String())
}

// Clear drops every cached routing fact.
func (r *Router) Clear() {
	r.fileCache.Clear()
	r.groupLeaders.Clear()
}

// RouteForFile decides how to route a request about path: to its cached
// owner if known, otherwise to the local node (spec.md §4.4).
func (r *Router) RouteForFile(path vfspath.Path) RouteDecision {
	if v, ok := r.fileCache.Get(path.String()); ok {
		vmetrics.RouteDecisionsTotal.WithLabelValues("single").Inc()
		return RouteDecision{Kind: Single, Node: v.(vfsid.NodeID)}
	}
	vmetrics.RouteDecisionsTotal.WithLabelValues("local_only").Inc()
	return RouteDecision{Kind: LocalOnly}
}

// RouteWorkspace decides how to route a workspace-wide request: scatter-
// gather across the given groups, or local only if the list is empty
// (spec.md §4.4).
func (r *Router) RouteWorkspace(groups []vfsid.GroupID) RouteDecision {
	if len(groups) == 0 {
		vmetrics.RouteDecisionsTotal.WithLabelValues("local_only").Inc()
		return RouteDecision{Kind: LocalOnly}
	}
	vmetrics.RouteDecisionsTotal.WithLabelValues("scatter_gather").Inc()
	return RouteDecision{Kind: ScatterGather, Groups: groups}
}

// RouteTwoPhaseCommit decides to bracket a request across groups with a
// two-phase commit (spec.md §4.4's cross-group write path).
func (r *Router) RouteTwoPhaseCommit(groups []vfsid.GroupID) RouteDecision {
	vmetrics.RouteDecisionsTotal.WithLabelValues("two_phase_commit").Inc()
	return RouteDecision{Kind: TwoPhaseCommit, Groups: groups}
}
