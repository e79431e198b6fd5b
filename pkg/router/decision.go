// Package router decides where an LSP request must be sent: a single
// node that already owns the relevant file, the local node, a
// scatter-gather fan-out across every consensus group for workspace-wide
// requests, or a two-phase-commit bracket for operations that must touch
// more than one group atomically (spec.md §4.4).
package router

import "github.com/vraftls/vraftls/pkg/vfsid"

// DecisionKind discriminates RouteDecision.
type DecisionKind int

const (
	// Single routes to exactly one node, e.g. a file's cached owner.
	Single DecisionKind = iota
	// LocalOnly routes to the local node (no cached owner known yet).
	LocalOnly
	// ScatterGather fans a request out to every listed group's leader and
	// aggregates the responses.
	ScatterGather
	// TwoPhaseCommit brackets a request that must succeed on every listed
	// group or none (spec.md §4.4).
	TwoPhaseCommit
)

// RouteDecision is the router's verdict for one request (spec.md §4.4).
type RouteDecision struct {
	Kind   DecisionKind
	Node   vfsid.NodeID
	Groups []vfsid.GroupID
}

// ResponseAggregator collects per-node results from a scatter-gather fan-out,
// keeping successful responses and per-node error strings separate so a
// partial failure doesn't discard the responses that did come back
// (spec.md §4.4).
type ResponseAggregator[T any] struct {
	responses []T
	errors    []string
}

// NewResponseAggregator returns an empty aggregator.
func NewResponseAggregator[T any]() *ResponseAggregator[T] {
	return &ResponseAggregator[T]{}
}

// AddResponse records a successful per-node response.
func (a *ResponseAggregator[T]) AddResponse(r T) { a.responses = append(a.responses, r) }

// AddError records a per-node failure without aborting the fan-out.
func (a *ResponseAggregator[T]) AddError(msg string) { a.errors = append(a.errors, msg) }

// Responses returns every response collected so far.
func (a *ResponseAggregator[T]) Responses() []T { return a.responses }

// Errors returns every per-node error message collected so far.
func (a *ResponseAggregator[T]) Errors() []string { return a.errors }

// HasErrors reports whether any node failed.
func (a *ResponseAggregator[T]) HasErrors() bool { return len(a.errors) > 0 }
