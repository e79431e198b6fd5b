// Package vmetrics exposes the gateway and consensus daemon's Prometheus
// collectors. It follows the same "package-level vars registered once,
// exposed through promhttp.Handler()" pattern reva's grpc/http metrics
// services use, rather than threading a registry object through every
// constructor (spec.md §3, ambient observability).
package vmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProposalsTotal counts consensus proposals processed per group, split
	// by outcome (committed, rejected).
	ProposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vraftls",
		Subsystem: "consensus",
		Name:      "proposals_total",
		Help:      "Consensus proposals processed, by group and outcome.",
	}, []string{"group", "outcome"})

	// ProposalLatencySeconds observes the time from Propose() to a durable
	// Response, per group.
	ProposalLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vraftls",
		Subsystem: "consensus",
		Name:      "proposal_latency_seconds",
		Help:      "Time from Propose() to a durable Response.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"group"})

	// LogAppendBytes observes the serialized size of entries passed to
	// LogStore.Append, per group.
	LogAppendBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vraftls",
		Subsystem: "logstore",
		Name:      "append_bytes",
		Help:      "Size in bytes of entries written per Append call.",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{"group"})

	// SnapshotsTotal counts snapshot builds and installs, per group and
	// direction (build, install).
	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vraftls",
		Subsystem: "consensus",
		Name:      "snapshots_total",
		Help:      "Snapshots built or installed, by group and direction.",
	}, []string{"group", "direction"})

	// TwoPhaseCommitsTotal counts 2PC transactions coordinated by
	// pkg/router, by outcome (committed, aborted).
	TwoPhaseCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vraftls",
		Subsystem: "router",
		Name:      "two_phase_commits_total",
		Help:      "Two-phase commit transactions, by outcome.",
	}, []string{"outcome"})

	// RouteDecisionsTotal counts routing decisions made by pkg/router, by
	// kind (single, local_only, scatter_gather, two_phase_commit).
	RouteDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vraftls",
		Subsystem: "router",
		Name:      "route_decisions_total",
		Help:      "Routing decisions made, by kind.",
	}, []string{"kind"})

	// GatewayRequestsTotal counts LSP requests handled by pkg/gateway, by
	// method and result (ok or error, as returned by the method's handler).
	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vraftls",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "LSP requests dispatched, by method and result.",
	}, []string{"method", "result"})

	// GatewayRequestLatencySeconds observes the time the gateway server
	// spends handling each request, by method.
	GatewayRequestLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vraftls",
		Subsystem: "gateway",
		Name:      "request_latency_seconds",
		Help:      "Time spent handling an LSP request, by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// AnalyzersRunning tracks the number of live analyzer processes per
	// language. The pool increments it on spawn and decrements it only in
	// ShutdownAll; an analyzer that exits on its own is not subtracted.
	AnalyzersRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vraftls",
		Subsystem: "lspproxy",
		Name:      "analyzers_running",
		Help:      "Analyzer processes currently running, by language.",
	}, []string{"language"})
)

// Handler exposes the default registry in the Prometheus text exposition
// format, mounted the same way reva's prometheussvc mounts promhttp.Handler()
// under an httpsvcs prefix.
func Handler() http.Handler {
	return promhttp.Handler()
}
