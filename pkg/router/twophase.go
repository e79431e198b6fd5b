package router

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vmetrics"
	"github.com/vraftls/vraftls/pkg/wireerr"
)

// txnTTL bounds how long an in-flight transaction record survives without a
// terminal Commit/Abort; past this the record is dropped from the cache
// (spec.md §4.4). No error is reported when a record expires.
const txnTTL = 60 * time.Second

// GroupParticipant is the per-group RPC surface a two-phase commit needs.
// The caller supplies the implementation; pkg/router only depends on the
// interface so it stays free of transport concerns.
type GroupParticipant interface {
	// Prepare asks group to tentatively stage the transaction txnID and reports
	// whether it is able to commit if asked.
	Prepare(ctx context.Context, txnID string, group vfsid.GroupID) (bool, error)
	// Commit durably applies a previously prepared txnID on group.
	Commit(ctx context.Context, txnID string, group vfsid.GroupID) error
	// Abort discards a previously prepared txnID on group.
	Abort(ctx context.Context, txnID string, group vfsid.GroupID) error
}

// txnState is the lifecycle state of an in-flight transaction record.
type txnState int

const (
	txnPreparing txnState = iota
	txnPrepared
	txnCommitting
	txnCommitted
	txnAborting
	txnAborted
)

// txnRecord is the coordinator's bookkeeping for one in-flight transaction.
type txnRecord struct {
	groups []vfsid.GroupID
	state  txnState
}

// Coordinator drives two-phase commits across consensus groups: prepare
// every participant, commit only if all of them voted yes, abort otherwise
// (spec.md §4.4). In-flight transaction records are held in a TTL cache so
// a coordinator crash mid-transaction doesn't leak state forever.
type Coordinator struct {
	participant GroupParticipant
	inFlight    *ttlcache.Cache
}

// NewCoordinator returns a coordinator that drives 2PC RPCs through participant.
func NewCoordinator(participant GroupParticipant) *Coordinator {
	cache := ttlcache.NewCache()
	cache.SetTTL(txnTTL)
	return &Coordinator{participant: participant, inFlight: cache}
}

// Close releases the coordinator's background expiry goroutine.
func (c *Coordinator) Close() error { return c.inFlight.Close() }

// Run executes a full two-phase commit across groups: prepare all
// (concurrently), commit all if every prepare voted yes, otherwise abort
// every group that was asked to prepare (spec.md §4.4). It returns
// wireerr.TransactionAborted if any participant refused prepare, or the
// first transport error encountered.
func (c *Coordinator) Run(ctx context.Context, groups []vfsid.GroupID) error {
	txnID := uuid.NewString()
	c.inFlight.Set(txnID, &txnRecord{groups: groups, state: txnPreparing})
	defer c.inFlight.Remove(txnID)

	ok, err := c.prepareAll(ctx, txnID, groups)
	if err != nil {
		c.abortAll(context.Background(), txnID, groups)
		vmetrics.TwoPhaseCommitsTotal.WithLabelValues("aborted").Inc()
		return err
	}
	if !ok {
		c.abortAll(context.Background(), txnID, groups)
		vmetrics.TwoPhaseCommitsTotal.WithLabelValues("aborted").Inc()
		return wireerr.TransactionAborted("participant refused prepare")
	}

	c.inFlight.Set(txnID, &txnRecord{groups: groups, state: txnCommitting})
	if err := c.commitAll(ctx, txnID, groups); err != nil {
		vmetrics.TwoPhaseCommitsTotal.WithLabelValues("aborted").Inc()
		return err
	}
	c.inFlight.Set(txnID, &txnRecord{groups: groups, state: txnCommitted})
	vmetrics.TwoPhaseCommitsTotal.WithLabelValues("committed").Inc()
	return nil
}

func (c *Coordinator) prepareAll(ctx context.Context, txnID string, groups []vfsid.GroupID) (bool, error) {
	g, gctx := errgroup.WithContext(ctx)
	votes := make([]bool, len(groups))
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			vote, err := c.participant.Prepare(gctx, txnID, group)
			if err != nil {
				return err
			}
			votes[i] = vote
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, v := range votes {
		if !v {
			return false, nil
		}
	}
	return true, nil
}

func (c *Coordinator) commitAll(ctx context.Context, txnID string, groups []vfsid.GroupID) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, group := range groups {
		group := group
		g.Go(func() error { return c.participant.Commit(gctx, txnID, group) })
	}
	return g.Wait()
}

// abortAll best-effort aborts every group; a participant that never
// prepared simply no-ops. Failures are not propagated: abort is already the
// failure path.
func (c *Coordinator) abortAll(ctx context.Context, txnID string, groups []vfsid.GroupID) {
	var g errgroup.Group
	for _, group := range groups {
		group := group
		g.Go(func() error {
			_ = c.participant.Abort(ctx, txnID, group)
			return nil
		})
	}
	_ = g.Wait()
}
