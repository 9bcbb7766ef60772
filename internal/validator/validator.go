// Package validator orchestrates the Serial Safety Net commit pipeline:
// admitting a commit intent, computing its exclusion window against
// every key it touches, deciding commit or abort, and applying the
// outcome to durable state.
//
// The SSN bound math (ssnRead tightening eta and pi, ssnWrite tightening eta)
// mirrors original_source/dssn/Coordinator.h's ssnRead/ssnWrite helpers,
// moved here because the validator — not the originating coordinator —
// is the one authoritative place a shard computes these bounds.
//
// Pipeline shape follows original_source/dssn/DistributedTxSet.h's
// "one producer, one consumer" contract literally: Submit is the
// producer, classifying and enqueuing a CI; a single serializer
// goroutine is the consumer, pulling the next ready CI off the
// distributed tx set in commit order. The expensive per-CI work
// (exclusion-window computation and applying the outcome) is then
// fanned out to a worker pool, with an inline fallback when the pool's
// queue is full — the same fallback shape the teacher's
// internal/service/storage_service.go uses for its background flush
// trigger, so a burst of ready CIs never silently drops work.
package validator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nliao6622/QuantaDB-1/internal/metrics"
	"github.com/nliao6622/QuantaDB-1/internal/model"
	"github.com/nliao6622/QuantaDB-1/internal/peerexchange"
	"github.com/nliao6622/QuantaDB-1/internal/reaper"
	"github.com/nliao6622/QuantaDB-1/internal/sequencer"
	"github.com/nliao6622/QuantaDB-1/internal/ssn/activetxset"
	"github.com/nliao6622/QuantaDB-1/internal/ssn/distributedtxset"
	"github.com/nliao6622/QuantaDB-1/internal/storage/tuplestore"
	"github.com/nliao6622/QuantaDB-1/internal/txlog"
	"github.com/nliao6622/QuantaDB-1/internal/util/workerpool"
)

// Validator is the per-shard SSN validation pipeline.
type Validator struct {
	seq    *sequencer.Sequencer
	tuples *tuplestore.TupleStore
	active *activetxset.ActiveTxSet
	dtxSet *distributedtxset.DistributedTxSet
	log    *txlog.TxLog
	reaper *reaper.Reaper
	peers  *peerexchange.PeerExchange
	pool   *workerpool.WorkerPool
	logger *zap.Logger
	m      *metrics.Metrics

	pollInterval    time.Duration
	peerWaitTimeout time.Duration
	stopOnce        sync.Once
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// Deps bundles the Validator's collaborators. Peers may be nil when
// this shard never participates in cross-shard CIs.
type Deps struct {
	Sequencer       *sequencer.Sequencer
	Tuples          *tuplestore.TupleStore
	Active          *activetxset.ActiveTxSet
	DtxSet          *distributedtxset.DistributedTxSet
	Log             *txlog.TxLog
	Reaper          *reaper.Reaper
	Peers           *peerexchange.PeerExchange
	Pool            *workerpool.WorkerPool
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	PollInterval    time.Duration
	PeerWaitTimeout time.Duration
}

// New creates a Validator from deps.
func New(deps Deps) *Validator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	poll := deps.PollInterval
	if poll <= 0 {
		poll = time.Millisecond
	}
	peerWait := deps.PeerWaitTimeout
	if peerWait <= 0 {
		peerWait = 5 * time.Second
	}
	return &Validator{
		seq:             deps.Sequencer,
		tuples:          deps.Tuples,
		active:          deps.Active,
		dtxSet:          deps.DtxSet,
		log:             deps.Log,
		reaper:          deps.Reaper,
		peers:           deps.Peers,
		pool:            deps.Pool,
		logger:          logger,
		m:               deps.Metrics,
		pollInterval:    poll,
		peerWaitTimeout: peerWait,
		stopCh:          make(chan struct{}),
	}
}

// Submit admits a commit intent into the pipeline: it mints a CTS if
// the caller has not already assigned one (a cross-shard CI carries
// the CTS its originating shard minted), records a PENDING entry in
// the TxLog so a crash before conclude still leaves this CTS
// recoverable via FirstPending/NextPending, then classifies and
// enqueues it into the distributed tx set. It does not block on
// validation.
func (v *Validator) Submit(tx *model.TxEntry) bool {
	if tx.CTS == 0 {
		tx.CTS = v.seq.GetCTS()
	}
	tx.CIState = model.CIQueued
	v.reaper.TrackInFlight(tx.CTS)

	if v.m != nil {
		v.m.CIsSubmittedTotal.Inc()
	}

	tx.TxState = model.TxPending
	if err := v.log.Append(tx); err != nil {
		v.logger.Error("validator: failed to log intake", zap.Uint64("cts", tx.CTS), zap.Error(err))
	}

	if !v.dtxSet.Add(tx) {
		v.logger.Warn("validator: distributedtxset queue full, aborting", zap.Uint64("cts", tx.CTS))
		v.finish(tx, model.TxAbort, false, time.Now())
		return false
	}
	return true
}

// Run starts the single serializer goroutine that drains ready CIs in
// commit order.
func (v *Validator) Run() {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		for {
			select {
			case <-v.stopCh:
				return
			default:
			}

			tx := v.dtxSet.FindReadyTx(v.active)
			if tx == nil {
				time.Sleep(v.pollInterval)
				continue
			}

			tx.CIState = model.CITransient
			if !v.active.Add(tx) {
				v.logger.Warn("validator: active set saturated, key tracking reverted", zap.Uint64("cts", tx.CTS))
			}
			tx.CIState = model.CIInProgress
			v.dispatch(tx)
		}
	}()
}

// Stop halts the serializer loop.
func (v *Validator) Stop() {
	v.stopOnce.Do(func() { close(v.stopCh) })
	v.wg.Wait()
}

// dispatch runs validate+conclude on the worker pool, falling back to
// inline execution when the pool's queue is full.
func (v *Validator) dispatch(tx *model.TxEntry) {
	task := workerpool.Task{
		ID: fmt.Sprintf("ci-%d", tx.CTS),
		Fn: func(ctx context.Context) error {
			v.validate(tx)
			return nil
		},
	}

	if v.pool == nil || !v.pool.TrySubmit(task) {
		v.validate(tx)
	}
}

// validate computes tx's exclusion window against every key in its
// read and write sets, per Coordinator.h's ssnRead/ssnWrite, then
// concludes commit or abort.
func (v *Validator) validate(tx *model.TxEntry) {
	start := time.Now()

	for i := range tx.ReadSet {
		r := &tx.ReadSet[i]
		meta, ok := v.tuples.GetMeta(r.Key)
		if !ok {
			continue
		}
		v.ssnRead(tx, meta)
		if tx.IsExclusionViolated() {
			v.finish(tx, model.TxAbort, true, start)
			return
		}
	}

	for i := range tx.WriteSet {
		w := &tx.WriteSet[i]
		meta, ok := v.tuples.GetMeta(w.Key)
		if ok {
			v.ssnWrite(tx, meta)
		}
		if tx.IsExclusionViolated() {
			v.finish(tx, model.TxAbort, true, start)
			return
		}
	}

	if !tx.IsLocal() && v.peers != nil {
		if !v.crossShardMerge(tx, start) {
			return
		}
	}

	v.finish(tx, model.TxCommit, false, start)
}

// crossShardMerge broadcasts this shard's partial SSN bounds for a
// cross-shard CI and blocks until every other shard named in
// tx.ShardSet has reported its own view (or peerWaitTimeout elapses),
// folding each peer's eta/pi into tx's exclusion window as it arrives
// and re-checking the exclusion test on every update. Per the meet
// over all peers' local decisions, the final outcome cannot be decided
// from a single non-blocking check. Returns false if it already
// concluded tx (abort, conflict or alert) — the caller must not call finish
// again in that case.
func (v *Validator) crossShardMerge(tx *model.TxEntry, start time.Time) bool {
	v.peers.Notify(tx.CTS, tx.Eta, tx.Pi, model.TxCommit)

	selfShard := v.peers.ShardID()
	expected := 0
	for _, s := range tx.ShardSet {
		if s != selfShard {
			expected++
		}
	}

	deadline := time.Now().Add(v.peerWaitTimeout)
	for {
		state, eta, pi, reported, ok := v.peers.MergedView(tx.CTS)
		if ok {
			if eta > tx.Eta {
				tx.Eta = eta
			}
			if pi < tx.Pi {
				tx.Pi = pi
			}
			if state == model.TxConflict {
				v.finish(tx, model.TxConflict, false, start)
				return false
			}
			if tx.IsExclusionViolated() {
				v.finish(tx, model.TxAbort, true, start)
				return false
			}
			if reported >= expected {
				return true
			}
		}
		if time.Now().After(deadline) {
			v.logger.Warn("validator: timed out waiting for peer shards", zap.Uint64("cts", tx.CTS))
			v.finish(tx, model.TxAlert, false, start)
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// finish concludes tx and records its outcome against the duration
// since validation began.
func (v *Validator) finish(tx *model.TxEntry, outcome model.TxState, exclusionViolation bool, start time.Time) {
	v.conclude(tx, outcome)
	if v.m == nil {
		return
	}
	elapsed := time.Since(start).Seconds()
	if outcome == model.TxCommit {
		v.m.RecordCommit(elapsed)
	} else {
		v.m.RecordAbort(elapsed, exclusionViolation)
	}
}

// ssnRead tightens tx's exclusion window for a key it read, mirroring
// Coordinator.h's ssnRead: eta rises to at least the tuple's pStamp
// (not cStamp — a later reader's commit can raise pStamp well past
// cStamp via MaximizeEta, and using the stale cStamp here would let a
// CI commit that should have been excluded), and if the tuple has
// already been superseded (sStamp is set), pi falls to at most that
// sStamp.
func (v *Validator) ssnRead(tx *model.TxEntry, meta model.SSNMeta) {
	if meta.PStamp > tx.Eta {
		tx.Eta = meta.PStamp
	}
	if meta.SStamp != model.TSMax && meta.SStamp < tx.Pi {
		tx.Pi = meta.SStamp
	}
}

// ssnWrite tightens tx's exclusion window for a key it writes,
// mirroring Coordinator.h's ssnWrite: eta rises to at least the
// tuple's pStampPrev, the highest pStamp any reader observed before
// this write superseded it.
func (v *Validator) ssnWrite(tx *model.TxEntry, meta model.SSNMeta) {
	if meta.PStampPrev > tx.Eta {
		tx.Eta = meta.PStampPrev
	}
}

// conclude finalizes tx with outcome, applying writes to the
// TupleStore on commit, logging the outcome, and releasing tx from the
// active set and the reaper's in-flight tracking.
func (v *Validator) conclude(tx *model.TxEntry, outcome model.TxState) {
	tx.TxState = outcome

	if outcome == model.TxCommit {
		for _, w := range tx.WriteSet {
			if _, ok := v.tuples.GetMeta(w.Key); ok {
				v.tuples.Put(w.Key, w.Value, tx.CTS, tx.Pi)
			} else {
				v.tuples.PutNew(w.Key, w.Value, tx.CTS, tx.Pi)
			}
		}
		for _, r := range tx.ReadSet {
			v.tuples.MaximizeEta(r.Key, tx.CTS)
		}
	}

	tx.CIState = model.CIConcluded
	if err := v.log.Append(tx); err != nil {
		v.logger.Error("validator: failed to log conclusion", zap.Uint64("cts", tx.CTS), zap.Error(err))
	}

	v.active.Remove(tx)
	v.reaper.Conclude(tx.CTS)

	v.logger.Debug("ci concluded", zap.Uint64("cts", tx.CTS), zap.String("outcome", outcome.String()))
}
