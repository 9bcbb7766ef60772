// Package distributedtxset implements the three-tier holding area a
// commit intent passes through between the reorder queue and the
// active transaction set, classifying each CI as independent, cold
// dependent, or hot dependent based on how much of its key set overlaps
// already-queued CIs. Grounded on
// original_source/dssn/DistributedTxSet.h, reproduced here field for
// field (queue sizes, CBF sizing, hotThreshold) with boost's
// spsc_queue/CountBloomFilter replaced by waitlist.WaitList/cbf.CBF.
package distributedtxset

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nliao6622/QuantaDB-1/internal/model"
	"github.com/nliao6622/QuantaDB-1/internal/ssn/activetxset"
	"github.com/nliao6622/QuantaDB-1/internal/ssn/cbf"
	"github.com/nliao6622/QuantaDB-1/internal/ssn/waitlist"
)

const (
	independentQueueSize = 65536
	coldDependQueueSize   = 65536
	hotDependQueueSize    = 1000000

	independentCBFSize = 1 << 18
	coldDependCBFSize   = 1 << 15
	hotDependCBFSize    = 1 << 10

	eightBitMax  = 255
	hotCBFMax    = 100000
	hotThreshold = 255
)

// DistributedTxSet classifies incoming CIs into an independent queue, a
// cold dependent queue, and hands the validator the next CI that the
// active transaction set does not block, in the per-tier release order
// described on FindReadyTx.
type DistributedTxSet struct {
	mu sync.Mutex

	independentQueue *waitlist.WaitList
	coldDependQueue   *waitlist.WaitList
	hotDependQueue    *waitlist.WaitList

	independentCBF *cbf.CBF
	coldDependCBF   *cbf.CBF
	hotDependCBF    *cbf.CBF

	addedTxCount   uint64
	removedTxCount uint64

	logger *zap.Logger
}

// New creates an empty DistributedTxSet.
func New(logger *zap.Logger) *DistributedTxSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributedTxSet{
		independentQueue: waitlist.New(independentQueueSize),
		coldDependQueue:   waitlist.New(coldDependQueueSize),
		hotDependQueue:    waitlist.New(hotDependQueueSize),
		independentCBF:    cbf.New(independentCBFSize, eightBitMax),
		coldDependCBF:      cbf.New(coldDependCBFSize, eightBitMax),
		hotDependCBF:       cbf.New(hotDependCBFSize, hotCBFMax),
		logger:             logger,
	}
}

// dependsOnEarlier reports whether any of txEntry's keys are already
// registered in c, and the maximum observed counter value across its
// keys (used to decide hot vs. cold classification).
func dependsOnEarlier(c *cbf.CBF, txEntry *model.TxEntry) (bool, uint32) {
	var found bool
	var maxCount uint32
	for _, k := range txEntry.Keys() {
		if c.Contains(k) {
			found = true
			if n := c.Count(k); n > maxCount {
				maxCount = n
			}
		}
	}
	return found, maxCount
}

// addToCBF registers every key in txEntry with c. If any key overflows
// the filter, every key already registered by this call is rolled back
// and addToCBF reports false — the caller still enqueues txEntry, just
// without CBF-backed dependency tracking for it.
func addToCBF(c *cbf.CBF, txEntry *model.TxEntry) bool {
	keys := txEntry.Keys()
	for i, k := range keys {
		if !c.Add(k) {
			for _, added := range keys[:i] {
				c.Remove(added)
			}
			return false
		}
	}
	return true
}

// Add classifies and enqueues txEntry, reporting false if the target
// queue was full. Classification follows DistributedTxSet.h literally:
// a CI is dependent if it overlaps the cold filter at all or the hot
// filter at all; an independent CI is never checked against the
// independentCBF for dependency purposes — that filter only tracks
// independent CIs once classified, it does not gate the classification
// itself.
func (d *DistributedTxSet) Add(txEntry *model.TxEntry) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, coldCount := dependsOnEarlier(d.coldDependCBF, txEntry)
	dependsOnHot, _ := dependsOnEarlier(d.hotDependCBF, txEntry)
	dependent := coldCount > 0 || dependsOnHot

	var ok bool
	switch {
	case !dependent:
		if !addToCBF(d.independentCBF, txEntry) {
			d.logger.Warn("distributedtxset: independent cbf saturated, key tracking reverted", zap.Uint64("cts", txEntry.CTS))
		}
		ok = d.independentQueue.Push(txEntry)
	case coldCount < hotThreshold:
		if !addToCBF(d.coldDependCBF, txEntry) {
			d.logger.Warn("distributedtxset: cold cbf saturated, key tracking reverted", zap.Uint64("cts", txEntry.CTS))
		}
		ok = d.coldDependQueue.Push(txEntry)
	default:
		if !addToCBF(d.hotDependCBF, txEntry) {
			d.logger.Warn("distributedtxset: hot cbf saturated, key tracking reverted", zap.Uint64("cts", txEntry.CTS))
		}
		ok = d.hotDependQueue.Push(txEntry)
	}

	if ok {
		d.addedTxCount++
	} else {
		d.logger.Warn("distributedtxset queue full", zap.Uint64("cts", txEntry.CTS))
	}
	return ok
}

// FindReadyTx returns the next CI that activeSet does not block. The
// independent queue may release any ready entry out of order; the cold
// queue releases only its head, and only when no independent entry is
// ready; the hot queue releases only its head, and only when neither of
// the other tiers has a ready entry. The CTS of entries still waiting in
// an earlier tier is not compared with the head being released.
func (d *DistributedTxSet) FindReadyTx(activeSet *activetxset.ActiveTxSet) *model.TxEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	notBlocked := func(tx *model.TxEntry) bool { return !activeSet.Depends(tx) }

	if tx := d.independentQueue.FindReadyTx(notBlocked); tx != nil {
		d.removedTxCount++
		return tx
	}
	if tx := d.coldDependQueue.Front(); tx != nil && notBlocked(tx) {
		d.coldDependQueue.RemoveFront()
		d.removedTxCount++
		return tx
	}
	if tx := d.hotDependQueue.Front(); tx != nil && notBlocked(tx) {
		d.hotDependQueue.RemoveFront()
		d.removedTxCount++
		return tx
	}
	return nil
}

// Count returns the net number of CIs currently held across all three
// tiers.
func (d *DistributedTxSet) Count() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addedTxCount - d.removedTxCount
}

// HotDepth reports the hot queue's occupancy, used as a health signal
// via model.HealthMetrics.HotQueueDepth.
func (d *DistributedTxSet) HotDepth() int {
	return d.hotDependQueue.Len()
}
