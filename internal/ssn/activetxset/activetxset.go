// Package activetxset tracks the approximate membership of commit
// intents currently undergoing validation on this shard, so the
// validator can detect a new CI's dependency on one already in flight
// without taking a per-tuple lock. Grounded on
// original_source/dssn/ActiveTxSet.h.
package activetxset

import (
	"github.com/nliao6622/QuantaDB-1/internal/model"
	"github.com/nliao6622/QuantaDB-1/internal/ssn/cbf"
)

// DefaultSize matches the independent-queue CBF sizing from
// original_source/dssn/DistributedTxSet.h (2^18 eight-bit counters),
// since the active set sees the same independent-transaction traffic.
const DefaultSize uint64 = 1 << 18

// DefaultMaxCount is the saturating counter ceiling, matching the
// original's uint8 CountBloomFilter counter.
const DefaultMaxCount uint32 = 255

// ActiveTxSet is an approximate membership set of in-flight CIs,
// backed by a CountBloomFilter over the union of each CI's read and
// write keys. It supports one incrementer and any number of
// decrementer goroutines concurrently, per ActiveTxSet.h.
type ActiveTxSet struct {
	cbf *cbf.CBF
}

// New creates an empty ActiveTxSet.
func New() *ActiveTxSet {
	return &ActiveTxSet{cbf: cbf.New(DefaultSize, DefaultMaxCount)}
}

// Add registers txEntry's keys as in-flight. If any key's Add
// overflows the filter, every key already registered by this call is
// rolled back and Add reports false; the caller still proceeds with
// validation, but the CI is then not tracked as in-flight, so Depends
// does not report it as blocking other CIs that touch its keys.
func (s *ActiveTxSet) Add(txEntry *model.TxEntry) bool {
	keys := txEntry.Keys()
	for i, k := range keys {
		if !s.cbf.Add(k) {
			for _, added := range keys[:i] {
				s.cbf.Remove(added)
			}
			return false
		}
	}
	return true
}

// Remove unregisters txEntry's keys. The caller must only call Remove
// for a CI it previously and successfully Added.
func (s *ActiveTxSet) Remove(txEntry *model.TxEntry) {
	for _, k := range txEntry.Keys() {
		s.cbf.Remove(k)
	}
}

// Depends reports whether txEntry may conflict with a CI currently
// registered in the set, by testing membership of each of its keys.
// False positives are possible; false negatives are not.
func (s *ActiveTxSet) Depends(txEntry *model.TxEntry) bool {
	for _, k := range txEntry.Keys() {
		if s.cbf.Contains(k) {
			return true
		}
	}
	return false
}

// Saturation reports how full the backing filter is, per
// model.HealthMetrics.ActiveTxSetSaturation.
func (s *ActiveTxSet) Saturation() float64 {
	return s.cbf.Saturation()
}
