// Package cbf implements a Counting Bloom Filter: an approximate
// membership set that tolerates false positives but never false
// negatives, used by ActiveTxSet and DistributedTxSet to track which
// keys are touched by in-flight commit intents. Grounded on
// original_source/dssn/CountBloomFilter.h.
//
// Hashing follows the teacher's sstable/bloom_filter.go double-hashing
// idiom (h(i) = h1(x) + i*h2(x), fnv64), generalized from "bool bits" to
// saturating atomic counters per CountBloomFilter.h's add/remove/contains
// contract: one incrementer goroutine and any number of decrementer
// goroutines may call concurrently.
package cbf

import (
	"hash/fnv"
	"sync/atomic"
)

// CBF is a fixed-size counting bloom filter with two hash positions and
// saturating counters capped at maxCount.
type CBF struct {
	counters []uint32
	size     uint64
	maxCount uint32
}

// New creates a CBF with the given number of counter slots and a
// saturation ceiling for each counter. maxCount=255 reproduces the
// original uint8 counter; a larger maxCount (e.g. for the hot-dependency
// filter) reproduces the wider uint32 counter DistributedTxSet.h uses for
// its hot CBF.
func New(size uint64, maxCount uint32) *CBF {
	if size == 0 {
		size = 1
	}
	return &CBF{
		counters: make([]uint32, size),
		size:     size,
		maxCount: maxCount,
	}
}

// indexes returns the two counter slots a key maps to.
func (c *CBF) indexes(key []byte) (uint64, uint64) {
	h := fnv.New64a()
	h.Write(key)
	hash1 := h.Sum64()

	h.Reset()
	h.Write(key)
	h.Write([]byte("cbf-salt"))
	hash2 := h.Sum64()

	return hash1 % c.size, (hash1 + hash2) % c.size
}

// Add increments the two counters for key, saturating at maxCount.
// Reports false and reverts any partial increment if either counter
// was already saturated, so a failed Add never leaves the key
// half-registered.
func (c *CBF) Add(key []byte) bool {
	i1, i2 := c.indexes(key)
	if !c.incr(i1) {
		return false
	}
	if !c.incr(i2) {
		c.decr(i1)
		return false
	}
	return true
}

func (c *CBF) incr(idx uint64) bool {
	for {
		old := atomic.LoadUint32(&c.counters[idx])
		if old >= c.maxCount {
			return false
		}
		if atomic.CompareAndSwapUint32(&c.counters[idx], old, old+1) {
			return true
		}
	}
}

// Remove decrements the two counters for key. The caller must only call
// Remove for a key it previously and successfully Added (CountBloomFilter.h's
// "for performance, the key is assumed to have been added" contract) —
// Remove never lets a counter underflow below zero.
func (c *CBF) Remove(key []byte) {
	i1, i2 := c.indexes(key)
	c.decr(i1)
	c.decr(i2)
}

func (c *CBF) decr(idx uint64) {
	for {
		old := atomic.LoadUint32(&c.counters[idx])
		if old == 0 {
			return
		}
		if atomic.CompareAndSwapUint32(&c.counters[idx], old, old-1) {
			return
		}
	}
}

// Contains reports whether key may be present. False positives are
// possible; false negatives are not.
func (c *CBF) Contains(key []byte) bool {
	i1, i2 := c.indexes(key)
	return atomic.LoadUint32(&c.counters[i1]) > 0 && atomic.LoadUint32(&c.counters[i2]) > 0
}

// Count returns the minimum of the two counters for key, an upper bound
// on the number of times key is currently considered "in" the set.
func (c *CBF) Count(key []byte) uint32 {
	i1, i2 := c.indexes(key)
	a := atomic.LoadUint32(&c.counters[i1])
	b := atomic.LoadUint32(&c.counters[i2])
	if a < b {
		return a
	}
	return b
}

// Clear resets every counter to zero.
func (c *CBF) Clear() {
	for i := range c.counters {
		atomic.StoreUint32(&c.counters[i], 0)
	}
}

// Size returns the number of counter slots.
func (c *CBF) Size() uint64 {
	return c.size
}

// Saturation returns the fraction of counter slots currently non-zero,
// a proxy for how full the filter is (used as a health signal, since
// a highly saturated filter degrades to a much higher false-positive
// rate).
func (c *CBF) Saturation() float64 {
	var nonzero uint64
	for i := range c.counters {
		if atomic.LoadUint32(&c.counters[i]) > 0 {
			nonzero++
		}
	}
	return float64(nonzero) / float64(len(c.counters))
}
