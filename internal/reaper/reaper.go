// Package reaper runs the background loop that establishes a
// low-water CTS below which no version of any tuple can still be
// needed by an in-flight read, then trims the TxLog and garbage
// collects tombstoned tuples up to that point.
//
// Grounded on the teacher's internal/service/compaction_service.go,
// which ran a ticker-driven background loop pulling compaction
// candidates off a heap ordered by staleness; here the heap orders
// in-flight CIs by CTS so the reaper can always find the oldest still-
// active commit timestamp in O(log n), the same role compaction's heap
// played for SSTable staleness.
package reaper

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nliao6622/QuantaDB-1/internal/metrics"
	"github.com/nliao6622/QuantaDB-1/internal/storage/tuplestore"
	"github.com/nliao6622/QuantaDB-1/internal/txlog"
)

// ctsHeap is a min-heap of in-flight commit timestamps.
type ctsHeap []uint64

func (h ctsHeap) Len() int            { return len(h) }
func (h ctsHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h ctsHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *ctsHeap) Push(x interface{}) { *h = append(*h, x.(uint64)) }
func (h *ctsHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Reaper periodically advances the low-water CTS and trims the TxLog.
type Reaper struct {
	mu       sync.Mutex
	active   ctsHeap
	inFlight map[uint64]int // cts -> count of heap entries (a CTS may be pushed once per tuple touched)

	lowWater uint64
	log      *txlog.TxLog
	tuples   *tuplestore.TupleStore
	logger   *zap.Logger
	interval time.Duration
	m        *metrics.Metrics

	lastRun time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a Reaper that trims log and garbage-collects tuples past
// their low-water mark via a background loop every interval. tuples
// may be nil (a GC pass is then skipped, for tests that only care
// about TxLog trimming).
func New(log *txlog.TxLog, tuples *tuplestore.TupleStore, interval time.Duration, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		inFlight: make(map[uint64]int),
		log:      log,
		tuples:   tuples,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// SetMetrics installs the metrics recorder used for each sweep cycle.
func (r *Reaper) SetMetrics(m *metrics.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m = m
}

// TrackInFlight registers cts as belonging to a CI currently executing
// (between admission and conclusion), so the reaper will not advance
// the low-water mark past it.
func (r *Reaper) TrackInFlight(cts uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	heap.Push(&r.active, cts)
	r.inFlight[cts]++
}

// Conclude unregisters cts once its CI has committed or aborted.
func (r *Reaper) Conclude(cts uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[cts] > 0 {
		r.inFlight[cts]--
		if r.inFlight[cts] == 0 {
			delete(r.inFlight, cts)
		}
	}
}

// Run starts the background sweep loop.
func (r *Reaper) Run() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

// sweep pops concluded CTS entries off the heap until it finds one
// still in flight (or the heap empties), establishing the new
// low-water mark, then trims the TxLog up to it.
func (r *Reaper) sweep() {
	r.mu.Lock()
	for r.active.Len() > 0 {
		next := r.active[0]
		if r.inFlight[next] > 0 {
			break
		}
		heap.Pop(&r.active)
		r.lowWater = next
	}
	lowWater := r.lowWater
	r.mu.Unlock()

	r.log.Trim(lowWater)

	var gced int
	if r.tuples != nil {
		gced = r.tuples.GCTombstones(lowWater)
	}

	r.lastRun = time.Now()
	r.logger.Debug("reaper swept", zap.Uint64("low_water", lowWater), zap.Int("tombstones_gced", gced))
	if r.m != nil {
		r.m.RecordReaperSweep(lowWater)
	}
}

// LowWater returns the current low-water CTS: no tuple version with a
// cStamp at or below this value can still be read by any in-flight CI.
func (r *Reaper) LowWater() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lowWater
}

// LagSeconds reports how long it has been since the reaper last swept,
// for model.HealthMetrics.ReaperLagSeconds.
func (r *Reaper) LagSeconds() float64 {
	if r.lastRun.IsZero() {
		return 0
	}
	return time.Since(r.lastRun).Seconds()
}

// Stop halts the background loop.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}
