// Package clustertime produces the monotone 64-bit timestamps the
// validator uses as commit timestamps (CTS).
//
// original_source/tools/dssn/rdtscp_test2.cc showed that a raw per-core
// rdtsc read can observe out-of-order values across cores without the
// serializing rdtscp variant. A Go process has no equivalent hazard as
// long as the low-order counter is advanced with a single atomic
// fetch-add shared by every goroutine, so that is the approach here
// instead of reading a hardware cycle counter at all.
package clustertime

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// counterBits is the width of the low-order monotone counter, and
// shardBits the width of the shard id field immediately above it:
// [ wall millis | shard id | counter ]. Embedding the shard id this
// way is what gives a CTS uniqueness across the whole cluster, not
// just within one process — two shards minting a CTS at the same
// wall-clock millisecond with the same low-order counter value still
// land on distinct timestamps.
const counterBits = 20
const shardBits = 8
const counterMask = (uint64(1) << counterBits) - 1
const shardMask = (uint64(1) << shardBits) - 1

// Clock produces strictly increasing 64-bit timestamps, unique across
// every shard in the cluster sharing the same epoch.
type Clock struct {
	counter uint64
	shardID uint64
	logger  *zap.Logger
	start   time.Time
}

// NewClock creates a Clock that embeds shardID (masked to shardBits)
// into every timestamp it mints. logger may be nil (zap.NewNop() is
// then used), matching the teacher's convention of tolerating a nil
// logger in every NewX constructor.
func NewClock(shardID uint64, logger *zap.Logger) *Clock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clock{
		shardID: shardID & shardMask,
		logger:  logger,
		start:   time.Now(),
	}
}

// Now returns a TS strictly greater than any TS previously returned by
// this Clock, with this Clock's shard id embedded in the reserved
// shardBits range.
func (c *Clock) Now() uint64 {
	n := atomic.AddUint64(&c.counter, 1)
	wall := uint64(time.Since(c.start).Milliseconds())
	return (wall << (shardBits + counterBits)) | (c.shardID << counterBits) | (n & counterMask)
}

// NowDelta returns Now() + delta, leaving room for a CI's CTS to exceed
// the largest CTS any currently in-flight CI could have already
// observed. The Sequencer uses this to apply its safety margin.
func (c *Clock) NowDelta(delta uint64) uint64 {
	return c.Now() + delta
}

// ClusterToLocal converts a TS back to its approximate wall-clock
// equivalent, for diagnostics only.
func (c *Clock) ClusterToLocal(ts uint64) time.Time {
	wallMillis := ts >> (shardBits + counterBits)
	return c.start.Add(time.Duration(wallMillis) * time.Millisecond)
}
