// Package sequencer hands out commit timestamps (CTS) to incoming commit
// intents.
package sequencer

import (
	"go.uber.org/zap"

	"github.com/nliao6622/QuantaDB-1/internal/clustertime"
)

// DefaultDelta is added to every minted CTS so that a CI is guaranteed
// to carry a timestamp beyond any TS an in-flight CI could already have
// observed from the same Clock, closing the race window Sequencer.cc
// guards against with SEQUENCER_DELTA. Matches the SEQUENCER_DELTA
// default of 1000 ticks.
const DefaultDelta = 1000

// Sequencer mints strictly-increasing CTS values for this shard.
type Sequencer struct {
	clock  *clustertime.Clock
	delta  uint64
	logger *zap.Logger
}

// New creates a Sequencer backed by clock, using DefaultDelta.
func New(clock *clustertime.Clock, logger *zap.Logger) *Sequencer {
	return NewWithDelta(clock, DefaultDelta, logger)
}

// NewWithDelta creates a Sequencer with an explicit SEQUENCER_DELTA.
func NewWithDelta(clock *clustertime.Clock, delta uint64, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delta == 0 {
		delta = DefaultDelta
	}
	return &Sequencer{clock: clock, delta: delta, logger: logger}
}

// GetCTS mints a new commit timestamp.
func (s *Sequencer) GetCTS() uint64 {
	cts := s.clock.NowDelta(s.delta)
	s.logger.Debug("minted cts", zap.Uint64("cts", cts))
	return cts
}
