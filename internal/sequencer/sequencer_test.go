package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nliao6622/QuantaDB-1/internal/clustertime"
)

func TestSequencer_GetCTSIsMonotone(t *testing.T) {
	s := New(clustertime.NewClock(0, nil), nil)

	prev := s.GetCTS()
	for i := 0; i < 100; i++ {
		next := s.GetCTS()
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestSequencer_ExceedsDeltaAheadOfClock(t *testing.T) {
	clock := clustertime.NewClock(0, nil)
	s := NewWithDelta(clock, 500, nil)

	before := clock.Now()
	cts := s.GetCTS()
	assert.GreaterOrEqual(t, cts, before+500)
}
