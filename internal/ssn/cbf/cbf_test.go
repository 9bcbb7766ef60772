package cbf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBF_AddContains(t *testing.T) {
	c := New(1024, 255)

	assert.False(t, c.Contains([]byte("alice")))

	ok := c.Add([]byte("alice"))
	require.True(t, ok)
	assert.True(t, c.Contains([]byte("alice")))
	assert.False(t, c.Contains([]byte("bob")))
}

func TestCBF_RemoveIsBalanced(t *testing.T) {
	c := New(1024, 255)
	key := []byte("alice")

	c.Add(key)
	c.Add(key)
	assert.EqualValues(t, 2, c.Count(key))

	c.Remove(key)
	assert.EqualValues(t, 1, c.Count(key))
	assert.True(t, c.Contains(key))

	c.Remove(key)
	assert.EqualValues(t, 0, c.Count(key))
	assert.False(t, c.Contains(key))
}

func TestCBF_NoFalseNegatives(t *testing.T) {
	c := New(64, 255)
	keys := [][]byte{[]byte("k1"), []byte("k2"), []byte("k3"), []byte("k4"), []byte("k5")}
	for _, k := range keys {
		c.Add(k)
	}
	for _, k := range keys {
		assert.True(t, c.Contains(k), "no false negatives allowed for %s", k)
	}
}

func TestCBF_SaturatesAtMaxCount(t *testing.T) {
	c := New(8, 2)
	key := []byte("hot")

	assert.True(t, c.Add(key))
	assert.True(t, c.Add(key))
	// third add saturates both counters at maxCount=2
	assert.False(t, c.Add(key))
	assert.EqualValues(t, 2, c.Count(key))
}

func TestCBF_Clear(t *testing.T) {
	c := New(16, 255)
	c.Add([]byte("x"))
	c.Clear()
	assert.False(t, c.Contains([]byte("x")))
}

func TestCBF_RemoveNeverUnderflows(t *testing.T) {
	c := New(16, 255)
	key := []byte("x")
	c.Remove(key)
	assert.EqualValues(t, 0, c.Count(key))
}

func TestCBF_AddRevertsPartialIncrementOnOverflow(t *testing.T) {
	// size=1 forces both of a key's hash positions onto the same slot,
	// so the second increment always overflows a maxCount=1 filter.
	c := New(1, 1)
	key := []byte("only-slot")

	ok := c.Add(key)
	assert.False(t, ok)
	assert.EqualValues(t, 0, c.Count(key), "a failed Add must leave no partial increment behind")
	assert.False(t, c.Contains(key))
}

func TestCBF_SaturationRisesWithOccupancy(t *testing.T) {
	c := New(1024, 255)
	assert.Zero(t, c.Saturation())

	c.Add([]byte("x"))
	assert.Greater(t, c.Saturation(), 0.0)
	assert.Less(t, c.Saturation(), 1.0)
}
