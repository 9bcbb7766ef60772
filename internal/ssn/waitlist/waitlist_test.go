package waitlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nliao6622/QuantaDB-1/internal/model"
)

func txWithCTS(cts uint64) *model.TxEntry {
	tx := model.NewTxEntry()
	tx.CTS = cts
	return tx
}

func TestWaitList_PushRejectsWhenFull(t *testing.T) {
	w := New(2)
	assert.True(t, w.Push(txWithCTS(1)))
	assert.True(t, w.Push(txWithCTS(2)))
	assert.False(t, w.Push(txWithCTS(3)))
	assert.Equal(t, 2, w.Len())
}

func TestWaitList_RemoveFrontIsFIFO(t *testing.T) {
	w := New(4)
	w.Push(txWithCTS(1))
	w.Push(txWithCTS(2))

	first := w.RemoveFront()
	require.NotNil(t, first)
	assert.EqualValues(t, 1, first.CTS)

	second := w.RemoveFront()
	require.NotNil(t, second)
	assert.EqualValues(t, 2, second.CTS)

	assert.Nil(t, w.RemoveFront())
}

func TestWaitList_FindReadyTxAllowsJumpingQueue(t *testing.T) {
	w := New(4)
	w.Push(txWithCTS(1))
	w.Push(txWithCTS(2))
	w.Push(txWithCTS(3))

	// only CTS 2 is "ready" even though it is not at the head
	found := w.FindReadyTx(func(tx *model.TxEntry) bool { return tx.CTS == 2 })
	require.NotNil(t, found)
	assert.EqualValues(t, 2, found.CTS)
	assert.Equal(t, 2, w.Len())

	// head is still CTS 1
	assert.EqualValues(t, 1, w.Front().CTS)
}
