package activetxset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nliao6622/QuantaDB-1/internal/model"
	"github.com/nliao6622/QuantaDB-1/internal/ssn/cbf"
)

func newTxWithKeys(keys ...string) *model.TxEntry {
	tx := model.NewTxEntry()
	for _, k := range keys {
		tx.WriteSet = append(tx.WriteSet, model.WriteSetEntry{Key: []byte(k)})
	}
	return tx
}

func TestActiveTxSet_AddDependsRemove(t *testing.T) {
	s := New()
	tx1 := newTxWithKeys("a", "b")

	assert.False(t, s.Depends(newTxWithKeys("a")))

	s.Add(tx1)
	assert.True(t, s.Depends(newTxWithKeys("a")))
	assert.True(t, s.Depends(newTxWithKeys("b")))
	assert.False(t, s.Depends(newTxWithKeys("c")))

	s.Remove(tx1)
	assert.False(t, s.Depends(newTxWithKeys("a")))
}

func TestActiveTxSet_AddRevertsEarlierKeysOnOverflow(t *testing.T) {
	// size=1 forces every key onto the same slot; "a" saturates it at
	// maxCount=2, so "b" then overflows on its very first increment.
	s := &ActiveTxSet{cbf: cbf.New(1, 2)}
	tx := newTxWithKeys("a", "b")

	ok := s.Add(tx)
	assert.False(t, ok)
	assert.False(t, s.Depends(newTxWithKeys("a")), "key a's earlier registration must be rolled back")
}

func TestActiveTxSet_DisjointTxDoesNotDepend(t *testing.T) {
	s := New()
	tx1 := newTxWithKeys("a")
	s.Add(tx1)

	tx2 := newTxWithKeys("z")
	assert.False(t, s.Depends(tx2))
}
