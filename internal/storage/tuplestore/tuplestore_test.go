package tuplestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nliao6622/QuantaDB-1/internal/model"
)

func TestTupleStore_PutNewThenGet(t *testing.T) {
	s := New()
	key := []byte("k1")

	s.PutNew(key, []byte("v1"), 100, 200)

	value, ok := s.GetValue(key)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)

	meta, ok := s.GetMeta(key)
	require.True(t, ok)
	assert.EqualValues(t, 100, meta.CStamp)
	assert.EqualValues(t, 100, meta.PStamp)
	assert.EqualValues(t, model.TSNever, meta.PStampPrev)
	assert.EqualValues(t, 200, meta.SStampPrev)
	assert.EqualValues(t, 100, meta.SStamp)
}

func TestTupleStore_PutOverwritesAndCapturesPStampPrev(t *testing.T) {
	s := New()
	key := []byte("k1")
	s.PutNew(key, []byte("v1"), 100, 200)

	ok := s.Put(key, []byte("v2"), 300, 400)
	require.True(t, ok)

	value, _ := s.GetValue(key)
	assert.Equal(t, []byte("v2"), value)

	meta, _ := s.GetMeta(key)
	assert.EqualValues(t, 300, meta.CStamp)
	assert.EqualValues(t, 100, meta.PStampPrev, "pStampPrev must capture the prior pStamp")
	assert.EqualValues(t, 300, meta.PStamp)
	assert.EqualValues(t, 400, meta.SStampPrev)
	assert.EqualValues(t, 300, meta.SStamp)
}

func TestTupleStore_PutOnMissingKeyFails(t *testing.T) {
	s := New()
	ok := s.Put([]byte("absent"), []byte("v"), 1, 2)
	assert.False(t, ok)
}

func TestTupleStore_MaximizeEtaOnlyRaises(t *testing.T) {
	s := New()
	key := []byte("k1")
	s.PutNew(key, []byte("v1"), 100, 200)

	s.MaximizeEta(key, 50)
	meta, _ := s.GetMeta(key)
	assert.EqualValues(t, 100, meta.PStamp, "lower eta must not lower pStamp")

	s.MaximizeEta(key, 500)
	meta, _ = s.GetMeta(key)
	assert.EqualValues(t, 500, meta.PStamp)
}

func TestTupleStore_RemoveTombstones(t *testing.T) {
	s := New()
	key := []byte("k1")
	s.PutNew(key, []byte("v1"), 100, 200)

	ok := s.Remove(key, model.SSNMeta{CStamp: 300, IsTombstone: true})
	require.True(t, ok)

	_, found := s.GetValue(key)
	assert.False(t, found)

	meta, found := s.GetMeta(key)
	require.True(t, found)
	assert.EqualValues(t, 300, meta.CStamp)
}

func TestTupleStore_GCTombstonesOnlyBelowLowWater(t *testing.T) {
	s := New()
	s.PutNew([]byte("live"), []byte("v"), 100, 200)

	s.PutNew([]byte("old-tombstone"), []byte("v"), 10, 20)
	s.Remove([]byte("old-tombstone"), model.SSNMeta{CStamp: 50, IsTombstone: true})

	s.PutNew([]byte("new-tombstone"), []byte("v"), 10, 20)
	s.Remove([]byte("new-tombstone"), model.SSNMeta{CStamp: 900, IsTombstone: true})

	removed := s.GCTombstones(100)
	assert.Equal(t, 1, removed)

	_, found := s.GetMeta([]byte("old-tombstone"))
	assert.False(t, found, "tombstone at or below low water must be gone")

	_, found = s.GetMeta([]byte("new-tombstone"))
	assert.True(t, found, "tombstone above low water must survive")

	_, found = s.GetMeta([]byte("live"))
	assert.True(t, found, "live tuple must survive a GC pass")
}
