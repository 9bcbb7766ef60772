package intake

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nliao6622/QuantaDB-1/internal/model"
)

func TestCI_RoundTrips(t *testing.T) {
	tx := model.NewTxEntry()
	tx.CTS = 777
	tx.SenderPeerID = 3
	tx.ReadSet = []model.ReadSetEntry{
		{Key: []byte("rk1"), MetaSnapshot: model.SSNMeta{CStamp: 1, PStamp: 2}},
	}
	tx.WriteSet = []model.WriteSetEntry{
		{Key: []byte("wk1"), Value: []byte("wv1"), MetaSnapshot: model.SSNMeta{CStamp: 5, IsTombstone: true}},
	}
	tx.ShardSet = []uint64{10, 20, 30}

	encoded := EncodeCI(tx)
	decoded, err := DecodeCI(bytes.NewReader(encoded))
	require.NoError(t, err)

	assert.Equal(t, tx.CTS, decoded.CTS)
	assert.Equal(t, tx.SenderPeerID, decoded.SenderPeerID)
	require.Len(t, decoded.ReadSet, 1)
	assert.Equal(t, tx.ReadSet[0].Key, decoded.ReadSet[0].Key)
	assert.Equal(t, tx.ReadSet[0].MetaSnapshot, decoded.ReadSet[0].MetaSnapshot)
	require.Len(t, decoded.WriteSet, 1)
	assert.Equal(t, tx.WriteSet[0].Value, decoded.WriteSet[0].Value)
	assert.True(t, decoded.WriteSet[0].MetaSnapshot.IsTombstone)
	assert.Equal(t, tx.ShardSet, decoded.ShardSet)
}

func TestCI_EmptySets(t *testing.T) {
	tx := model.NewTxEntry()
	tx.CTS = 1

	encoded := EncodeCI(tx)
	decoded, err := DecodeCI(bytes.NewReader(encoded))
	require.NoError(t, err)

	assert.Empty(t, decoded.ReadSet)
	assert.Empty(t, decoded.WriteSet)
	assert.Empty(t, decoded.ShardSet)
}

func TestPeerInfo_RoundTrips(t *testing.T) {
	p := PeerInfo{CTS: 5, PStamp: 10, SStamp: 20, SenderPeerID: 2, TxState: model.TxAlert}

	decoded, err := DecodePeerInfo(bytes.NewReader(EncodePeerInfo(p)))
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}
