package peerexchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nliao6622/QuantaDB-1/internal/model"
)

func TestNotification_RoundTrips(t *testing.T) {
	n := notification{CTS: 12345, PStamp: 10, SStamp: 999, SenderPeerID: 7, TxState: model.TxCommit}
	decoded, err := decodeNotification(encodeNotification(n))
	require.NoError(t, err)
	assert.Equal(t, n, decoded)
}

func TestDecodeNotification_RejectsShortMessage(t *testing.T) {
	_, err := decodeNotification([]byte{1, 2, 3})
	assert.Error(t, err)
}

func newTestPeerExchange() *PeerExchange {
	return &PeerExchange{
		views:  make(map[uint64]*peerViewState),
		notify: make(chan PeerView, 4),
		logger: zap.NewNop(),
	}
}

func TestPeerExchange_MergeAppliesMeetSemantics(t *testing.T) {
	pe := newTestPeerExchange()

	pe.ApplyPeerView(1, 2, 5, 500, model.TxCommit)
	state, eta, pi, reported, ok := pe.MergedView(1)
	require.True(t, ok)
	assert.Equal(t, model.TxCommit, state)
	assert.EqualValues(t, 5, eta)
	assert.EqualValues(t, 500, pi)
	assert.Equal(t, 1, reported)

	// a conflicting peer view for the same CTS resolves to CONFLICT
	pe.ApplyPeerView(1, 3, 1, 1000, model.TxAbort)
	state, _, _, reported, ok = pe.MergedView(1)
	require.True(t, ok)
	assert.Equal(t, model.TxConflict, state)
	assert.Equal(t, 2, reported)
}

func TestPeerExchange_MergeRaisesEtaAndLowersPi(t *testing.T) {
	pe := newTestPeerExchange()

	pe.ApplyPeerView(1, 2, 10, 900, model.TxCommit)
	pe.ApplyPeerView(1, 3, 20, 800, model.TxCommit)

	state, eta, pi, reported, ok := pe.MergedView(1)
	require.True(t, ok)
	assert.Equal(t, model.TxCommit, state)
	assert.EqualValues(t, 20, eta)
	assert.EqualValues(t, 800, pi)
	assert.Equal(t, 2, reported)
}
