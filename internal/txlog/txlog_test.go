package txlog

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nliao6622/QuantaDB-1/internal/model"
)

func newTestLog(t *testing.T) *TxLog {
	dir := t.TempDir()
	log, err := New(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestTxLog_AppendAndGetTxState(t *testing.T) {
	log := newTestLog(t)

	tx := model.NewTxEntry()
	tx.CTS = 42
	tx.TxState = model.TxPending

	require.NoError(t, log.Append(tx))

	state, ok := log.GetTxState(42)
	require.True(t, ok)
	assert.Equal(t, model.TxPending, state)
}

func TestTxLog_PendingCIsAreEnumerable(t *testing.T) {
	log := newTestLog(t)

	for _, cts := range []uint64{10, 30, 20} {
		tx := model.NewTxEntry()
		tx.CTS = cts
		tx.TxState = model.TxPending
		require.NoError(t, log.Append(tx))
	}

	first, ok, err := log.FirstPending()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 10, first.CTS)

	second, ok, err := log.NextPending(10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 20, second.CTS)

	third, ok, err := log.NextPending(20)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 30, third.CTS)

	_, ok, err = log.NextPending(30)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTxLog_ConcludedCIsAreNotPending(t *testing.T) {
	log := newTestLog(t)

	tx := model.NewTxEntry()
	tx.CTS = 1
	tx.TxState = model.TxPending
	require.NoError(t, log.Append(tx))

	tx.TxState = model.TxCommit
	require.NoError(t, log.Append(tx))

	_, ok, err := log.FirstPending()
	require.NoError(t, err)
	assert.False(t, ok)

	state, ok := log.GetTxState(1)
	require.True(t, ok)
	assert.Equal(t, model.TxCommit, state)
}

func TestTxLog_RecoversPendingCIsAfterRestart(t *testing.T) {
	dir := t.TempDir()
	log, err := New(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)

	tx := model.NewTxEntry()
	tx.CTS = 99
	tx.TxState = model.TxPending
	require.NoError(t, log.Append(tx))
	require.NoError(t, log.Close())

	reopened, err := New(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)
	defer reopened.Close()

	first, ok, err := reopened.FirstPending()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 99, first.CTS)
}

func TestTxLog_ChunkFileNameIsSeqDotLog(t *testing.T) {
	dir := t.TempDir()
	log, err := New(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)
	defer log.Close()

	tx := model.NewTxEntry()
	tx.CTS = 1
	require.NoError(t, log.Append(tx))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0.log", entries[0].Name())
}

func TestTxLog_TrimDropsConcludedUpToCTS(t *testing.T) {
	log := newTestLog(t)

	for _, cts := range []uint64{1, 2, 3} {
		tx := model.NewTxEntry()
		tx.CTS = cts
		tx.TxState = model.TxPending
		require.NoError(t, log.Append(tx))
	}

	log.Trim(2)

	first, ok, err := log.FirstPending()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 3, first.CTS)
}
