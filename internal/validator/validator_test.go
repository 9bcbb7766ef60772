package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nliao6622/QuantaDB-1/internal/clustertime"
	"github.com/nliao6622/QuantaDB-1/internal/model"
	"github.com/nliao6622/QuantaDB-1/internal/peerexchange"
	"github.com/nliao6622/QuantaDB-1/internal/reaper"
	"github.com/nliao6622/QuantaDB-1/internal/sequencer"
	"github.com/nliao6622/QuantaDB-1/internal/ssn/activetxset"
	"github.com/nliao6622/QuantaDB-1/internal/ssn/distributedtxset"
	"github.com/nliao6622/QuantaDB-1/internal/storage/tuplestore"
	"github.com/nliao6622/QuantaDB-1/internal/txlog"
)

func newTestValidator(t *testing.T) (*Validator, *tuplestore.TupleStore) {
	dir := t.TempDir()
	log, err := txlog.New(txlog.Config{Dir: dir}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	tuples := tuplestore.New()
	clock := clustertime.NewClock(0, nil)
	seq := sequencer.New(clock, nil)
	active := activetxset.New()
	dtxSet := distributedtxset.New(nil)
	r := reaper.New(log, tuples, time.Hour, nil)

	v := New(Deps{
		Sequencer:    seq,
		Tuples:       tuples,
		Active:       active,
		DtxSet:       dtxSet,
		Log:          log,
		Reaper:       r,
		PollInterval: time.Millisecond,
	})
	v.Run()
	t.Cleanup(v.Stop)

	return v, tuples
}

func waitForState(t *testing.T, log *txlog.TxLog, cts uint64) model.TxState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state, ok := log.GetTxState(cts); ok && state != model.TxPending {
			return state
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("cts %d never concluded", cts)
	return model.TxPending
}

func TestValidator_SoloWriteCommits(t *testing.T) {
	v, tuples := newTestValidator(t)

	tx := model.NewTxEntry()
	tx.WriteSet = []model.WriteSetEntry{{Key: []byte("k1"), Value: []byte("v1")}}
	require.True(t, v.Submit(tx))

	state := waitForState(t, v.log, tx.CTS)
	assert.Equal(t, model.TxCommit, state)

	value, ok := tuples.GetValue([]byte("k1"))
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)
}

func TestValidator_ReadAfterWriteSeesCommittedValue(t *testing.T) {
	v, tuples := newTestValidator(t)

	write := model.NewTxEntry()
	write.WriteSet = []model.WriteSetEntry{{Key: []byte("k1"), Value: []byte("v1")}}
	require.True(t, v.Submit(write))
	waitForState(t, v.log, write.CTS)

	read := model.NewTxEntry()
	read.ReadSet = []model.ReadSetEntry{{Key: []byte("k1")}}
	require.True(t, v.Submit(read))
	state := waitForState(t, v.log, read.CTS)
	assert.Equal(t, model.TxCommit, state)

	value, ok := tuples.GetValue([]byte("k1"))
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)
}

func TestValidator_ExclusionViolationAborts(t *testing.T) {
	v, _ := newTestValidator(t)

	tx := model.NewTxEntry()
	tx.CTS = 100
	tx.Eta = 500
	tx.Pi = 200 // pi <= eta: already violates exclusion before validation even starts
	tx.WriteSet = []model.WriteSetEntry{{Key: []byte("k1"), Value: []byte("v1")}}

	v.active.Add(tx)
	v.validate(tx)

	assert.Equal(t, model.TxAbort, tx.TxState)
}

func TestValidator_SsnReadTightensEtaOffPStampNotCStamp(t *testing.T) {
	v, _ := newTestValidator(t)

	meta := model.SSNMeta{CStamp: 10, PStamp: 50, SStamp: model.TSMax}
	tx := model.NewTxEntry()

	v.ssnRead(tx, meta)

	assert.EqualValues(t, 50, tx.Eta, "eta must rise to pStamp, which a later reader can raise past cStamp")
}

func TestValidator_SsnReadTightensPiToSStamp(t *testing.T) {
	v, _ := newTestValidator(t)

	meta := model.SSNMeta{CStamp: 10, PStamp: 10, SStamp: 40}
	tx := model.NewTxEntry()

	v.ssnRead(tx, meta)

	assert.EqualValues(t, 40, tx.Pi)
}

func TestValidator_SsnWriteTightensEtaOffPStampPrev(t *testing.T) {
	v, _ := newTestValidator(t)

	meta := model.SSNMeta{CStamp: 10, PStamp: 10, PStampPrev: 30, SStamp: model.TSMax}
	tx := model.NewTxEntry()

	v.ssnWrite(tx, meta)

	assert.EqualValues(t, 30, tx.Eta)
}

func TestValidator_CrossShardConflictConcludesAsConflict(t *testing.T) {
	v, _ := newTestValidator(t)

	peers, err := peerexchange.New(peerexchange.Config{NodeName: "self", BindAddr: "127.0.0.1", BindPort: 0}, 1, nil)
	require.NoError(t, err)
	defer peers.Leave(time.Second)
	v.peers = peers

	tx := model.NewTxEntry()
	tx.CTS = 500
	tx.ShardSet = []uint64{1, 2, 3}

	// shard 2 sees this CI commit, shard 3 sees it abort: the meet of
	// COMMIT and ABORT across peers is CONFLICT, not a plain exclusion abort.
	peers.ApplyPeerView(tx.CTS, 2, tx.Eta, tx.Pi, model.TxCommit)
	peers.ApplyPeerView(tx.CTS, 3, tx.Eta, tx.Pi, model.TxAbort)

	v.validate(tx)

	assert.Equal(t, model.TxConflict, tx.TxState)
}
