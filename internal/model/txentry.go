package model

// TSMax is the reserved sentinel meaning "unknown" or "still open" for an
// sStamp that has not yet been overwritten.
const TSMax uint64 = ^uint64(0)

// TSNever is the reserved sentinel meaning "never" (e.g. pStampPrev of the
// very first version of a key).
const TSNever uint64 = 0

// CIState tracks a commit intent's position in the validation pipeline.
// Numbering matches original_source/dssn/TXEntry.h's TX_CI_* enum so that a
// CIState value round-trips across a mixed-version cluster.
type CIState uint32

const (
	CIUnqueued   CIState = 1
	CIQueued     CIState = 2
	CIWaiting    CIState = 3
	CITransient  CIState = 4
	CIInProgress CIState = 5
	CIConcluded  CIState = 6
)

func (s CIState) String() string {
	switch s {
	case CIUnqueued:
		return "UNQUEUED"
	case CIQueued:
		return "QUEUED"
	case CIWaiting:
		return "WAITING"
	case CITransient:
		return "TRANSIENT"
	case CIInProgress:
		return "INPROGRESS"
	case CIConcluded:
		return "CONCLUDED"
	default:
		return "UNKNOWN"
	}
}

// TxState is the commit/abort outcome of a commit intent. Numbering matches
// original_source/dssn/TXEntry.h's TX_* enum.
type TxState uint32

const (
	TxPending  TxState = 1
	TxAbort    TxState = 2
	TxCommit   TxState = 3
	TxAlert    TxState = 4
	TxConflict TxState = 5
)

func (s TxState) String() string {
	switch s {
	case TxPending:
		return "PENDING"
	case TxAbort:
		return "ABORT"
	case TxCommit:
		return "COMMIT"
	case TxAlert:
		return "ALERT"
	case TxConflict:
		return "CONFLICT"
	default:
		return "UNKNOWN"
	}
}

// Meet combines this shard's view of a cross-shard CI with a peer's view:
// meet(PENDING, X) = X, meet(ABORT, X) = ABORT for any X other than
// COMMIT, meet(COMMIT, COMMIT) = COMMIT, and meet(ABORT, COMMIT) or any
// other mix => CONFLICT.
func Meet(a, b TxState) TxState {
	if a == TxPending {
		return b
	}
	if b == TxPending {
		return a
	}
	if a == TxAbort || b == TxAbort {
		if a == TxCommit || b == TxCommit {
			return TxConflict
		}
		return TxAbort
	}
	if a == TxCommit && b == TxCommit {
		return TxCommit
	}
	return TxConflict
}

// SSNMeta is the per-tuple-version metadata the SSN algorithm reads and
// propagates.
type SSNMeta struct {
	CStamp      uint64
	PStamp      uint64
	SStamp      uint64
	PStampPrev  uint64
	SStampPrev  uint64
	IsTombstone bool
}

// ReadSetEntry is a borrowed reference into a CI's read set: the key read,
// plus the SSNMeta snapshot the caller observed when it executed the read.
type ReadSetEntry struct {
	Key          []byte
	MetaSnapshot SSNMeta
}

// WriteSetEntry is a borrowed reference into a CI's write set.
type WriteSetEntry struct {
	Key          []byte
	Value        []byte
	MetaSnapshot SSNMeta
}

// TxEntry is a single commit intent flowing through the validation
// pipeline. Field names and enum values mirror
// original_source/dssn/TXEntry.h.
type TxEntry struct {
	CTS     uint64
	Eta     uint64
	Pi      uint64
	TxState TxState
	CIState CIState

	ReadSet  []ReadSetEntry
	WriteSet []WriteSetEntry
	ShardSet []uint64

	// SenderPeerID identifies the shard that originated this CI on the
	// intake wire.
	SenderPeerID uint64

	// PeerTxState holds this shard's locally-computed commit/abort
	// decision before peer merge (cross-shard CIs only). Eta/Pi above
	// already carry this shard's partial SSN bounds and are folded
	// in place as peer views arrive.
	PeerTxState TxState
}

// NewTxEntry initializes a fresh CI with the SSN bound defaults:
// eta = 0, pi = TS_MAX.
func NewTxEntry() *TxEntry {
	return &TxEntry{
		Eta:     0,
		Pi:      TSMax,
		TxState: TxPending,
		CIState: CIUnqueued,
	}
}

// IsLocal reports whether this CI touches a single shard.
func (t *TxEntry) IsLocal() bool {
	return len(t.ShardSet) <= 1
}

// IsExclusionViolated is the SSN commit/abort test: pi <= eta means abort.
func (t *TxEntry) IsExclusionViolated() bool {
	return t.Pi <= t.Eta
}

// Keys returns the union of read and write set keys, used by the CBF-backed
// sets (ActiveTxSet, DistributedTxSet) to fingerprint a CI.
func (t *TxEntry) Keys() [][]byte {
	keys := make([][]byte, 0, len(t.ReadSet)+len(t.WriteSet))
	for _, r := range t.ReadSet {
		keys = append(keys, r.Key)
	}
	for _, w := range t.WriteSet {
		keys = append(keys, w.Key)
	}
	return keys
}
