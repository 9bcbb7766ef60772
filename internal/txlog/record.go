package txlog

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nliao6622/QuantaDB-1/internal/model"
)

// record is the durable representation of one CI's SSN-relevant state:
// enough to answer getTxState(cts) and, for a still-pending CI, to
// replay its write set into the TupleStore on restart recovery
// (TxLog.h's getFirstPendingTx/getNextPendingTx contract).
type record struct {
	cts      uint64
	txState  model.TxState
	meta     model.SSNMeta
	peerSet  []uint64
	writeSet []model.WriteSetEntry
}

func (r *record) encode() []byte {
	var buf bytes.Buffer
	writeU64(&buf, r.cts)
	writeU32(&buf, uint32(r.txState))
	writeU64(&buf, r.meta.CStamp)
	writeU64(&buf, r.meta.PStamp)
	writeU64(&buf, r.meta.SStamp)
	writeU64(&buf, r.meta.PStampPrev)
	writeU64(&buf, r.meta.SStampPrev)
	writeBool(&buf, r.meta.IsTombstone)

	writeU32(&buf, uint32(len(r.peerSet)))
	for _, p := range r.peerSet {
		writeU64(&buf, p)
	}

	writeU32(&buf, uint32(len(r.writeSet)))
	for _, w := range r.writeSet {
		writeBytes(&buf, w.Key)
		writeBytes(&buf, w.Value)
	}

	return buf.Bytes()
}

func decodeRecord(payload []byte) (*record, error) {
	r := &bytes.Reader{}
	r.Reset(payload)

	rec := &record{}
	var err error
	if rec.cts, err = readU64(r); err != nil {
		return nil, err
	}
	var state uint32
	if state, err = readU32(r); err != nil {
		return nil, err
	}
	rec.txState = model.TxState(state)

	if rec.meta.CStamp, err = readU64(r); err != nil {
		return nil, err
	}
	if rec.meta.PStamp, err = readU64(r); err != nil {
		return nil, err
	}
	if rec.meta.SStamp, err = readU64(r); err != nil {
		return nil, err
	}
	if rec.meta.PStampPrev, err = readU64(r); err != nil {
		return nil, err
	}
	if rec.meta.SStampPrev, err = readU64(r); err != nil {
		return nil, err
	}
	if rec.meta.IsTombstone, err = readBool(r); err != nil {
		return nil, err
	}

	peerCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	rec.peerSet = make([]uint64, peerCount)
	for i := range rec.peerSet {
		if rec.peerSet[i], err = readU64(r); err != nil {
			return nil, err
		}
	}

	wsCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	rec.writeSet = make([]model.WriteSetEntry, wsCount)
	for i := range rec.writeSet {
		key, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		value, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		rec.writeSet[i] = model.WriteSetEntry{Key: key, Value: value}
	}

	return rec, nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writeBytes(buf *bytes.Buffer, v []byte) {
	writeU32(buf, uint32(len(v)))
	buf.Write(v)
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n == 0 {
		return b, nil
	}
	read, err := r.Read(b)
	if err != nil {
		return nil, err
	}
	if uint32(read) != n {
		return nil, fmt.Errorf("txlog: short read: got %d want %d", read, n)
	}
	return b, nil
}
