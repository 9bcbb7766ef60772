// Package intake decodes and encodes the commit-intent wire message a
// coordinator or another shard sends to submit a CI for validation, and
// the peer SSN-info message. The validator's response is written by
// cmd/validator, not by this package.
//
// There is no .proto definition for this wire format anywhere in the
// retrieved reference material, so rather than fabricate gRPC/protobuf
// stubs the validator never actually generates, the message is decoded
// directly with encoding/binary — the same approach the teacher uses
// for its own on-disk SSTable/commit-log framing in
// internal/storage/sstable and internal/service/commitlog_service.go,
// just applied to a wire socket instead of a file.
package intake

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nliao6622/QuantaDB-1/internal/model"
)

// DecodeCI reads one CI intake message from r, a fixed little-endian
// header followed by the read/write/shard set payloads.
func DecodeCI(r io.Reader) (*model.TxEntry, error) {
	tx := model.NewTxEntry()

	var fixed [8 + 8 + 4 + 4 + 4]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, fmt.Errorf("intake: read header: %w", err)
	}
	tx.CTS = binary.LittleEndian.Uint64(fixed[0:8])
	tx.SenderPeerID = binary.LittleEndian.Uint64(fixed[8:16])
	readSetLen := binary.LittleEndian.Uint32(fixed[16:20])
	writeSetLen := binary.LittleEndian.Uint32(fixed[20:24])
	shardSetLen := binary.LittleEndian.Uint32(fixed[24:28])

	tx.ReadSet = make([]model.ReadSetEntry, readSetLen)
	for i := range tx.ReadSet {
		key, err := readKeyWithMeta(r, &tx.ReadSet[i].MetaSnapshot)
		if err != nil {
			return nil, fmt.Errorf("intake: read set entry %d: %w", i, err)
		}
		tx.ReadSet[i].Key = key
	}

	tx.WriteSet = make([]model.WriteSetEntry, writeSetLen)
	for i := range tx.WriteSet {
		key, err := readLenPrefixed(r)
		if err != nil {
			return nil, fmt.Errorf("intake: write set entry %d key: %w", i, err)
		}
		value, err := readLenPrefixed(r)
		if err != nil {
			return nil, fmt.Errorf("intake: write set entry %d value: %w", i, err)
		}
		var meta model.SSNMeta
		if err := readMeta(r, &meta); err != nil {
			return nil, fmt.Errorf("intake: write set entry %d meta: %w", i, err)
		}
		tx.WriteSet[i] = model.WriteSetEntry{Key: key, Value: value, MetaSnapshot: meta}
	}

	tx.ShardSet = make([]uint64, shardSetLen)
	for i := range tx.ShardSet {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("intake: shard set entry %d: %w", i, err)
		}
		tx.ShardSet[i] = binary.LittleEndian.Uint64(b[:])
	}

	return tx, nil
}

// EncodeCI writes tx in the same layout DecodeCI reads, for symmetry
// and for this shard to forward a CI to a peer as one of its own
// requests.
func EncodeCI(tx *model.TxEntry) []byte {
	var buf bytes.Buffer

	var fixed [28]byte
	binary.LittleEndian.PutUint64(fixed[0:8], tx.CTS)
	binary.LittleEndian.PutUint64(fixed[8:16], tx.SenderPeerID)
	binary.LittleEndian.PutUint32(fixed[16:20], uint32(len(tx.ReadSet)))
	binary.LittleEndian.PutUint32(fixed[20:24], uint32(len(tx.WriteSet)))
	binary.LittleEndian.PutUint32(fixed[24:28], uint32(len(tx.ShardSet)))
	buf.Write(fixed[:])

	for _, r := range tx.ReadSet {
		writeLenPrefixed(&buf, r.Key)
		writeMeta(&buf, r.MetaSnapshot)
	}
	for _, w := range tx.WriteSet {
		writeLenPrefixed(&buf, w.Key)
		writeLenPrefixed(&buf, w.Value)
		writeMeta(&buf, w.MetaSnapshot)
	}
	for _, s := range tx.ShardSet {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], s)
		buf.Write(b[:])
	}

	return buf.Bytes()
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

// ssnMetaWireSize is the fixed encoded size of an SSNMeta: cStamp,
// pStamp, sStamp, pStampPrev, sStampPrev (5 uint64) plus isTombstone
// (1 byte).
const ssnMetaWireSize = 5*8 + 1

func readMeta(r io.Reader, meta *model.SSNMeta) error {
	var b [ssnMetaWireSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	meta.CStamp = binary.LittleEndian.Uint64(b[0:8])
	meta.PStamp = binary.LittleEndian.Uint64(b[8:16])
	meta.SStamp = binary.LittleEndian.Uint64(b[16:24])
	meta.PStampPrev = binary.LittleEndian.Uint64(b[24:32])
	meta.SStampPrev = binary.LittleEndian.Uint64(b[32:40])
	meta.IsTombstone = b[40] != 0
	return nil
}

func writeMeta(buf *bytes.Buffer, meta model.SSNMeta) {
	var b [ssnMetaWireSize]byte
	binary.LittleEndian.PutUint64(b[0:8], meta.CStamp)
	binary.LittleEndian.PutUint64(b[8:16], meta.PStamp)
	binary.LittleEndian.PutUint64(b[16:24], meta.SStamp)
	binary.LittleEndian.PutUint64(b[24:32], meta.PStampPrev)
	binary.LittleEndian.PutUint64(b[32:40], meta.SStampPrev)
	if meta.IsTombstone {
		b[40] = 1
	}
	buf.Write(b[:])
}

func readKeyWithMeta(r io.Reader, meta *model.SSNMeta) ([]byte, error) {
	key, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	if err := readMeta(r, meta); err != nil {
		return nil, err
	}
	return key, nil
}
