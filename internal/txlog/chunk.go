package txlog

import (
	"encoding/binary"
	"fmt"
	"io"
)

// headSig/tailSig bracket every record so a recovery scan can detect a
// torn write at the tail of a chunk file, per
// original_source/dssn/TxLog.h's TX_LOG_HEAD_SIG/TX_LOG_TAIL_SIG.
const (
	headSig uint32 = 0xA5A5F0F0
	tailSig uint32 = 0xF0F0A5A5
)

// recordHeader is the fixed-size prefix of every framed record:
// signature, then length. The teacher's sstable binary writer uses the
// same "length-prefixed frame with a magic signature" layout for its
// own on-disk records.
const recordHeaderSize = 8 // uint32 sig + uint32 length
const recordTrailerSize = 4 // uint32 tailSig

// lengthOverhead is the constant added to the payload's byte length
// when writing the header's length field: the length field measures
// headSig+length+tailSig (12 bytes) plus 4 bytes of reserved overhead
// to match the on-disk record layout's documented length semantics,
// not the payload size alone.
const lengthOverhead = 16

// frameAlignment is the byte boundary every framed record is padded
// out to, so a chunk file's records all start at aligned offsets.
const frameAlignment = 8

// encodeRecord frames payload as headSig|length|payload|tailSig, then
// zero-pads the frame out to the next frameAlignment-byte boundary.
func encodeRecord(payload []byte) []byte {
	base := recordHeaderSize + len(payload) + recordTrailerSize
	padded := padUp(base, frameAlignment)

	buf := make([]byte, padded)
	binary.LittleEndian.PutUint32(buf[0:4], headSig)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)+lengthOverhead))
	copy(buf[8:8+len(payload)], payload)
	binary.LittleEndian.PutUint32(buf[8+len(payload):12+len(payload)], tailSig)
	// buf[base:padded] is already zero from make.
	return buf
}

// padUp rounds n up to the next multiple of align.
func padUp(n, align int) int {
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}

// readRecord reads one framed record from r, validating both
// signatures and discarding the trailing alignment padding. io.EOF is
// returned verbatim when r is exhausted exactly at a record boundary
// (clean end of chunk).
func readRecord(r io.Reader) ([]byte, error) {
	header := make([]byte, recordHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	sig := binary.LittleEndian.Uint32(header[0:4])
	if sig != headSig {
		return nil, fmt.Errorf("txlog: bad head signature %#x", sig)
	}
	length := binary.LittleEndian.Uint32(header[4:8])
	if length < lengthOverhead {
		return nil, fmt.Errorf("txlog: length field %d smaller than overhead %d", length, lengthOverhead)
	}
	payloadLen := length - lengthOverhead

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("txlog: truncated record: %w", err)
	}

	trailer := make([]byte, recordTrailerSize)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return nil, fmt.Errorf("txlog: truncated trailer: %w", err)
	}
	if tsig := binary.LittleEndian.Uint32(trailer); tsig != tailSig {
		return nil, fmt.Errorf("txlog: bad tail signature %#x", tsig)
	}

	base := recordHeaderSize + int(payloadLen) + recordTrailerSize
	if pad := padUp(base, frameAlignment) - base; pad > 0 {
		if _, err := io.ReadFull(r, make([]byte, pad)); err != nil {
			return nil, fmt.Errorf("txlog: truncated padding: %w", err)
		}
	}

	return payload, nil
}
