package intake

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nliao6622/QuantaDB-1/internal/model"
)

// PeerInfo is the wire message carrying one shard's partial SSN bounds
// for a cross-shard CI: eta (PStamp), pi (SStamp), the sending shard,
// and its local commit/abort decision. peerexchange reuses this exact
// layout as its gossip notification payload rather than defining a
// second wire format for the same information.
type PeerInfo struct {
	CTS          uint64
	PStamp       uint64
	SStamp       uint64
	SenderPeerID uint64
	TxState      model.TxState
}

const peerInfoWireSize = 8 + 8 + 8 + 8 + 1

// DecodePeerInfo reads one Peer SSN-info message.
func DecodePeerInfo(r io.Reader) (PeerInfo, error) {
	var b [peerInfoWireSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return PeerInfo{}, fmt.Errorf("intake: read peer info: %w", err)
	}
	return PeerInfo{
		CTS:          binary.LittleEndian.Uint64(b[0:8]),
		PStamp:       binary.LittleEndian.Uint64(b[8:16]),
		SStamp:       binary.LittleEndian.Uint64(b[16:24]),
		SenderPeerID: binary.LittleEndian.Uint64(b[24:32]),
		TxState:      model.TxState(b[32]),
	}, nil
}

// EncodePeerInfo writes p in the same layout DecodePeerInfo reads.
func EncodePeerInfo(p PeerInfo) []byte {
	var b [peerInfoWireSize]byte
	binary.LittleEndian.PutUint64(b[0:8], p.CTS)
	binary.LittleEndian.PutUint64(b[8:16], p.PStamp)
	binary.LittleEndian.PutUint64(b[16:24], p.SStamp)
	binary.LittleEndian.PutUint64(b[24:32], p.SenderPeerID)
	b[32] = byte(p.TxState)
	return b[:]
}
