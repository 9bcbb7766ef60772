package peerexchange

import (
	"bytes"

	"github.com/nliao6622/QuantaDB-1/internal/intake"
)

// notification is the payload carried over memberlist's gossip
// transport: one shard's partial SSN view of a cross-shard CI, keyed
// by CTS. This reuses intake's Peer SSN-info wire layout (CTS, pStamp,
// sStamp, sender shard, TxState) rather than a second, narrower ad hoc
// format, since a peer needs exactly that information to fold into its
// own exclusion window.
type notification = intake.PeerInfo

func encodeNotification(n notification) []byte {
	return intake.EncodePeerInfo(n)
}

func decodeNotification(b []byte) (notification, error) {
	return intake.DecodePeerInfo(bytes.NewReader(b))
}
