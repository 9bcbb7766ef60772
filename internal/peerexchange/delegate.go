package peerexchange

import (
	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/nliao6622/QuantaDB-1/internal/model"
)

// delegate implements memberlist.Delegate, adapted from the teacher's
// gossip_service.go delegate: NotifyMsg there merged remote node health
// into a local membership map, here it merges a peer's SSN view of a
// CTS into the local meet-semilattice accumulator instead.
type delegate struct {
	broadcast *memberlist.TransmitLimitedQueue
	logger    *zap.Logger

	onNotify func(cts uint64, senderShard uint64, eta, pi uint64, peerState model.TxState)
}

func newDelegate(logger *zap.Logger) *delegate {
	return &delegate{logger: logger}
}

// NodeMeta is unused; this delegate carries no per-node metadata.
func (d *delegate) NodeMeta(limit int) []byte { return nil }

// NotifyMsg is invoked by memberlist for every gossip message addressed
// to this node's user-message channel.
func (d *delegate) NotifyMsg(b []byte) {
	if len(b) == 0 {
		return
	}
	n, err := decodeNotification(b)
	if err != nil {
		d.logger.Warn("peerexchange: dropping malformed notification", zap.Error(err))
		return
	}
	if d.onNotify != nil {
		d.onNotify(n.CTS, n.SenderPeerID, n.PStamp, n.SStamp, n.TxState)
	}
}

// GetBroadcasts drains queued outgoing notifications from the
// transmit-limited queue, which caps retransmission count the same way
// for every broadcast regardless of payload.
func (d *delegate) GetBroadcasts(overhead, limit int) [][]byte {
	if d.broadcast == nil {
		return nil
	}
	return d.broadcast.GetBroadcasts(overhead, limit)
}

// LocalState/MergeRemoteState are part of memberlist's push/pull
// full-state sync; this delegate has no additional state beyond what
// NotifyMsg already gossips, so both are no-ops.
func (d *delegate) LocalState(join bool) []byte             { return nil }
func (d *delegate) MergeRemoteState(buf []byte, join bool) {}
