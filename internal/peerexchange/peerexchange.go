// Package peerexchange propagates a cross-shard commit intent's
// per-shard SSN view — its txState plus its partial eta/pi bounds — to
// the other shards it touches, and merges incoming views with this
// shard's own via the meet-semilattice defined in model.Meet (txState)
// and simple max/min folding (eta/pi).
//
// Transport is hashicorp/memberlist's gossip protocol, reused from the
// teacher's internal/service/gossip_service.go wiring (memberlist.Config,
// a Delegate, a TransmitLimitedQueue for bounded-retransmission
// broadcasts) with the Delegate's payload repurposed from node health to
// CTS-keyed SSN notifications.
package peerexchange

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/nliao6622/QuantaDB-1/internal/metrics"
	"github.com/nliao6622/QuantaDB-1/internal/model"
)

// Config controls this shard's gossip membership.
type Config struct {
	NodeName      string
	BindAddr      string
	BindPort      int
	SeedNodes     []string
	JoinRetries   int
	JoinRetryWait time.Duration
}

// PeerView is one shard's merged knowledge of a cross-shard CI's SSN
// outcome, delivered asynchronously as peer notifications arrive.
// Eta/Pi fold every peer-reported exclusion-window bound (eta by max,
// pi by min); this shard's own bound is not included, and the validator
// folds them into tx.Eta/tx.Pi.
type PeerView struct {
	CTS     uint64
	TxState model.TxState
	Eta     uint64
	Pi      uint64
}

// peerViewState accumulates the meet of every peer's reported view of
// one CTS, and which shards have reported so far.
type peerViewState struct {
	txState  model.TxState
	eta      uint64
	pi       uint64
	reported map[uint64]bool
}

// PeerExchange gossips and merges cross-shard CI state.
type PeerExchange struct {
	ml       *memberlist.Memberlist
	delegate *delegate
	logger   *zap.Logger

	shardID uint64
	mu      sync.Mutex
	views   map[uint64]*peerViewState
	notify  chan PeerView
	m       *metrics.Metrics
}

// SetMetrics installs the metrics recorder used for notifications and
// conflict outcomes.
func (pe *PeerExchange) SetMetrics(m *metrics.Metrics) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.m = m
}

// New creates a PeerExchange bound to cfg.BindAddr:cfg.BindPort, joins
// cfg.SeedNodes with bounded retry, and begins accepting gossip.
// shardID identifies this shard in outgoing notifications.
func New(cfg Config, shardID uint64, logger *zap.Logger) (*PeerExchange, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pe := &PeerExchange{
		logger:  logger,
		shardID: shardID,
		views:   make(map[uint64]*peerViewState),
		notify:  make(chan PeerView, 1024),
	}

	d := newDelegate(logger)
	d.onNotify = pe.ApplyPeerView

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeName
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	mlConfig.Delegate = d
	mlConfig.LogOutput = zapWriter{logger}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("peerexchange: create: %w", err)
	}

	d.broadcast = &memberlist.TransmitLimitedQueue{
		NumNodes:       func() int { return ml.NumMembers() },
		RetransmitMult: 3,
	}

	pe.ml = ml
	pe.delegate = d

	if len(cfg.SeedNodes) > 0 {
		if err := pe.joinWithRetry(cfg); err != nil {
			return nil, err
		}
	}

	return pe, nil
}

// joinWithRetry joins cfg.SeedNodes, retrying up to cfg.JoinRetries
// times with a fixed backoff. Adapted from the teacher's
// internal/client/coordinator_client.go RegisterWithRetry, which
// applies the same bounded-retry shape to registering with the
// coordinator instead of joining a gossip ring.
func (pe *PeerExchange) joinWithRetry(cfg Config) error {
	retries := cfg.JoinRetries
	if retries <= 0 {
		retries = 5
	}
	wait := cfg.JoinRetryWait
	if wait <= 0 {
		wait = 2 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		n, err := pe.ml.Join(cfg.SeedNodes)
		if err == nil && n > 0 {
			pe.logger.Info("peerexchange: joined gossip ring", zap.Int("contacted", n))
			return nil
		}
		lastErr = err
		pe.logger.Warn("peerexchange: join attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", retries),
			zap.Error(err))
		time.Sleep(wait)
	}
	return fmt.Errorf("peerexchange: failed to join after %d attempts: %w", retries, lastErr)
}

// Notify broadcasts this shard's current partial SSN bounds for cts to
// every shard participating in gossip. The validator calls this once
// it has computed its own eta/pi for a cross-shard CI, so a peer can
// raise its eta or lower its pi from this shard's partial view.
func (pe *PeerExchange) Notify(cts uint64, eta, pi uint64, txState model.TxState) {
	n := notification{CTS: cts, PStamp: eta, SStamp: pi, SenderPeerID: pe.shardID, TxState: txState}
	pe.delegate.broadcast.QueueBroadcast(namedBroadcast{msg: encodeNotification(n)})
	if pe.m != nil {
		pe.m.RecordPeerNotification("out")
		pe.m.PeerMembersTotal.Set(float64(pe.ml.NumMembers()))
	}
}

// ShardID returns the shard identity this PeerExchange notifies under,
// so the validator can tell which entries in a CI's ShardSet are peers
// it still needs to hear from.
func (pe *PeerExchange) ShardID() uint64 {
	return pe.shardID
}

// ApplyPeerView folds one peer's reported txState, eta and pi into the
// local meet-semilattice accumulator for cts — eta rises, pi falls,
// txState follows model.Meet — and publishes the merged result on the
// Notifications channel. This is the delegate's onNotify callback for
// gossip-delivered views; it is also the seam a caller driving peer
// views directly (tests, or an alternate transport) uses instead of
// going through memberlist.
func (pe *PeerExchange) ApplyPeerView(cts uint64, senderShard uint64, eta, pi uint64, peerState model.TxState) {
	pe.mu.Lock()
	v, ok := pe.views[cts]
	if !ok {
		v = &peerViewState{txState: model.TxPending, pi: model.TSMax, reported: make(map[uint64]bool)}
		pe.views[cts] = v
	}
	v.txState = model.Meet(v.txState, peerState)
	if eta > v.eta {
		v.eta = eta
	}
	if pi < v.pi {
		v.pi = pi
	}
	v.reported[senderShard] = true
	merged := PeerView{CTS: cts, TxState: v.txState, Eta: v.eta, Pi: v.pi}
	m := pe.m
	pe.mu.Unlock()

	if m != nil {
		m.RecordPeerNotification("in")
		if merged.TxState == model.TxConflict {
			m.RecordPeerConflict()
		}
	}

	select {
	case pe.notify <- merged:
	default:
		pe.logger.Warn("peerexchange: notification channel full, dropping", zap.Uint64("cts", cts))
	}
}

// Notifications delivers merged peer views as they arrive.
func (pe *PeerExchange) Notifications() <-chan PeerView {
	return pe.notify
}

// MergedView returns this shard's current meet of every peer view
// received for cts so far (txState, eta, pi) along with the number of
// distinct shards that have reported. ok is false until the first
// peer notification for cts arrives.
func (pe *PeerExchange) MergedView(cts uint64) (txState model.TxState, eta, pi uint64, reportedCount int, ok bool) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	v, ok := pe.views[cts]
	if !ok {
		return model.TxPending, 0, model.TSMax, 0, false
	}
	return v.txState, v.eta, v.pi, len(v.reported), true
}

// Leave gracefully departs the gossip ring.
func (pe *PeerExchange) Leave(timeout time.Duration) error {
	return pe.ml.Leave(timeout)
}

// namedBroadcast is the minimal memberlist.Broadcast implementation the
// TransmitLimitedQueue needs: a message with no completion callback and
// no dedup key, since every notification is idempotent under Meet.
type namedBroadcast struct {
	msg []byte
}

func (b namedBroadcast) Invalidates(other memberlist.Broadcast) bool { return false }
func (b namedBroadcast) Message() []byte                              { return b.msg }
func (b namedBroadcast) Finished()                                    {}

// zapWriter adapts *zap.Logger to the io.Writer memberlist.Config.LogOutput
// expects, since memberlist predates structured logging and only knows
// how to write to a standard *log.Logger sink.
type zapWriter struct {
	logger *zap.Logger
}

func (w zapWriter) Write(p []byte) (int, error) {
	w.logger.Info(string(p))
	return len(p), nil
}
