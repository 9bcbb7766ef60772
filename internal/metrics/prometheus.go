package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the validation pipeline.
type Metrics struct {
	// Intake metrics
	CIsSubmittedTotal prometheus.Counter
	IntakeQueueDepth   prometheus.Gauge

	// Validation outcome metrics
	CommitsTotal            prometheus.Counter
	AbortsTotal              prometheus.Counter
	ExclusionViolationsTotal prometheus.Counter
	ValidationDuration       prometheus.Histogram

	// CBF / membership-set metrics
	ActiveTxSetSize         prometheus.Gauge
	CBFOverflowsTotal       prometheus.CounterVec
	DistributedTxSetDepth   prometheus.GaugeVec

	// TxLog metrics
	TxLogAppendsTotal   prometheus.Counter
	TxLogAppendDuration prometheus.Histogram
	TxLogSyncsTotal     prometheus.Counter
	TxLogChunkCount     prometheus.Gauge

	// Reaper metrics
	ReaperLowWater   prometheus.Gauge
	ReaperSweepTotal prometheus.Counter

	// Peer exchange metrics
	PeerMembersTotal     prometheus.Gauge
	PeerNotificationsTotal prometheus.CounterVec
	PeerConflictsTotal   prometheus.Counter
	PeerAlertsTotal      prometheus.Counter

	// System metrics
	DiskUsageBytes     prometheus.Gauge
	DiskAvailableBytes prometheus.Gauge
	DiskUsagePercent   prometheus.Gauge
	MemoryUsageBytes   prometheus.Gauge
	GoroutinesTotal    prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics, namespaced
// under the module name the way the teacher namespaces its own under
// "pairdb".
func NewMetrics(nodeID string) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}
	const ns = "quantadb"

	return &Metrics{
		CIsSubmittedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "intake",
			Name:        "cis_submitted_total",
			Help:        "Total number of commit intents submitted for validation",
			ConstLabels: labels,
		}),
		IntakeQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "intake",
			Name:        "queue_depth",
			Help:        "Current depth of the intake-to-distributedtxset queue",
			ConstLabels: labels,
		}),

		CommitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "validator",
			Name:        "commits_total",
			Help:        "Total number of commit intents that committed",
			ConstLabels: labels,
		}),
		AbortsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "validator",
			Name:        "aborts_total",
			Help:        "Total number of commit intents that aborted",
			ConstLabels: labels,
		}),
		ExclusionViolationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "validator",
			Name:        "exclusion_violations_total",
			Help:        "Total number of SSN exclusion window violations (pi <= eta)",
			ConstLabels: labels,
		}),
		ValidationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "validator",
			Name:        "validation_duration_seconds",
			Help:        "Histogram of per-CI validation durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		ActiveTxSetSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "ssn",
			Name:        "active_tx_set_size",
			Help:        "Approximate number of CIs currently registered in the active transaction set",
			ConstLabels: labels,
		}),
		CBFOverflowsTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "ssn",
			Name:        "cbf_overflows_total",
			Help:        "Total number of counting bloom filter counter overflows by filter",
			ConstLabels: labels,
		}, []string{"filter"}),
		DistributedTxSetDepth: *promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "ssn",
			Name:        "distributed_tx_set_depth",
			Help:        "Current occupancy of each distributedtxset tier",
			ConstLabels: labels,
		}, []string{"tier"}),

		TxLogAppendsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "txlog",
			Name:        "appends_total",
			Help:        "Total number of TxLog record appends",
			ConstLabels: labels,
		}),
		TxLogAppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "txlog",
			Name:        "append_duration_seconds",
			Help:        "Histogram of TxLog append durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		TxLogSyncsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "txlog",
			Name:        "syncs_total",
			Help:        "Total number of TxLog fsync calls",
			ConstLabels: labels,
		}),
		TxLogChunkCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "txlog",
			Name:        "chunk_count",
			Help:        "Current number of TxLog chunk files on disk",
			ConstLabels: labels,
		}),

		ReaperLowWater: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "reaper",
			Name:        "low_water_cts",
			Help:        "Current low-water commit timestamp below which no version can be needed",
			ConstLabels: labels,
		}),
		ReaperSweepTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "reaper",
			Name:        "sweeps_total",
			Help:        "Total number of reaper sweep cycles",
			ConstLabels: labels,
		}),

		PeerMembersTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "peerexchange",
			Name:        "members_total",
			Help:        "Total number of gossip members known to this shard",
			ConstLabels: labels,
		}),
		PeerNotificationsTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "peerexchange",
			Name:        "notifications_total",
			Help:        "Total number of peer SSN-info notifications by direction",
			ConstLabels: labels,
		}, []string{"direction"}),
		PeerConflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "peerexchange",
			Name:        "conflicts_total",
			Help:        "Total number of cross-shard CIs that resolved to CONFLICT",
			ConstLabels: labels,
		}),
		PeerAlertsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "peerexchange",
			Name:        "alerts_total",
			Help:        "Total number of cross-shard CIs that exceeded their peer-response budget and moved to ALERT",
			ConstLabels: labels,
		}),

		DiskUsageBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "system",
			Name:        "disk_usage_bytes",
			Help:        "Current disk usage in bytes",
			ConstLabels: labels,
		}),
		DiskAvailableBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "system",
			Name:        "disk_available_bytes",
			Help:        "Available disk space in bytes",
			ConstLabels: labels,
		}),
		DiskUsagePercent: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "system",
			Name:        "disk_usage_percent",
			Help:        "Disk usage percentage",
			ConstLabels: labels,
		}),
		MemoryUsageBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "system",
			Name:        "memory_usage_bytes",
			Help:        "Current memory usage in bytes",
			ConstLabels: labels,
		}),
		GoroutinesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "system",
			Name:        "goroutines_total",
			Help:        "Current number of goroutines",
			ConstLabels: labels,
		}),
	}
}

// RecordCommit records a committed CI.
func (m *Metrics) RecordCommit(duration float64) {
	m.CommitsTotal.Inc()
	m.ValidationDuration.Observe(duration)
}

// RecordAbort records an aborted CI, distinguishing an SSN exclusion
// violation from other abort causes.
func (m *Metrics) RecordAbort(duration float64, exclusionViolation bool) {
	m.AbortsTotal.Inc()
	m.ValidationDuration.Observe(duration)
	if exclusionViolation {
		m.ExclusionViolationsTotal.Inc()
	}
}

// RecordCBFOverflow records a saturated counter in the named filter.
func (m *Metrics) RecordCBFOverflow(filter string) {
	m.CBFOverflowsTotal.WithLabelValues(filter).Inc()
}

// UpdateDistributedTxSetDepth updates the occupancy gauge for one tier.
func (m *Metrics) UpdateDistributedTxSetDepth(tier string, depth int) {
	m.DistributedTxSetDepth.WithLabelValues(tier).Set(float64(depth))
}

// RecordTxLogAppend records a TxLog append.
func (m *Metrics) RecordTxLogAppend(duration float64) {
	m.TxLogAppendsTotal.Inc()
	m.TxLogAppendDuration.Observe(duration)
}

// RecordTxLogSync records a TxLog fsync.
func (m *Metrics) RecordTxLogSync() {
	m.TxLogSyncsTotal.Inc()
}

// RecordReaperSweep records one reaper sweep cycle and its resulting
// low-water mark.
func (m *Metrics) RecordReaperSweep(lowWater uint64) {
	m.ReaperSweepTotal.Inc()
	m.ReaperLowWater.Set(float64(lowWater))
}

// RecordPeerNotification records an outgoing ("out") or incoming
// ("in") peer SSN-info notification.
func (m *Metrics) RecordPeerNotification(direction string) {
	m.PeerNotificationsTotal.WithLabelValues(direction).Inc()
}

// RecordPeerConflict records a cross-shard CI resolving to CONFLICT.
func (m *Metrics) RecordPeerConflict() {
	m.PeerConflictsTotal.Inc()
}

// RecordPeerAlert records a cross-shard CI moving to ALERT after
// exceeding its peer-response budget.
func (m *Metrics) RecordPeerAlert() {
	m.PeerAlertsTotal.Inc()
}

// UpdateSystemStats updates system-level statistics.
func (m *Metrics) UpdateSystemStats(diskUsage, diskAvailable, memoryUsage int64, goroutines int) {
	m.DiskUsageBytes.Set(float64(diskUsage))
	m.DiskAvailableBytes.Set(float64(diskAvailable))
	if diskUsage+diskAvailable > 0 {
		m.DiskUsagePercent.Set(float64(diskUsage) / float64(diskUsage+diskAvailable) * 100)
	}
	m.MemoryUsageBytes.Set(float64(memoryUsage))
	m.GoroutinesTotal.Set(float64(goroutines))
}
