package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nliao6622/QuantaDB-1/internal/model"
	"github.com/nliao6622/QuantaDB-1/internal/storage/diskmanager"
)

// HealthChecker samples the validation pipeline's own signals
// (active-set saturation, queue depth, reaper lag, peer alert rate)
// instead of the storage-engine signals (compaction/memtable) the
// teacher sampled, but keeps its ticker-driven sample loop and
// liveness/readiness probe split.
type HealthChecker struct {
	nodeID  string
	txLogDir string
	disk    *diskmanager.DiskManager
	logger  *zap.Logger

	mu          sync.RWMutex
	lastCheck   time.Time
	status      model.NodeStatus
	checks      map[string]CheckResult
	livenessOK  bool
	readinessOK bool
	metrics     model.HealthMetrics

	sampleFn func() model.HealthMetrics
}

// CheckResult represents the result of a health check.
type CheckResult struct {
	Name      string
	Status    string
	Message   string
	Timestamp time.Time
}

// HealthCheckConfig holds configuration for health checks.
type HealthCheckConfig struct {
	NodeID   string
	TxLogDir string
}

// NewHealthChecker creates a new health checker. The current pipeline
// signals (activeTxSet saturation, queue depths, reaper lag, peer alert
// rate) are sampled as zero values until SetSampleFunc installs a
// function that supplies them.
func NewHealthChecker(cfg *HealthCheckConfig, disk *diskmanager.DiskManager, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		nodeID:      cfg.NodeID,
		txLogDir:    cfg.TxLogDir,
		disk:        disk,
		logger:      logger,
		checks:      make(map[string]CheckResult),
		livenessOK:  true,
		readinessOK: true,
		status:      model.NodeStatusHealthy,
	}
}

// SetSampleFunc installs the callback used to sample current pipeline
// signals on each health check tick.
func (h *HealthChecker) SetSampleFunc(fn func() model.HealthMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sampleFn = fn
}

// Start runs the health check sample loop until ctx is cancelled.
func (h *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	h.runHealthChecks()

	for {
		select {
		case <-ticker.C:
			h.runHealthChecks()
		case <-ctx.Done():
			h.logger.Info("health checker stopped")
			return
		}
	}
}

func (h *HealthChecker) runHealthChecks() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastCheck = time.Now()

	if h.sampleFn != nil {
		h.metrics = h.sampleFn()
	}

	checks := []func() CheckResult{
		h.checkDiskSpace,
		h.checkTxLogDirAccessible,
		h.checkActiveTxSetSaturation,
		h.checkHotQueueDepth,
		h.checkReaperLag,
		h.checkPeerAlertRate,
	}

	allHealthy := true
	allReady := true

	for _, check := range checks {
		result := check()
		h.checks[result.Name] = result

		if result.Status != "healthy" {
			allHealthy = false
			if result.Status == "critical" {
				allReady = false
			}
		}
	}

	if !allHealthy {
		if !allReady {
			h.status = model.NodeStatusUnhealthy
		} else {
			h.status = model.NodeStatusDegraded
		}
	} else {
		h.status = model.NodeStatusHealthy
	}

	h.livenessOK = true
	h.readinessOK = allReady

	h.logger.Debug("health check completed",
		zap.String("status", string(h.status)),
		zap.Bool("liveness", h.livenessOK),
		zap.Bool("readiness", h.readinessOK))
}

func (h *HealthChecker) checkDiskSpace() CheckResult {
	if h.disk == nil {
		return CheckResult{Name: "disk_space", Status: "healthy", Message: "no disk manager configured", Timestamp: time.Now()}
	}
	stats := h.disk.GetDiskUsage()
	switch {
	case stats.UsagePercent > 95:
		return CheckResult{Name: "disk_space", Status: "critical",
			Message: fmt.Sprintf("disk usage critical: %.2f%%", stats.UsagePercent), Timestamp: time.Now()}
	case stats.UsagePercent > 90:
		return CheckResult{Name: "disk_space", Status: "warning",
			Message: fmt.Sprintf("disk usage high: %.2f%%", stats.UsagePercent), Timestamp: time.Now()}
	default:
		return CheckResult{Name: "disk_space", Status: "healthy",
			Message: fmt.Sprintf("disk usage: %.2f%%, available: %.2f GB", stats.UsagePercent, float64(stats.AvailableBytes)/1024/1024/1024),
			Timestamp: time.Now()}
	}
}

func (h *HealthChecker) checkTxLogDirAccessible() CheckResult {
	if h.txLogDir == "" {
		return CheckResult{Name: "txlog_dir_accessible", Status: "healthy", Message: "no txlog dir configured", Timestamp: time.Now()}
	}

	info, err := os.Stat(h.txLogDir)
	if err != nil {
		return CheckResult{Name: "txlog_dir_accessible", Status: "critical",
			Message: fmt.Sprintf("txlog directory not accessible: %v", err), Timestamp: time.Now()}
	}
	if !info.IsDir() {
		return CheckResult{Name: "txlog_dir_accessible", Status: "critical",
			Message: "txlog path is not a directory", Timestamp: time.Now()}
	}

	testFile := fmt.Sprintf("%s/.health_check_%d", h.txLogDir, h.lastCheck.UnixNano())
	f, err := os.Create(testFile)
	if err != nil {
		return CheckResult{Name: "txlog_dir_accessible", Status: "critical",
			Message: fmt.Sprintf("cannot write to txlog directory: %v", err), Timestamp: time.Now()}
	}
	f.Close()
	os.Remove(testFile)

	return CheckResult{Name: "txlog_dir_accessible", Status: "healthy",
		Message: "txlog directory is accessible and writable", Timestamp: time.Now()}
}

func (h *HealthChecker) checkActiveTxSetSaturation() CheckResult {
	s := h.metrics.ActiveTxSetSaturation
	switch {
	case s > 0.95:
		return CheckResult{Name: "active_tx_set_saturation", Status: "critical",
			Message: fmt.Sprintf("active transaction set saturation critical: %.2f%%", s*100), Timestamp: time.Now()}
	case s > 0.80:
		return CheckResult{Name: "active_tx_set_saturation", Status: "warning",
			Message: fmt.Sprintf("active transaction set saturation high: %.2f%%", s*100), Timestamp: time.Now()}
	default:
		return CheckResult{Name: "active_tx_set_saturation", Status: "healthy",
			Message: fmt.Sprintf("active transaction set saturation: %.2f%%", s*100), Timestamp: time.Now()}
	}
}

func (h *HealthChecker) checkHotQueueDepth() CheckResult {
	depth := h.metrics.HotQueueDepth
	switch {
	case depth > 900000:
		return CheckResult{Name: "hot_queue_depth", Status: "critical",
			Message: fmt.Sprintf("hot dependency queue nearly full: %d", depth), Timestamp: time.Now()}
	case depth > 500000:
		return CheckResult{Name: "hot_queue_depth", Status: "warning",
			Message: fmt.Sprintf("hot dependency queue depth high: %d", depth), Timestamp: time.Now()}
	default:
		return CheckResult{Name: "hot_queue_depth", Status: "healthy",
			Message: fmt.Sprintf("hot dependency queue depth: %d", depth), Timestamp: time.Now()}
	}
}

func (h *HealthChecker) checkReaperLag() CheckResult {
	lag := h.metrics.ReaperLagSeconds
	switch {
	case lag > 300:
		return CheckResult{Name: "reaper_lag", Status: "critical",
			Message: fmt.Sprintf("reaper has not swept in %.0fs", lag), Timestamp: time.Now()}
	case lag > 60:
		return CheckResult{Name: "reaper_lag", Status: "warning",
			Message: fmt.Sprintf("reaper sweep lag: %.0fs", lag), Timestamp: time.Now()}
	default:
		return CheckResult{Name: "reaper_lag", Status: "healthy",
			Message: fmt.Sprintf("reaper sweep lag: %.0fs", lag), Timestamp: time.Now()}
	}
}

func (h *HealthChecker) checkPeerAlertRate() CheckResult {
	rate := h.metrics.PeerAlertRate
	switch {
	case rate > 0.25:
		return CheckResult{Name: "peer_alert_rate", Status: "warning",
			Message: fmt.Sprintf("cross-shard ALERT rate elevated: %.2f%%", rate*100), Timestamp: time.Now()}
	default:
		return CheckResult{Name: "peer_alert_rate", Status: "healthy",
			Message: fmt.Sprintf("cross-shard ALERT rate: %.2f%%", rate*100), Timestamp: time.Now()}
	}
}

// IsLive returns whether the node is live (liveness probe).
func (h *HealthChecker) IsLive() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.livenessOK
}

// IsReady returns whether the node is ready (readiness probe).
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK
}

// GetStatus returns the current health status.
func (h *HealthChecker) GetStatus() model.HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return model.HealthStatus{
		NodeID:    h.nodeID,
		Status:    h.status,
		Timestamp: h.lastCheck.Unix(),
		Metrics:   h.metrics,
	}
}

// GetChecks returns all check results.
func (h *HealthChecker) GetChecks() map[string]CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checks := make(map[string]CheckResult, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	return checks
}

// SetLiveness manually sets liveness status (for testing).
func (h *HealthChecker) SetLiveness(live bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessOK = live
}

// SetReadiness manually sets readiness status (for graceful shutdown).
func (h *HealthChecker) SetReadiness(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessOK = ready
}

// LivenessHandler handles HTTP liveness probe requests.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	live := h.livenessOK
	status := h.GetStatus()
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !live {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy": live,
		"status":  status.Status,
	})
}

// ReadinessHandler handles HTTP readiness probe requests.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.readinessOK
	status := h.GetStatus()
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":  ready,
		"status": status.Status,
	})
}

// StartHealthServer starts the HTTP health check server.
func (h *HealthChecker) StartHealthServer(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", h.LivenessHandler)
	mux.HandleFunc("/health/ready", h.ReadinessHandler)

	h.logger.Info("starting health check HTTP server", zap.String("port", port))
	return http.ListenAndServe(port, mux)
}
