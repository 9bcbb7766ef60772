package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nliao6622/QuantaDB-1/internal/health"
	"github.com/nliao6622/QuantaDB-1/internal/metrics"
)

// MetricsServer serves Prometheus metrics and liveness/readiness
// probes over HTTP.
type MetricsServer struct {
	httpServer *http.Server
	metrics    *metrics.Metrics
	health     *health.HealthChecker
	logger     *zap.Logger
	txLogDir   string
	stopChan   chan struct{}
}

// MetricsServerConfig holds configuration for the metrics server.
type MetricsServerConfig struct {
	Port     int
	TxLogDir string
}

// NewMetricsServer creates a new metrics server. h may be nil, in
// which case /health reports healthy without any check and /ready falls
// back to a bare disk check.
func NewMetricsServer(cfg *MetricsServerConfig, m *metrics.Metrics, h *health.HealthChecker, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()

	ms := &MetricsServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		metrics:  m,
		health:   h,
		logger:   logger,
		txLogDir: cfg.TxLogDir,
		stopChan: make(chan struct{}),
	}

	mux.Handle("/metrics", promhttp.Handler())
	if h != nil {
		mux.HandleFunc("/health", h.LivenessHandler)
		mux.HandleFunc("/ready", h.ReadinessHandler)
	} else {
		mux.HandleFunc("/health", ms.healthHandler)
		mux.HandleFunc("/ready", ms.readyHandler)
	}

	return ms
}

// Start starts the metrics server.
func (s *MetricsServer) Start() error {
	s.logger.Info("starting metrics server", zap.String("addr", s.httpServer.Addr))

	go s.collectSystemMetrics()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop() error {
	s.logger.Info("stopping metrics server")

	close(s.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	return nil
}

func (s *MetricsServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

func (s *MetricsServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	diskUsage, diskAvailable, err := s.getDiskStats()
	if err != nil {
		s.logger.Error("failed to get disk stats", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"not_ready","reason":"disk_stats_unavailable"}`)
		return
	}

	diskUsagePercent := float64(diskUsage) / float64(diskUsage+diskAvailable) * 100
	if diskUsagePercent > 90.0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"not_ready","reason":"disk_full","disk_usage_percent":%.2f}`, diskUsagePercent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ready","timestamp":"%s","disk_usage_percent":%.2f}`,
		time.Now().Format(time.RFC3339), diskUsagePercent)
}

func (s *MetricsServer) collectSystemMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateSystemMetrics()
		case <-s.stopChan:
			return
		}
	}
}

func (s *MetricsServer) updateSystemMetrics() {
	diskUsage, diskAvailable, err := s.getDiskStats()
	if err != nil {
		s.logger.Error("failed to get disk stats", zap.Error(err))
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	goroutines := runtime.NumGoroutine()

	s.metrics.UpdateSystemStats(diskUsage, diskAvailable, int64(memStats.Alloc), goroutines)
}

func (s *MetricsServer) getDiskStats() (used int64, available int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(s.txLogDir, &stat); err != nil {
		return 0, 0, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	available = int64(stat.Bavail) * int64(stat.Bsize)
	total := int64(stat.Blocks) * int64(stat.Bsize)
	used = total - int64(stat.Bfree)*int64(stat.Bsize)

	return used, available, nil
}
