package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nliao6622/QuantaDB-1/internal/model"
)

func newTestChecker(t *testing.T) *HealthChecker {
	t.Helper()
	return NewHealthChecker(&HealthCheckConfig{
		NodeID:   "node-1",
		TxLogDir: t.TempDir(),
	}, nil, nil)
}

func TestHealthChecker_HealthyWhenSignalsAreLow(t *testing.T) {
	h := newTestChecker(t)
	h.SetSampleFunc(func() model.HealthMetrics {
		return model.HealthMetrics{
			ActiveTxSetSaturation: 0.1,
			HotQueueDepth:         10,
			ReaperLagSeconds:      1,
			PeerAlertRate:         0,
		}
	})

	h.runHealthChecks()

	status := h.GetStatus()
	assert.Equal(t, model.NodeStatusHealthy, status.Status)
	assert.True(t, h.IsReady())
}

func TestHealthChecker_DegradedOnWarningSignal(t *testing.T) {
	h := newTestChecker(t)
	h.SetSampleFunc(func() model.HealthMetrics {
		return model.HealthMetrics{
			ActiveTxSetSaturation: 0.85,
		}
	})

	h.runHealthChecks()

	status := h.GetStatus()
	assert.Equal(t, model.NodeStatusDegraded, status.Status)
	assert.True(t, h.IsReady(), "a warning-level signal must not fail readiness")
}

func TestHealthChecker_UnhealthyOnCriticalSignal(t *testing.T) {
	h := newTestChecker(t)
	h.SetSampleFunc(func() model.HealthMetrics {
		return model.HealthMetrics{
			ActiveTxSetSaturation: 0.99,
			HotQueueDepth:         950000,
		}
	})

	h.runHealthChecks()

	status := h.GetStatus()
	assert.Equal(t, model.NodeStatusUnhealthy, status.Status)
	assert.False(t, h.IsReady())
}

func TestHealthChecker_ReaperLagEscalatesToCritical(t *testing.T) {
	h := newTestChecker(t)
	h.SetSampleFunc(func() model.HealthMetrics {
		return model.HealthMetrics{ReaperLagSeconds: 400}
	})

	h.runHealthChecks()

	checks := h.GetChecks()
	result, ok := checks["reaper_lag"]
	require.True(t, ok)
	assert.Equal(t, "critical", result.Status)
}

func TestHealthChecker_SetReadinessOverridesDuringShutdown(t *testing.T) {
	h := newTestChecker(t)
	h.SetReadiness(false)
	assert.False(t, h.IsReady())
	assert.True(t, h.IsLive())
}
