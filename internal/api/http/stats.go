package http

import (
	"net/http"
	"time"

	"github.com/GriffinCanCode/scribe/backend/internal/functions"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/scribe/backend/internal/sandbox"
	"github.com/gin-gonic/gin"
)

// StatsSnapshot is the body of GET /sandbox/stats
type StatsSnapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	Pool      sandbox.PoolStats  `json:"pool"`
	Functions FunctionStoreStats `json:"functions"`
	Summary   *StatsSummary      `json:"summary,omitempty"`
}

// FunctionStoreStats describes the function store
type FunctionStoreStats struct {
	Backend string `json:"backend"`
	Breaker string `json:"breaker,omitempty"`
}

// StatsSummary provides high-level execution metrics
type StatsSummary struct {
	Executions         int64   `json:"executions"`
	FailureRate        float64 `json:"failure_rate"`
	TimedOut           int64   `json:"timed_out"`
	AverageExecutionMs float64 `json:"average_execution_ms"`
	HostCalls          int64   `json:"host_calls"`
	FailedHostCalls    int64   `json:"failed_host_calls"`
	RealmResets        int64   `json:"realm_resets"`
	TotalRequests      int64   `json:"total_requests"`
	ErrorRate          float64 `json:"error_rate"`
	ActiveConnections  int64   `json:"active_connections"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
}

// breakered is implemented by stores guarded by a circuit breaker
type breakered interface {
	Breaker() *resilience.Breaker
}

// unwrapper is implemented by decorating stores
type unwrapper interface {
	Unwrap() functions.Store
}

// Stats returns pool, store and execution statistics
func (h *Handlers) Stats(c *gin.Context) {
	snapshot := StatsSnapshot{
		Timestamp: time.Now().UTC(),
		Pool:      h.executor.Stats(),
		Functions: FunctionStoreStats{Backend: h.backend},
		Summary:   h.summary(),
	}

	var store any = h.store
	if u, ok := store.(unwrapper); ok {
		store = u.Unwrap()
	}
	if b, ok := store.(breakered); ok {
		snapshot.Functions.Breaker = b.Breaker().State().String()
	}

	c.JSON(http.StatusOK, snapshot)
}

func (h *Handlers) summary() *StatsSummary {
	if h.metrics == nil {
		return nil
	}
	snap := h.metrics.Snapshot()

	summary := &StatsSummary{
		Executions:        snap.Executions,
		TimedOut:          snap.TimedOut,
		HostCalls:         snap.HostCalls,
		FailedHostCalls:   snap.FailedHostCalls,
		RealmResets:       snap.RealmResets,
		TotalRequests:     snap.TotalRequests,
		ActiveConnections: snap.ActiveConnections,
		UptimeSeconds:     h.metrics.UptimeSeconds(),
	}
	if snap.Executions > 0 {
		summary.FailureRate = float64(snap.FailedExecutions) / float64(snap.Executions)
		summary.AverageExecutionMs = snap.ExecutionSeconds / float64(snap.Executions) * 1000
	}
	if snap.TotalRequests > 0 {
		summary.ErrorRate = float64(snap.TotalErrors) / float64(snap.TotalRequests)
	}
	return summary
}
