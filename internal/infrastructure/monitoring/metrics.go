package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Sandbox metrics
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	HostCalls         *prometheus.CounterVec
	HostCallDuration  *prometheus.HistogramVec
	RealmResets       prometheus.Counter
	PoolInUse         prometheus.Gauge

	// Function store metrics
	StoreOps      *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds running totals for the JSON stats endpoint
type Snapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	Executions        int64   `json:"executions"`
	FailedExecutions  int64   `json:"failed_executions"`
	TimedOut          int64   `json:"timed_out"`
	HostCalls         int64   `json:"host_calls"`
	FailedHostCalls   int64   `json:"failed_host_calls"`
	RealmResets       int64   `json:"realm_resets"`
	ExecutionSeconds  float64 `json:"execution_seconds"`
	ActiveConnections int64   `json:"active_connections"`
}

var (
	latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	sizeBuckets    = []float64{100, 1000, 10000, 100000, 1000000, 10000000}
)

// NewMetrics registers all metrics on reg. A nil registry gets a fresh one
// with the Go and process collectors attached.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: sizeBuckets,
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: sizeBuckets,
			},
			[]string{"method", "path"},
		),

		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_executions_total",
				Help: "Total number of sandbox executions by outcome",
			},
			[]string{"status"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_execution_duration_seconds",
				Help:    "Sandbox execution duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"status"},
		),
		HostCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_host_calls_total",
				Help: "Total number of host function calls made by executed code",
			},
			[]string{"function", "status"},
		),
		HostCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_host_call_duration_seconds",
				Help:    "Host function call duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"function"},
		),
		RealmResets: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_realm_resets_total",
				Help: "Total number of realm runtimes rebuilt",
			},
		),
		PoolInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_pool_in_use",
				Help: "Number of pooled executors currently checked out",
			},
		),

		StoreOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "functions_store_operations_total",
				Help: "Total number of dynamic function store operations",
			},
			[]string{"backend", "operation", "status"},
		),
		StoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "functions_store_duration_seconds",
				Help:    "Dynamic function store operation duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"backend", "operation"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "backend_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "backend_uptime_seconds",
			Help: "Backend uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordExecution records one sandbox execution
func (m *Metrics) RecordExecution(status string, duration time.Duration) {
	m.Executions.WithLabelValues(status).Inc()
	m.ExecutionDuration.WithLabelValues(status).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Executions++
	m.snapshot.ExecutionSeconds += duration.Seconds()
	if status != "success" {
		m.snapshot.FailedExecutions++
	}
	if status == "timeout" {
		m.snapshot.TimedOut++
	}
	m.mu.Unlock()
}

// RecordHostCall records one host function call
func (m *Metrics) RecordHostCall(function, status string, duration time.Duration) {
	m.HostCalls.WithLabelValues(function, status).Inc()
	m.HostCallDuration.WithLabelValues(function).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.HostCalls++
	if status != "success" {
		m.snapshot.FailedHostCalls++
	}
	m.mu.Unlock()
}

// RecordRealmReset records a rebuilt realm runtime
func (m *Metrics) RecordRealmReset() {
	m.RealmResets.Inc()

	m.mu.Lock()
	m.snapshot.RealmResets++
	m.mu.Unlock()
}

// RecordPoolInUse sets the number of checked-out executors
func (m *Metrics) RecordPoolInUse(n int) {
	m.PoolInUse.Set(float64(n))
}

// RecordStoreOp records a dynamic function store operation
func (m *Metrics) RecordStoreOp(backend, operation, status string, duration time.Duration) {
	m.StoreOps.WithLabelValues(backend, operation, status).Inc()
	m.StoreDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns the running totals
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// UptimeSeconds returns seconds since the metrics were created
func (m *Metrics) UptimeSeconds() float64 {
	return time.Since(m.startTime).Seconds()
}
