package http

import (
	"context"
	"net/http"
	"time"

	"github.com/GriffinCanCode/scribe/backend/internal/functions"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scribe/backend/internal/sandbox"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the root and health endpoints
const Version = "0.3.0"

// Executor runs code on behalf of a request. *sandbox.Pool satisfies it.
type Executor interface {
	Execute(ctx context.Context, code string, exposed sandbox.Context, timeout time.Duration, opts ...sandbox.ExecuteOption) (*sandbox.Result, error)
	Reset() error
	Stats() sandbox.PoolStats
}

// Handlers contains all HTTP handlers
type Handlers struct {
	executor Executor
	store    functions.WritableStore
	backend  string
	host     sandbox.Context
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	logger   *zap.Logger
}

// Option configures Handlers
type Option func(*Handlers)

// WithHostFunctions exposes host to every execution request. Request
// context keys with the same name are overridden by host.
func WithHostFunctions(host sandbox.Context) Option {
	return func(h *Handlers) {
		h.host = host
	}
}

// WithMetrics enables the stats endpoint's metric summary
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(h *Handlers) {
		h.metrics = metrics
	}
}

// WithTracer opens a span around every execution
func WithTracer(tracer *tracing.Tracer) Option {
	return func(h *Handlers) {
		h.tracer = tracer
	}
}

// WithLogger sets the handler logger
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandlers creates a new handler set. backend labels the function store
// in health and stats responses.
func NewHandlers(executor Executor, store functions.WritableStore, backend string, opts ...Option) *Handlers {
	h := &Handlers{
		executor: executor,
		store:    store,
		backend:  backend,
		host:     Builtins(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("api")
	return h
}

// Register mounts every route on router
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	sb := router.Group("/sandbox")
	sb.POST("/execute", h.Execute)
	sb.POST("/reset", h.Reset)
	sb.GET("/stats", h.Stats)

	fns := router.Group("/functions")
	fns.GET("", h.ListFunctions)
	fns.GET("/:name", h.GetFunction)
	fns.PUT("/:name", h.PutFunction)
	fns.DELETE("/:name", h.DeleteFunction)
}

// Root handles the liveness probe
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Scribe Sandbox Service",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	pool := h.executor.Stats()
	status, code := "healthy", http.StatusOK
	if pool.Closed {
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"version":   Version,
		"sandbox":   pool,
		"functions": gin.H{"backend": h.backend},
	})
}

func errorResponse(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{"error": err.Error()})
}
