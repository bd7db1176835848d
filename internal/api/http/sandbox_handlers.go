package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scribe/backend/internal/sandbox"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ExecuteRequest is the body of POST /sandbox/execute
type ExecuteRequest struct {
	Code      string         `json:"code" binding:"required"`
	Context   map[string]any `json:"context"`
	TimeoutMs int64          `json:"timeoutMs"`
}

// ExecuteResponse is a sandbox result with the duration in milliseconds
type ExecuteResponse struct {
	*sandbox.Result
	DurationMs float64 `json:"durationMs"`
}

// Validate checks request limits and returns the effective timeout
func (r *ExecuteRequest) Validate() (time.Duration, error) {
	if len(r.Code) > MaxCodeSize {
		return 0, fmt.Errorf("code size %d bytes exceeds maximum %d bytes", len(r.Code), MaxCodeSize)
	}
	if r.TimeoutMs < 0 || r.TimeoutMs > MaxTimeout {
		return 0, fmt.Errorf("timeoutMs must be between 0 and %d", MaxTimeout)
	}
	if err := ValidateContext(r.Context); err != nil {
		return 0, err
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond, nil
}

// Surface builds the sandbox context: request data plus host functions
func Surface(values map[string]any, host sandbox.Context) sandbox.Context {
	return sandbox.DataContext(values).Merge(host)
}

// Execute runs submitted code
func (h *Handlers) Execute(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestSize)

	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}
	timeout, err := req.Validate()
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	var span *tracing.Span
	if h.tracer != nil {
		span, ctx = h.tracer.StartSpan(ctx, "sandbox.execute")
		defer h.tracer.Submit(span)
	}

	result, err := h.executor.Execute(ctx, req.Code, Surface(req.Context, h.host), timeout)
	if err != nil {
		h.logger.Warn("Execution could not start", append(tracing.Fields(ctx), zap.Error(err))...)
		if span != nil {
			span.SetError(err)
		}
		errorResponse(c, executorStatus(err), err)
		return
	}
	if span != nil {
		span.SetTag("execution_id", result.ExecutionID)
		span.SetTag("ok", strconv.FormatBool(result.OK))
	}

	c.JSON(http.StatusOK, ExecuteResponse{
		Result:     result,
		DurationMs: float64(result.Duration) / float64(time.Millisecond),
	})
}

// Reset gives every pooled realm a clean slate
func (h *Handlers) Reset(c *gin.Context) {
	if err := h.executor.Reset(); err != nil {
		errorResponse(c, executorStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// executorStatus maps a failure to start an execution to an HTTP status
func executorStatus(err error) int {
	switch {
	case errors.Is(err, sandbox.ErrPoolClosed),
		errors.Is(err, sandbox.ErrAcquireTimeout),
		errors.Is(err, sandbox.ErrRealmBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
