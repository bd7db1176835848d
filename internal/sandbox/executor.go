package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/scribe/backend/internal/shared/id"
)

// Executor drives executions on one long-lived realm, one at a time
type Executor struct {
	config  Config
	logger  *zap.Logger
	metrics Recorder
	source  FunctionSource

	runMu sync.Mutex
	realm *Realm
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the executor's logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics Recorder) Option {
	return func(e *Executor) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

// WithFunctionSource exposes source as load_dynamic_function on every run
// whose context does not bring its own.
func WithFunctionSource(source FunctionSource) Option {
	return func(e *Executor) {
		e.source = source
	}
}

// ExecuteOption configures a single Execute call
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	observer func(Message)
}

// WithObserver streams every accepted message of the run to fn as it arrives.
// fn runs on the dispatch goroutine and must not block.
func WithObserver(fn func(Message)) ExecuteOption {
	return func(o *executeOptions) {
		o.observer = fn
	}
}

// NewExecutor creates an executor. The realm is created on first use.
func NewExecutor(config Config, opts ...Option) *Executor {
	e := &Executor{
		config:  config,
		logger:  zap.NewNop(),
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("sandbox")
	e.realm = NewRealm(config, e.logger, e.metrics)
	return e
}

// Initialize readies the realm ahead of the first execution
func (e *Executor) Initialize() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.realm.Initialize()
}

// Reset gives the realm a clean slate
func (e *Executor) Reset() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.realm.Reset()
}

// Destroy tears the realm down. A later Execute initializes a new one.
func (e *Executor) Destroy() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.realm.Destroy()
}

// State reports the realm's lifecycle state
func (e *Executor) State() State {
	return e.realm.State()
}

// Execute runs code with exposed visible to it and waits for the outcome, the
// timeout or ctx, whichever comes first. A non-positive timeout means the
// configured default.
//
// Failures of the executed code, timeouts and cancellation are reported in the
// Result. Only realm lifecycle problems are returned as errors.
func (e *Executor) Execute(ctx context.Context, code string, exposed Context, timeout time.Duration, opts ...ExecuteOption) (*Result, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	var options executeOptions
	for _, opt := range opts {
		opt(&options)
	}
	if timeout <= 0 {
		timeout = e.config.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	started := time.Now()
	if err := e.realm.Initialize(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	executionID := id.NewExecutionID().String()
	exposed = e.surface(exposed)
	ex := newExecution(runCtx, executionID, e.realm.Port(), exposed, e.logger, e.metrics)
	ex.observer = options.observer

	unsubscribe := e.realm.Port().Subscribe(ex.receive)
	handle, err := e.realm.InjectAndRun(code, exposed, executionID)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		out     outcome
		failure error
	)
	select {
	case out = <-ex.done:
		if !out.ok {
			message := out.err
			if message == "" {
				message = "execution failed"
			}
			failure = &ExecutedCodeError{Message: message}
		}
	case <-timer.C:
		failure = fmt.Errorf("%w after %s", ErrExecutionTimeout, timeout)
		handle.Abandon(ErrExecutionTimeout.Error())
	case <-ctx.Done():
		failure = ctx.Err()
		handle.Abandon(failure.Error())
	}
	unsubscribe()

	if failure != nil {
		ex.backfill(failure.Error())
	}
	logs, events := ex.snapshot()

	result := &Result{
		OK:          failure == nil,
		ExecutionID: executionID,
		Logs:        logs,
		Events:      events,
		Duration:    time.Since(started),
	}
	if failure != nil {
		result.Error = failure.Error()
		result.Err = failure
	} else {
		result.Data = out.result
	}

	e.metrics.RecordExecution(failureStatus(failure), result.Duration)
	e.logger.Debug("Execution finished",
		zap.String("execution_id", executionID),
		zap.Bool("ok", result.OK),
		zap.Duration("duration", result.Duration),
		zap.Int("events", len(events)),
		zap.Int("logs", len(logs)))

	return result, nil
}

// surface adds the configured function source to a caller's context
func (e *Executor) surface(exposed Context) Context {
	if e.source == nil {
		return exposed
	}
	if _, ok := exposed[loadFunctionName]; ok {
		return exposed
	}
	return Context{loadFunctionName: LoadFunction(e.source)}.Merge(exposed)
}
