package sandbox

import (
	"context"
	"time"
)

// DefaultTimeout applies when a caller passes a non-positive timeout
const DefaultTimeout = 5 * time.Second

// Config defines sandbox configuration
type Config struct {
	Timeout          time.Duration // Default execution timeout
	MaxCallStackSize int           // Maximum JS call stack depth
	EnableConsole    bool          // Capture console.log/info/warn/error
	Globals          []string      // Extra realm globals visible to executed code
	Bootstrap        []Script      // Scripts run on every fresh runtime
}

// Script is a named piece of source run when a runtime is created
type Script struct {
	Name   string
	Source string
}

// DefaultConfig returns the default sandbox configuration
func DefaultConfig() Config {
	return Config{
		Timeout:          DefaultTimeout,
		MaxCallStackSize: 1024,
		EnableConsole:    true,
	}
}

// LogLevel is the console method that produced a log entry
type LogLevel string

const (
	LevelLog   LogLevel = "log"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Log is one captured console line
type Log struct {
	Level     LogLevel  `json:"level"`
	Args      []any     `json:"args"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType classifies an observability event
type EventType string

const (
	EventPropertyAccess EventType = "property_access"
	EventVariableSet    EventType = "variable_set"
	EventFunctionStart  EventType = "function_start"
	EventFunctionEnd    EventType = "function_end"
	EventFunctionError  EventType = "function_error"
)

// Event records one capability access, assignment or call transition
type Event struct {
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// CallID returns the call correlation id of function_* events
func (e Event) CallID() string {
	s, _ := e.Data["call_id"].(string)
	return s
}

// Name returns the property or function name the event refers to
func (e Event) Name() string {
	for _, key := range []string{"name", "property"} {
		if s, ok := e.Data[key].(string); ok {
			return s
		}
	}
	return ""
}

// Result holds the outcome of one execution.
// OK is true exactly when Error is empty.
type Result struct {
	OK          bool          `json:"ok"`
	Data        any           `json:"data,omitempty"`
	Error       string        `json:"error,omitempty"`
	ExecutionID string        `json:"executionId"`
	Logs        []Log         `json:"logs"`
	Events      []Event       `json:"events"`
	Duration    time.Duration `json:"duration"`

	// Err classifies a failure; see errors.go
	Err error `json:"-"`
}

// EventsOfType filters the result's events
func (r *Result) EventsOfType(t EventType) []Event {
	var out []Event
	for _, ev := range r.Events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// HostFunc is a host-side callable. It runs on the host, outside the realm, and
// appears to executed code as a function returning a promise.
type HostFunc func(ctx context.Context, args ...any) (any, error)

// SyncFunc is a realm-local callable invoked inline on the realm goroutine.
// It must not block.
type SyncFunc func(args ...any) (any, error)

type exposedKind int

const (
	kindData exposedKind = iota
	kindFunc
	kindSync
)

// Exposed is one entry of an exposed context: plain data, a host callable or a
// synchronous realm-local callable. The kind is fixed at construction.
type Exposed struct {
	kind  exposedKind
	value any
	fn    HostFunc
	sync  SyncFunc
}

// Data exposes a serializable value
func Data(v any) Exposed { return Exposed{kind: kindData, value: v} }

// Func exposes a host callable
func Func(fn HostFunc) Exposed { return Exposed{kind: kindFunc, fn: fn} }

// Sync exposes a synchronous realm-local callable
func Sync(fn SyncFunc) Exposed { return Exposed{kind: kindSync, sync: fn} }

// IsCallable reports whether the entry is invoked rather than read
func (e Exposed) IsCallable() bool { return e.kind != kindData }

// Context maps names visible to executed code to their exposed values
type Context map[string]Exposed

// DataContext builds a context exposing every value as data
func DataContext(values map[string]any) Context {
	ctx := make(Context, len(values))
	for k, v := range values {
		ctx[k] = Data(v)
	}
	return ctx
}

// Merge returns a new context with other's entries layered over c's
func (c Context) Merge(other Context) Context {
	out := make(Context, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Recorder receives execution metrics. *monitoring.Metrics satisfies it.
type Recorder interface {
	RecordExecution(status string, duration time.Duration)
	RecordHostCall(function, status string, duration time.Duration)
	RecordRealmReset()
	RecordPoolInUse(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordExecution(string, time.Duration) {}
func (nopRecorder) RecordHostCall(string, string, time.Duration) {}
func (nopRecorder) RecordRealmReset() {}
func (nopRecorder) RecordPoolInUse(int) {}
