package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// outcome is the realm's final word on a run
type outcome struct {
	ok     bool
	result any
	err    string
}

// execution collects the traffic of one run on the host side
type execution struct {
	ctx       context.Context
	id        string
	port      *Port
	functions map[string]HostFunc
	observer  func(Message)
	logger    *zap.Logger
	metrics   Recorder

	mu     sync.Mutex
	logs   []Log
	events []Event

	done chan outcome
	once sync.Once
}

func newExecution(ctx context.Context, executionID string, port *Port, exposed Context, logger *zap.Logger, metrics Recorder) *execution {
	functions := make(map[string]HostFunc)
	for name, entry := range exposed {
		if entry.kind == kindFunc {
			functions[name] = entry.fn
		}
	}
	return &execution{
		ctx:       ctx,
		id:        executionID,
		port:      port,
		functions: functions,
		logger:    logger.With(zap.String("execution_id", executionID)),
		metrics:   metrics,
		logs:      []Log{},
		events:    []Event{},
		done:      make(chan outcome, 1),
	}
}

// receive is the run's port listener. Messages of other executions are
// dropped before anything else looks at them.
func (ex *execution) receive(msg Message) {
	if msg.ExecutionID != ex.id {
		return
	}

	switch msg.Kind {
	case MessageLog:
		if msg.Log != nil {
			ex.mu.Lock()
			ex.logs = append(ex.logs, *msg.Log)
			ex.mu.Unlock()
		}
	case MessageEvent:
		if msg.Event != nil {
			ex.mu.Lock()
			ex.events = append(ex.events, *msg.Event)
			ex.mu.Unlock()
		}
	case MessageFunctionCall:
		ex.invoke(msg)
	case MessageSuccess:
		ex.finish(outcome{ok: true, result: msg.Result})
	case MessageError:
		ex.finish(outcome{err: msg.Error})
	default:
		return
	}

	if ex.observer != nil {
		ex.observer(msg)
	}
}

func (ex *execution) finish(out outcome) {
	ex.once.Do(func() {
		ex.done <- out
	})
}

// invoke serves a functionCall on its own goroutine and answers it with a
// functionResult or functionError.
func (ex *execution) invoke(msg Message) {
	fn, ok := ex.functions[msg.Name]
	go func() {
		started := time.Now()
		reply := Message{ExecutionID: ex.id, CallID: msg.CallID, Name: msg.Name}

		var result any
		err := fmt.Errorf("%w: %s", ErrFunctionNotFound, msg.Name)
		if ok {
			result, err = ex.call(fn, msg)
		}

		status := "success"
		if err != nil {
			status = "error"
			reply.Kind = MessageFunctionError
			reply.Error = hostErrorMessage(err)
			ex.logger.Debug("Host function failed",
				zap.String("function", msg.Name),
				zap.String("call_id", msg.CallID),
				zap.Error(err))
		} else {
			reply.Kind = MessageFunctionResult
			reply.Result = Clone(result)
		}
		ex.metrics.RecordHostCall(msg.Name, status, time.Since(started))

		if ex.ctx.Err() == nil {
			ex.port.Post(reply)
		}
	}()
}

// call runs a host function, converting panics and errors to HostCallableError
func (ex *execution) call(fn HostFunc, msg Message) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &HostCallableError{Name: msg.Name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	result, err = fn(ex.ctx, CloneArgs(msg.Args)...)
	if err != nil {
		return nil, &HostCallableError{Name: msg.Name, Err: err}
	}
	return result, nil
}

// hostErrorMessage is the text executed code sees for a failed host call
func hostErrorMessage(err error) string {
	var hostErr *HostCallableError
	if errors.As(err, &hostErr) && hostErr.Err != nil {
		return hostErr.Err.Error()
	}
	return err.Error()
}

// backfill closes every call that started without finishing, so the event
// record never shows a call that silently vanished.
func (ex *execution) backfill(message string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	closed := make(map[string]bool)
	for _, ev := range ex.events {
		if ev.Type == EventFunctionEnd || ev.Type == EventFunctionError {
			closed[ev.CallID()] = true
		}
	}

	n := len(ex.events)
	for i := 0; i < n; i++ {
		ev := ex.events[i]
		if ev.Type != EventFunctionStart || closed[ev.CallID()] {
			continue
		}
		closed[ev.CallID()] = true
		ex.events = append(ex.events, Event{
			Type: EventFunctionError,
			Data: map[string]any{
				"name":        ev.Data["name"],
				"call_id":     ev.CallID(),
				"error":       message,
				"synthesized": true,
			},
			Timestamp: time.Now(),
		})
	}
}

// snapshot hands the collected buffers to the caller
func (ex *execution) snapshot() ([]Log, []Event) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.logs, ex.events
}
