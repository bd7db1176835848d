package sandbox

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/scribe/backend/internal/shared/id"
)

var wrapperFactory = goja.MustCompile("membrane-wrapper", wrapperFactorySource, true)

// errUnsettled closes calls a successful run started but never awaited
const errUnsettled = "run finished before call settled"

type pendingCall struct {
	resolve func(any) error
	reject  func(any) error
}

// run is the realm side of one execution. Apart from finished, every field
// is only touched on the realm goroutine.
type run struct {
	realm    *Realm
	vm       *goja.Runtime
	id       string
	port     *Port
	membrane *Membrane
	scope    *scope
	promise  *goja.Promise

	pending   map[string]pendingCall
	timers    map[int64]*time.Timer
	nextTimer int64

	finished atomic.Bool
}

func (rn *run) start(code string, exposed Context) {
	if rn.finished.Load() {
		return
	}

	wrap, err := rn.wrapper()
	if err != nil {
		rn.fail(errorMessage(err))
		return
	}
	rn.scope = newScope(rn.vm, rn.membrane, wrap, rn.realm.intrinsics)
	rn.installGlobals()

	for name, entry := range exposed {
		rn.membrane.Define(name, rn.bind(name, entry))
	}
	if _, ok := exposed[loadFunctionName]; ok {
		if _, ok := exposed[runFunctionName]; !ok {
			runner, err := rn.dynamicRunner()
			if err != nil {
				rn.fail(errorMessage(err))
				return
			}
			rn.membrane.Define(runFunctionName, Binding{Value: runner, Callable: true})
		}
	}

	prg, err := compileBound("run", runSource(code))
	if err != nil {
		rn.fail(err.Error())
		return
	}
	result, err := rn.scope.bind(prg)
	if err != nil {
		rn.fail(errorMessage(err))
		return
	}

	p, ok := result.Export().(*goja.Promise)
	if !ok {
		rn.succeed(result)
		return
	}
	rn.promise = p
	rn.settle()
}

// do schedules fn for this run and checks for settlement afterwards
func (rn *run) do(fn func()) {
	rn.realm.enqueue(func() {
		if rn.finished.Load() {
			return
		}
		fn()
		rn.settle()
	})
}

func (rn *run) settle() {
	if rn.finished.Load() || rn.promise == nil {
		return
	}
	switch rn.promise.State() {
	case goja.PromiseStateFulfilled:
		rn.succeed(rn.promise.Result())
	case goja.PromiseStateRejected:
		rn.fail(errorMessage(rn.promise.Result()))
	}
}

func (rn *run) succeed(v goja.Value) {
	rn.finish(Message{
		Kind:        MessageSuccess,
		ExecutionID: rn.id,
		Result:      rn.scope.export(v),
	})
}

func (rn *run) fail(message string) {
	rn.finish(Message{
		Kind:        MessageError,
		ExecutionID: rn.id,
		Error:       message,
	})
}

// finish releases the realm before reporting, so the host may start the
// next run as soon as it sees the outcome. A successful run closes its
// unsettled calls first; failed runs are backfilled by the host.
func (rn *run) finish(msg Message) {
	if !rn.finished.CompareAndSwap(false, true) {
		return
	}
	if msg.Kind == MessageSuccess {
		for _, callID := range rn.membrane.Pending() {
			rn.membrane.CallFailed(callID, errUnsettled)
		}
	}
	rn.cleanup()
	rn.realm.release(rn)
	rn.port.emit(msg)
}

func (rn *run) cleanup() {
	for tid, t := range rn.timers {
		t.Stop()
		delete(rn.timers, tid)
	}
	clear(rn.pending)
}

func (rn *run) event(ev Event) {
	rn.port.emit(Message{Kind: MessageEvent, ExecutionID: rn.id, Event: &ev})
}

// bind turns an exposed entry into a membrane binding
func (rn *run) bind(name string, entry Exposed) Binding {
	switch entry.kind {
	case kindFunc:
		return Binding{Value: rn.stub(name), Callable: true}
	case kindSync:
		return Binding{Value: rn.syncNative(entry.sync), Callable: true}
	}
	return Binding{Value: Clone(entry.value)}
}

// stub is the realm face of a host callable: each call is posted to the host
// as a functionCall and answered through the returned promise.
func (rn *run) stub(name string) goja.Value {
	return rn.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		promise, resolve, reject := rn.vm.NewPromise()
		callID := id.NewCallID().String()
		rn.pending[callID] = pendingCall{resolve: resolve, reject: reject}

		rn.port.emit(Message{
			Kind:        MessageFunctionCall,
			ExecutionID: rn.id,
			CallID:      callID,
			Name:        name,
			Args:        rn.exportArgs(call.Arguments),
		})
		return rn.vm.ToValue(promise)
	})
}

func (rn *run) answer(msg Message) {
	pc, ok := rn.pending[msg.CallID]
	if !ok {
		return
	}
	delete(rn.pending, msg.CallID)

	switch msg.Kind {
	case MessageFunctionResult:
		_ = pc.resolve(rn.scope.value(msg.Result))
	case MessageFunctionError:
		_ = pc.reject(rn.newError(msg.Error))
	}
}

func (rn *run) syncNative(fn SyncFunc) goja.Value {
	return rn.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		result, err := callSync(fn, rn.exportArgs(call.Arguments))
		if err != nil {
			panic(rn.newError(err.Error()))
		}
		return rn.vm.ToValue(Clone(result))
	})
}

func callSync(fn SyncFunc, args []any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(args...)
}

// wrapper builds the lifecycle wrapper for this run's membrane
func (rn *run) wrapper() (goja.Callable, error) {
	factory, err := rn.vm.RunProgram(wrapperFactory)
	if err != nil {
		return nil, err
	}
	build, ok := goja.AssertFunction(factory)
	if !ok {
		return nil, errors.New("membrane wrapper factory is not a function")
	}

	started := func(call goja.FunctionCall) goja.Value {
		args := rn.arrayValues(call.Argument(1))
		exported := make([]any, len(args))
		for i, a := range args {
			exported[i] = a
		}
		return rn.vm.ToValue(rn.membrane.CallStarted(call.Argument(0).String(), exported))
	}
	ended := func(call goja.FunctionCall) goja.Value {
		rn.membrane.CallEnded(call.Argument(0).String(), call.Argument(1))
		return goja.Undefined()
	}
	failed := func(call goja.FunctionCall) goja.Value {
		rn.membrane.CallFailed(call.Argument(0).String(), errorMessage(call.Argument(1)))
		return goja.Undefined()
	}

	wrap, err := build(goja.Undefined(), rn.vm.ToValue(started), rn.vm.ToValue(ended), rn.vm.ToValue(failed))
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(wrap)
	if !ok {
		return nil, errors.New("membrane wrapper is not a function")
	}
	return fn, nil
}

func (rn *run) installGlobals() {
	console := rn.vm.NewObject()
	for _, level := range []LogLevel{LevelLog, LevelInfo, LevelWarn, LevelError} {
		_ = console.Set(string(level), rn.consoleFunc(level))
	}
	_ = rn.vm.Set("console", console)
	_ = rn.vm.Set("setTimeout", rn.setTimeout)
	_ = rn.vm.Set("clearTimeout", rn.clearTimeout)
}

func (rn *run) consoleFunc(level LogLevel) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !rn.realm.config.EnableConsole {
			return goja.Undefined()
		}
		rn.port.emit(Message{
			Kind:        MessageLog,
			ExecutionID: rn.id,
			Log: &Log{
				Level:     level,
				Args:      rn.exportArgs(call.Arguments),
				Timestamp: time.Now(),
			},
		})
		return goja.Undefined()
	}
}

func (rn *run) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(rn.vm.NewTypeError("setTimeout callback is not a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	var extra []goja.Value
	if len(call.Arguments) > 2 {
		extra = append(extra, call.Arguments[2:]...)
	}

	rn.nextTimer++
	tid := rn.nextTimer
	rn.timers[tid] = time.AfterFunc(delay, func() {
		rn.do(func() {
			if _, ok := rn.timers[tid]; !ok {
				return
			}
			delete(rn.timers, tid)
			if _, err := fn(goja.Undefined(), extra...); err != nil {
				var interrupted *goja.InterruptedError
				if !errors.As(err, &interrupted) {
					rn.fail(errorMessage(err))
				}
			}
		})
	})
	return rn.vm.ToValue(tid)
}

func (rn *run) clearTimeout(call goja.FunctionCall) goja.Value {
	tid := call.Argument(0).ToInteger()
	if t, ok := rn.timers[tid]; ok {
		t.Stop()
		delete(rn.timers, tid)
	}
	return goja.Undefined()
}

func (rn *run) exportArgs(values []goja.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = rn.scope.export(v)
	}
	return out
}

func (rn *run) arrayValues(v goja.Value) []goja.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj := v.ToObject(rn.vm)
	n := obj.Get("length").ToInteger()
	out := make([]goja.Value, 0, n)
	for i := int64(0); i < n; i++ {
		out = append(out, obj.Get(strconv.FormatInt(i, 10)))
	}
	return out
}

// newError creates a realm Error carrying message
func (rn *run) newError(message string) goja.Value {
	obj, err := rn.vm.New(rn.vm.Get("Error"), rn.vm.ToValue(message))
	if err != nil {
		return rn.vm.ToValue(message)
	}
	return obj
}
