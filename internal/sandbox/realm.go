package sandbox

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// State is a realm lifecycle state
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateExecuting
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

const (
	taskBuffer = 1024
	portBuffer = 1024
)

// Realm owns one goja runtime and the goroutine that runs it. All JavaScript
// executes on that goroutine; the host talks to it only through its Port.
type Realm struct {
	config  Config
	logger  *zap.Logger
	metrics Recorder

	mu      sync.Mutex
	state   State
	vm      *goja.Runtime
	tainted bool
	current *run
	port    *Port

	tasks    chan func()
	quit     chan struct{}
	loopDone chan struct{}

	intrinsics map[string]bool
}

// NewRealm creates an uninitialized realm
func NewRealm(config Config, logger *zap.Logger, metrics Recorder) *Realm {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}

	intrinsics := make(map[string]bool, len(intrinsicNames)+len(config.Globals))
	for _, name := range intrinsicNames {
		intrinsics[name] = true
	}
	for _, name := range config.Globals {
		intrinsics[name] = true
	}

	return &Realm{
		config:     config,
		logger:     logger.Named("realm"),
		metrics:    metrics,
		intrinsics: intrinsics,
	}
}

// State returns the current lifecycle state
func (r *Realm) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Port returns the host end of the realm's message channel, nil before
// the first Initialize.
func (r *Realm) Port() *Port {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.port
}

// Initialize creates the runtime, its loop and its port. Calling it on a ready
// realm is a no-op; after Destroy it starts over.
func (r *Realm) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateReady, StateExecuting:
		return nil
	}
	r.state = StateInitializing

	vm, err := r.newRuntime()
	if err != nil {
		r.state = StateUninitialized
		r.logger.Error("Realm initialization failed", zap.Error(err))
		return &RealmInitError{Err: err}
	}

	r.vm = vm
	r.tainted = false
	r.current = nil
	r.tasks = make(chan func(), taskBuffer)
	r.quit = make(chan struct{})
	r.loopDone = make(chan struct{})
	r.port = newPort(portBuffer, r.deliver)
	go r.loop(r.tasks, r.quit, r.loopDone)

	r.state = StateReady
	r.logger.Debug("Realm initialized")
	return nil
}

// Reset replaces the runtime with a blank one, keeping the loop and port
func (r *Realm) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateUninitialized, StateInitializing, StateDestroyed:
		return ErrRealmNotInitialized
	case StateExecuting:
		return ErrRealmBusy
	}
	return r.resetLocked()
}

func (r *Realm) resetLocked() error {
	vm, err := r.newRuntime()
	if err != nil {
		return &RealmInitError{Err: err}
	}
	r.vm = vm
	r.tainted = false
	r.metrics.RecordRealmReset()
	r.logger.Debug("Realm reset")
	return nil
}

// Destroy stops the loop and the port. An in-flight run is interrupted.
func (r *Realm) Destroy() error {
	r.mu.Lock()
	if r.state == StateUninitialized || r.state == StateDestroyed {
		r.state = StateDestroyed
		r.mu.Unlock()
		return nil
	}
	rn := r.current
	r.current = nil
	r.state = StateDestroyed
	vm, quit, loopDone, port := r.vm, r.quit, r.loopDone, r.port
	r.vm = nil
	r.tasks = nil
	r.mu.Unlock()

	if rn != nil {
		rn.finished.Store(true)
	}
	if vm != nil {
		vm.Interrupt("realm destroyed")
	}
	close(quit)
	<-loopDone
	port.close()

	r.logger.Debug("Realm destroyed")
	return nil
}

// InjectAndRun starts code bound to a fresh membrane built from exposed and
// returns without waiting for it. Every message the run produces carries
// executionID.
func (r *Realm) InjectAndRun(code string, exposed Context, executionID string) (*RunHandle, error) {
	r.mu.Lock()
	switch r.state {
	case StateUninitialized, StateInitializing, StateDestroyed:
		r.mu.Unlock()
		return nil, ErrRealmNotInitialized
	case StateExecuting:
		r.mu.Unlock()
		return nil, ErrRealmBusy
	}
	if r.tainted {
		if err := r.resetLocked(); err != nil {
			r.mu.Unlock()
			return nil, err
		}
	}

	rn := &run{
		realm:   r,
		vm:      r.vm,
		id:      executionID,
		port:    r.port,
		pending: make(map[string]pendingCall),
		timers:  make(map[int64]*time.Timer),
	}
	rn.membrane = NewMembrane(rn.event)
	r.current = rn
	r.state = StateExecuting
	r.mu.Unlock()

	if !r.enqueue(func() { rn.start(code, exposed) }) {
		r.release(rn)
		return nil, ErrRealmNotInitialized
	}
	return &RunHandle{ExecutionID: executionID, run: rn}, nil
}

// RunHandle identifies one started run
type RunHandle struct {
	ExecutionID string
	run         *run
}

// Surface returns the run's membrane
func (h *RunHandle) Surface() *Membrane {
	return h.run.membrane
}

// Abandon gives up on the run. Realm code still executing is interrupted and
// its pending callbacks are dropped. The realm returns to Ready at once but
// is rebuilt before its next run.
func (h *RunHandle) Abandon(reason string) {
	rn := h.run
	if !rn.finished.CompareAndSwap(false, true) {
		return
	}
	r := rn.realm
	rn.vm.Interrupt(reason)

	r.mu.Lock()
	if r.current == rn {
		r.current = nil
		r.tainted = true
		if r.state == StateExecuting {
			r.state = StateReady
		}
	}
	r.mu.Unlock()

	r.enqueue(rn.cleanup)
	r.logger.Debug("Run abandoned", zap.String("execution_id", rn.id), zap.String("reason", reason))
}

func (r *Realm) release(rn *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == rn {
		r.current = nil
		if r.state == StateExecuting {
			r.state = StateReady
		}
	}
}

func (r *Realm) loop(tasks <-chan func(), quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case task := <-tasks:
			task()
		case <-quit:
			return
		}
	}
}

// enqueue schedules fn on the realm goroutine. It reports false once the
// loop has stopped.
func (r *Realm) enqueue(fn func()) bool {
	r.mu.Lock()
	tasks, quit := r.tasks, r.quit
	r.mu.Unlock()
	if tasks == nil {
		return false
	}

	select {
	case tasks <- fn:
		return true
	case <-quit:
		return false
	}
}

// deliver routes a host message to the run it belongs to
func (r *Realm) deliver(msg Message) {
	r.mu.Lock()
	rn := r.current
	r.mu.Unlock()

	if rn == nil || rn.id != msg.ExecutionID {
		return
	}
	rn.do(func() { rn.answer(msg) })
}

// newRuntime builds and hardens a blank goja runtime
func (r *Realm) newRuntime() (vm *goja.Runtime, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("runtime setup panicked: %v", p)
		}
	}()

	vm = goja.New()
	if r.config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStackSize)
	}

	for _, name := range removedGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return nil, err
		}
	}
	disabled, err := vm.RunString(hardenSource)
	if err != nil {
		return nil, fmt.Errorf("harden runtime: %w", err)
	}
	for _, name := range disabledGlobals {
		if err := vm.Set(name, disabled); err != nil {
			return nil, err
		}
	}

	for _, script := range r.config.Bootstrap {
		if _, err := vm.RunScript(script.Name, script.Source); err != nil {
			return nil, fmt.Errorf("bootstrap %s: %w", script.Name, err)
		}
	}
	return vm, nil
}
