package sandbox

import (
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/scribe/backend/internal/shared/id"
)

// Binding is one entry of a membrane's backing store. Callable is decided
// when the entry is written, never re-inspected on access.
type Binding struct {
	Value    any
	Callable bool
}

type callStart struct {
	name string
	at   time.Time
}

// Membrane mediates every access executed code makes to its exposed surface
// and records each one as an Event. Reads of absent keys are not errors, and
// existence checks always succeed so that free identifiers never reach the
// enclosing scope. A Membrane lives for exactly one run.
type Membrane struct {
	mu     sync.Mutex
	store  map[string]Binding
	starts map[string]callStart

	emit   func(Event)
	export func(any) any
}

// NewMembrane creates an empty membrane reporting events to emit
func NewMembrane(emit func(Event)) *Membrane {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Membrane{
		store:  make(map[string]Binding),
		starts: make(map[string]callStart),
		emit:   emit,
		export: func(v any) any { return v },
	}
}

// Define installs a binding without recording an event. It is used while the
// surface is being assembled, before executed code runs.
func (m *Membrane) Define(key string, b Binding) {
	m.mu.Lock()
	m.store[key] = b
	m.mu.Unlock()
}

// Get records a property_access and returns the binding, if any
func (m *Membrane) Get(key string) (Binding, bool) {
	m.record(EventPropertyAccess, map[string]any{"property": key})

	m.mu.Lock()
	b, ok := m.store[key]
	m.mu.Unlock()
	return b, ok
}

// Has reports every key as present
func (m *Membrane) Has(string) bool { return true }

// Set stores a binding and records a variable_set
func (m *Membrane) Set(key string, b Binding) {
	m.mu.Lock()
	m.store[key] = b
	m.mu.Unlock()

	m.record(EventVariableSet, map[string]any{
		"name":  key,
		"value": m.export(b.Value),
	})
}

// Delete removes a binding
func (m *Membrane) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.store[key]
	delete(m.store, key)
	return ok
}

// Keys returns the names currently bound, sorted
func (m *Membrane) Keys() []string {
	m.mu.Lock()
	keys := make([]string, 0, len(m.store))
	for k := range m.store {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// CallStarted records function_start and returns the new call's id
func (m *Membrane) CallStarted(name string, args []any) string {
	callID := id.NewCallID().String()

	m.mu.Lock()
	m.starts[callID] = callStart{name: name, at: time.Now()}
	m.mu.Unlock()

	exported := make([]any, len(args))
	for i, a := range args {
		exported[i] = m.export(a)
	}
	m.record(EventFunctionStart, map[string]any{
		"name":    name,
		"args":    exported,
		"call_id": callID,
	})
	return callID
}

// CallEnded records function_end. A call finishes at most once; later
// reports for the same id are ignored.
func (m *Membrane) CallEnded(callID string, result any) {
	start, ok := m.finish(callID)
	if !ok {
		return
	}
	m.record(EventFunctionEnd, map[string]any{
		"name":     start.name,
		"call_id":  callID,
		"duration": millis(time.Since(start.at)),
		"result":   m.export(result),
	})
}

// CallFailed records function_error
func (m *Membrane) CallFailed(callID string, message string) {
	start, ok := m.finish(callID)
	if !ok {
		return
	}
	m.record(EventFunctionError, map[string]any{
		"name":     start.name,
		"call_id":  callID,
		"duration": millis(time.Since(start.at)),
		"error":    message,
	})
}

// Pending returns the ids of calls that started and have not finished
func (m *Membrane) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.starts))
	for callID := range m.starts {
		ids = append(ids, callID)
	}
	sort.Strings(ids)
	return ids
}

func (m *Membrane) finish(callID string) (callStart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start, ok := m.starts[callID]
	delete(m.starts, callID)
	return start, ok
}

func (m *Membrane) record(t EventType, data map[string]any) {
	m.emit(Event{Type: t, Data: data, Timestamp: time.Now()})
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
