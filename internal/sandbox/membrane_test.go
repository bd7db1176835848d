package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	events []Event
}

func (l *eventLog) record(ev Event) { l.events = append(l.events, ev) }

func (l *eventLog) types() []EventType {
	out := make([]EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func TestMembraneGetRecordsEveryAccess(t *testing.T) {
	log := &eventLog{}
	m := NewMembrane(log.record)
	m.Define("limit", Binding{Value: 10})

	b, ok := m.Get("limit")
	require.True(t, ok)
	assert.Equal(t, 10, b.Value)

	_, ok = m.Get("missing")
	assert.False(t, ok)

	require.Len(t, log.events, 2)
	assert.Equal(t, EventPropertyAccess, log.events[0].Type)
	assert.Equal(t, "limit", log.events[0].Data["property"])
	assert.Equal(t, "missing", log.events[1].Name())
}

func TestMembraneDefineIsSilent(t *testing.T) {
	log := &eventLog{}
	m := NewMembrane(log.record)

	m.Define("b", Binding{Value: 1})
	m.Define("a", Binding{Value: 2, Callable: true})

	assert.Empty(t, log.events)
	assert.Equal(t, []string{"a", "b"}, m.Keys())
}

func TestMembraneHasEverything(t *testing.T) {
	m := NewMembrane(nil)
	assert.True(t, m.Has("anything"))
	assert.True(t, m.Has(""))
}

func TestMembraneSetAndDelete(t *testing.T) {
	log := &eventLog{}
	m := NewMembrane(log.record)

	m.Set("total", Binding{Value: 5})
	require.Len(t, log.events, 1)
	assert.Equal(t, EventVariableSet, log.events[0].Type)
	assert.Equal(t, "total", log.events[0].Data["name"])
	assert.Equal(t, 5, log.events[0].Data["value"])

	assert.True(t, m.Delete("total"))
	assert.False(t, m.Delete("total"))
	assert.Empty(t, m.Keys())
}

func TestMembraneCallLifecycle(t *testing.T) {
	log := &eventLog{}
	m := NewMembrane(log.record)

	callID := m.CallStarted("double", []any{21})
	require.NotEmpty(t, callID)
	assert.Equal(t, []string{callID}, m.Pending())

	m.CallEnded(callID, 42)
	m.CallEnded(callID, 43)
	m.CallFailed(callID, "late")

	assert.Equal(t, []EventType{EventFunctionStart, EventFunctionEnd}, log.types())
	assert.Empty(t, m.Pending())

	start, end := log.events[0], log.events[1]
	assert.Equal(t, "double", start.Name())
	assert.Equal(t, []any{21}, start.Data["args"])
	assert.Equal(t, callID, start.CallID())
	assert.Equal(t, callID, end.CallID())
	assert.Equal(t, 42, end.Data["result"])
	assert.Contains(t, end.Data, "duration")
}

func TestMembraneCallFailure(t *testing.T) {
	log := &eventLog{}
	m := NewMembrane(log.record)

	first := m.CallStarted("willThrow", nil)
	second := m.CallStarted("willThrow", nil)
	assert.NotEqual(t, first, second)

	m.CallFailed(first, "boom")

	require.Len(t, log.events, 3)
	failed := log.events[2]
	assert.Equal(t, EventFunctionError, failed.Type)
	assert.Equal(t, "boom", failed.Data["error"])
	assert.Equal(t, first, failed.CallID())
	assert.Equal(t, []string{second}, m.Pending())
}
