package functions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps functions in a map. It backs tests and single-process setups.
type Memory struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewMemory creates a store seeded with fns
func NewMemory(fns ...Function) *Memory {
	m := &Memory{functions: make(map[string]Function, len(fns))}
	for _, fn := range fns {
		if fn.UpdatedAt.IsZero() {
			fn.UpdatedAt = time.Now().UTC()
		}
		m.functions[fn.Name] = fn
	}
	return m
}

func (m *Memory) Lookup(ctx context.Context, name string) (string, error) {
	fn, err := m.Get(ctx, name)
	if err != nil {
		return "", err
	}
	return fn.Code, nil
}

func (m *Memory) Get(_ context.Context, name string) (*Function, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fn, ok := m.functions[name]
	if !ok {
		return nil, notFound(name)
	}
	return &fn, nil
}

func (m *Memory) List(_ context.Context) ([]Function, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Function, 0, len(m.functions))
	for _, fn := range m.functions {
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Put(_ context.Context, fn Function) error {
	if err := ValidateFunction(fn); err != nil {
		return err
	}
	fn.UpdatedAt = time.Now().UTC()

	m.mu.Lock()
	m.functions[fn.Name] = fn
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.functions[name]; !ok {
		return notFound(name)
	}
	delete(m.functions, name)
	return nil
}

func (m *Memory) Close() error { return nil }
