package functions

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/monitoring"
)

// Instrumented times every store operation. It always offers Put and
// Delete and answers ErrReadOnly when the wrapped backend cannot write.
type Instrumented struct {
	store   Store
	backend string
	metrics *monitoring.Metrics
}

// Instrument wraps store so its operations are recorded under backend
func Instrument(store Store, backend string, metrics *monitoring.Metrics) *Instrumented {
	return &Instrumented{store: store, backend: backend, metrics: metrics}
}

// Backend returns the backend label
func (s *Instrumented) Backend() string { return s.backend }

// Unwrap returns the wrapped store
func (s *Instrumented) Unwrap() Store { return s.store }

// Writable reports whether Put and Delete reach a writable backend
func (s *Instrumented) Writable() bool {
	_, ok := s.store.(WritableStore)
	return ok
}

func (s *Instrumented) Lookup(ctx context.Context, name string) (code string, err error) {
	defer s.time("lookup")(&err)
	return s.store.Lookup(ctx, name)
}

func (s *Instrumented) Get(ctx context.Context, name string) (fn *Function, err error) {
	defer s.time("get")(&err)
	return s.store.Get(ctx, name)
}

func (s *Instrumented) List(ctx context.Context) (fns []Function, err error) {
	defer s.time("list")(&err)
	return s.store.List(ctx)
}

func (s *Instrumented) Put(ctx context.Context, fn Function) (err error) {
	w, ok := s.store.(WritableStore)
	if !ok {
		return ErrReadOnly
	}
	defer s.time("put")(&err)
	return w.Put(ctx, fn)
}

func (s *Instrumented) Delete(ctx context.Context, name string) (err error) {
	w, ok := s.store.(WritableStore)
	if !ok {
		return ErrReadOnly
	}
	defer s.time("delete")(&err)
	return w.Delete(ctx, name)
}

func (s *Instrumented) Close() error {
	return s.store.Close()
}

func (s *Instrumented) time(operation string) func(*error) {
	timer := monitoring.NewTimer(s.metrics, s.backend, operation)
	return func(err *error) {
		switch {
		case *err == nil:
			timer.Stop("success")
		case errors.Is(*err, ErrNotFound):
			timer.Stop("not_found")
		default:
			timer.Stop("error")
		}
	}
}
