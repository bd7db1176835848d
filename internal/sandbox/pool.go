package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed     = errors.New("sandbox pool is closed")
	ErrAcquireTimeout = errors.New("sandbox acquisition timeout")
)

const defaultAcquireTimeout = 5 * time.Second

// Pool manages a fixed set of executors for concurrent callers
type Pool struct {
	config    Config
	opts      []Option
	executors chan *Executor
	size      int
	logger    *zap.Logger
	metrics   Recorder

	mu     sync.RWMutex
	closed bool
}

// PoolStats is a point-in-time view of a pool
type PoolStats struct {
	Size      int  `json:"size"`
	Available int  `json:"available"`
	InUse     int  `json:"in_use"`
	Closed    bool `json:"closed"`
}

// NewPool creates size executors and initializes their realms
func NewPool(config Config, size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		config:    config,
		opts:      opts,
		executors: make(chan *Executor, size),
		size:      size,
		logger:    zap.NewNop(),
		metrics:   nopRecorder{},
	}
	probe := &Executor{}
	for _, opt := range opts {
		opt(probe)
	}
	if probe.logger != nil {
		pool.logger = probe.logger.Named("sandbox.pool")
	}
	if probe.metrics != nil {
		pool.metrics = probe.metrics
	}

	for i := 0; i < size; i++ {
		ex, err := pool.newExecutor()
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.executors <- ex
	}

	pool.logger.Info("Sandbox pool ready", zap.Int("size", size))
	return pool, nil
}

func (p *Pool) newExecutor() (*Executor, error) {
	ex := NewExecutor(p.config, p.opts...)
	if err := ex.Initialize(); err != nil {
		return nil, err
	}
	return ex, nil
}

// Acquire takes an executor from the pool
func (p *Pool) Acquire(ctx context.Context) (*Executor, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(defaultAcquireTimeout)
	defer timer.Stop()

	select {
	case ex := <-p.executors:
		p.metrics.RecordPoolInUse(p.size - len(p.executors))
		return ex, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrAcquireTimeout
	}
}

// Release resets an executor's realm and returns it to the pool
func (p *Pool) Release(ex *Executor) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ex.Destroy()
	}

	if err := ex.Reset(); err != nil {
		p.logger.Warn("Executor reset failed, replacing", zap.Error(err))
		ex.Destroy()
		replacement, newErr := p.newExecutor()
		if newErr != nil {
			return errors.Join(err, newErr)
		}
		ex = replacement
	}

	select {
	case p.executors <- ex:
		p.metrics.RecordPoolInUse(p.size - len(p.executors))
		return nil
	default:
		return ex.Destroy()
	}
}

// Execute runs code on a pooled executor
func (p *Pool) Execute(ctx context.Context, code string, exposed Context, timeout time.Duration, opts ...ExecuteOption) (*Result, error) {
	ex, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(ex)

	return ex.Execute(ctx, code, exposed, timeout, opts...)
}

// Reset gives every idle executor a clean realm
func (p *Pool) Reset() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	var errs []error
	for i := len(p.executors); i > 0; i-- {
		select {
		case ex := <-p.executors:
			if err := ex.Reset(); err != nil {
				errs = append(errs, err)
			}
			p.executors <- ex
		default:
		}
	}
	return errors.Join(errs...)
}

// Close destroys every idle executor. Executors still in use are destroyed
// when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.executors)

	for ex := range p.executors {
		ex.Destroy()
	}
	p.logger.Info("Sandbox pool closed")
	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Size:      p.size,
		Available: len(p.executors),
		InUse:     p.size - len(p.executors),
		Closed:    p.closed,
	}
}
