package http

import (
	"context"
	"fmt"
	"time"

	"github.com/GriffinCanCode/scribe/backend/internal/sandbox"
	"github.com/google/uuid"
)

const maxSleep = 10 * time.Second

// Builtins returns the host functions every HTTP and stream execution sees
func Builtins() sandbox.Context {
	return sandbox.Context{
		"now": sandbox.Sync(func(...any) (any, error) {
			return time.Now().UTC().Format(time.RFC3339Nano), nil
		}),
		"uuid": sandbox.Sync(func(...any) (any, error) {
			return uuid.NewString(), nil
		}),
		"sleep": sandbox.Func(sleep),
	}
}

// sleep resolves after the given number of milliseconds
func sleep(ctx context.Context, args ...any) (any, error) {
	var ms float64
	if len(args) > 0 {
		switch v := args[0].(type) {
		case int64:
			ms = float64(v)
		case float64:
			ms = v
		default:
			return nil, fmt.Errorf("sleep expects a number of milliseconds, got %T", args[0])
		}
	}
	d := time.Duration(ms * float64(time.Millisecond))
	if d < 0 {
		d = 0
	}
	if d > maxSleep {
		return nil, fmt.Errorf("sleep of %s exceeds maximum %s", d, maxSleep)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
