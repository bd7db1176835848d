package functions

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// Open builds the backend cfg selects and wraps it with metrics
func Open(ctx context.Context, cfg config.FunctionsConfig, logger *zap.Logger, metrics *monitoring.Metrics) (*Instrumented, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case config.BackendMemory, "":
		store = NewMemory()
	case config.BackendDir:
		store, err = NewDirectory(cfg.Dir, DirectoryOptions{Watch: cfg.Watch, Logger: logger})
	case config.BackendSQLite:
		store, err = OpenSQLite(ctx, cfg.SQLitePath)
	case config.BackendRemote:
		opts := DefaultRemoteOptions()
		opts.RequestsPerSecond = cfg.RemoteRPS
		opts.Logger = logger
		store, err = NewRemote(cfg.RemoteURL, opts)
	default:
		return nil, fmt.Errorf("unknown functions backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	backend := cfg.Backend
	if backend == "" {
		backend = config.BackendMemory
	}
	logger.Info("Function store ready", zap.String("backend", backend))
	return Instrument(store, backend, metrics), nil
}
