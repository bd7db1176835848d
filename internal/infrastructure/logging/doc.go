// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components log through named children of the root logger, for example
// "sandbox.executor" or "functions.dir", and attach run-level fields such as
// execution_id, call_id and function.
//
// Example Usage:
//
//	logger := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
//	logger.Info("Server starting", zap.String("port", "8000"))
//	executor := sandbox.NewExecutor(sandboxCfg, sandbox.WithLogger(logger.Logger))
package logging
