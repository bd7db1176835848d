// Package config provides 12-factor configuration for the sandbox server.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, CORS origins)
//   - Sandbox: execution timeout, pool size, call stack limit, console capture
//   - Functions: dynamic function store backend and its location
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Server.Address())
//
// Environment Variables:
//   - PORT, HOST, CORS_ORIGINS (comma-separated)
//   - SANDBOX_TIMEOUT, SANDBOX_POOL_SIZE, SANDBOX_MAX_CALL_STACK, SANDBOX_CONSOLE
//   - FUNCTIONS_BACKEND (memory|dir|sqlite|remote), FUNCTIONS_DIR, FUNCTIONS_WATCH,
//     FUNCTIONS_SQLITE_PATH, FUNCTIONS_REMOTE_URL, FUNCTIONS_REMOTE_RPS
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
