// Package main is the entry point for the sandbox execution server.
//
// The server runs untrusted JavaScript inside pooled, hardened realms and
// exposes them over HTTP and a WebSocket stream.
//
// The server provides:
//   - POST /sandbox/execute for one-shot runs
//   - GET /sandbox/stream for runs with live log and event frames
//   - /functions CRUD for dynamic function code
//   - Prometheus metrics on /metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -functions sqlite -sqlite /var/lib/scribe/functions.db
//
//	# Development mode (colored logs, debug level)
//	./server -dev -functions dir -functions-dir ./functions -watch
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
