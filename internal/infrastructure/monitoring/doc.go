/*
Package monitoring provides metrics collection for the sandbox service.

# Overview

Metrics are registered on a dedicated Prometheus registry so tests and
multiple servers in one process never collide on the global default.

# Features

- HTTP request metrics (latency, throughput, size)
- Sandbox execution metrics by outcome (success, error, timeout, cancelled)
- Host function call metrics by function name
- Realm reset and executor pool utilisation
- Dynamic function store operation timing
- WebSocket connection metrics
- Uptime

# Usage

	metrics := monitoring.NewMetrics(nil)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Metrics satisfies sandbox.Recorder
	executor := sandbox.NewExecutor(config, sandbox.WithMetrics(metrics))

	timer := monitoring.NewTimer(metrics, "sqlite", "get")
	// ... perform operation ...
	timer.Stop("success")
*/
package monitoring
