// Package server assembles the sandbox backend: configuration, logging,
// metrics, tracing, the dynamic function store, the realm pool and the
// HTTP router. Responses are gzip-compressed unless the request is a
// websocket upgrade.
package server
