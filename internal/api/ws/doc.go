// Package ws streams sandbox executions over WebSocket.
//
// Message Types (Client → Server):
//   - execute: run code; fields id, code, context, timeoutMs
//   - ping: keep-alive ping
//
// Message Types (Server → Client):
//   - system: greeting on connect
//   - log: a console line captured while the execution runs
//   - event: a membrane event (property access, host call start/end/error)
//   - result: the final sandbox result
//   - error: the request could not be run
//   - pong: reply to ping
//
// Every frame carries the client's request id so concurrent executions on
// one connection can be told apart.
//
// Example Usage:
//
//	handler := ws.NewHandler(pool, apihttp.Builtins(), metrics, logger)
//	router.GET("/sandbox/stream", handler.HandleConnection)
package ws
