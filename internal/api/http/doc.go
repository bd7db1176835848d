/*
Package http exposes the sandbox over HTTP.

# Routes

	GET    /                  liveness
	GET    /health            pool and store status
	POST   /sandbox/execute   run code, body {code, context, timeoutMs}
	POST   /sandbox/reset     reset every pooled realm
	GET    /sandbox/stats     pool, store and execution statistics
	GET    /functions         list dynamic functions
	GET    /functions/:name   get one dynamic function
	PUT    /functions/:name   create or replace, body {code, description}
	DELETE /functions/:name   delete

Request context values are exposed to executed code as data. The host
functions returned by Builtins are exposed alongside them.
*/
package http
