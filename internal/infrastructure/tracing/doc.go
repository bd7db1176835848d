/*
Package tracing provides lightweight request tracing.

Spans are opened per HTTP request and per sandbox execution, then handed to a
buffered collector that writes them to the structured log. Trace position is
carried in the request context and propagated across process boundaries with
two headers:

	X-Trace-ID  identifies the whole request flow
	X-Span-ID   identifies the calling operation

Usage:

	tracer := tracing.New("scribe-backend", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "sandbox.execute")
	defer tracer.Submit(span)

Outgoing HTTP clients call Inject to forward the current trace.
*/
package tracing
