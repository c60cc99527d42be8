/*
Package tracing provides lightweight request tracing.

Spans cover the request flow through the engine: the HTTP entry point,
the dispatch to the agent service, and the stream ingestion run. Trace
context propagates via X-Trace-ID / X-Span-ID headers in both
directions, so agent-side spans join the same trace. Completed spans
are logged through zap with a buffered, non-blocking collector.

Usage:

	tracer := tracing.New("widgetd", logger)
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "dispatch")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
