// Package tracing wires OpenTelemetry distributed tracing into the
// decision pipeline.
//
// New builds the tracer provider from config: sampler (always, never,
// or trace-ID ratio, all parent-based), OTLP gRPC exporter, and the W3C
// trace-context propagator, installed globally. The package-level span
// helpers (StartRequest, StartTurn, StartStage) record against the
// global provider, so the orchestrator needs no tracer handle; with
// tracing disabled they produce noop spans.
//
// A turn's trace reads: request span (server middleware, upstream
// context extracted from traceparent) -> turn.run -> one stage.* span
// per pipeline stage, with classify and generate calls to the
// completion service propagated over HTTP headers.
package tracing
