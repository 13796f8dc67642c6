// Package telemetry groups switchboard's observability subpackages.
//
// There is no facade type at this level; cmd/switchboard constructs each
// subpackage independently from its own config block:
//
//   - logging: slog wrapper with caller-PII redaction and async buffering
//   - metrics: prometheus collectors for the turn, triage, policy,
//     completion, and cache subsystems
//   - tracing: OpenTelemetry tracer with turn and stage span helpers
//   - health: liveness/readiness checker and probe endpoints
//
// Every subpackage is optional at runtime: a disabled config yields a nil
// collector, a no-op tracer, or a discarded log level, and call sites are
// written to tolerate that. Nothing here may block the turn pipeline;
// logging and audit hand-offs buffer and drop rather than wait.
package telemetry
