// Package metrics provides Prometheus instrumentation for the gateway.
//
// # Overview
//
// All metric families share one registry owned by a Collector and use the
// configured namespace/subsystem (halcyon_switchboard by default). The
// Collector hands out typed recorders per component:
//
//   - TriageMetrics: rule compilation and utterance matching
//   - PolicyMetrics: policy compilation and per-turn application
//   - TurnMetrics: whole-turn and per-stage pipeline timings
//   - CompletionMetrics: language-model calls, retries, token usage
//   - CacheMetrics: shared key-value cache backend
//
// A nil *Collector is valid and records nothing. Every accessor is safe on
// a nil receiver and returns a nil recorder, which callers nil-check before
// recording. This keeps instrumentation optional in tests and in
// deployments that disable metrics.
//
// # Cardinality
//
// Tenant is the one unbounded label in this system, so tenant label values
// pass through a CardinalityLimiter shared across families; past the limit
// new tenants are folded into the value "other".
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	compiler := triage.NewCompiler(src, kv, tcfg, logger, collector.Triage())
//	...
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// Recording a metric costs well under a microsecond; nothing in this
// package takes locks on the hot path beyond what client_golang does
// internally.
package metrics
