// Package server exposes the turn pipeline over HTTP.
//
// # Routes
//
//   - POST /v1/turns - run one caller turn and return the decision
//   - GET /v1/calls/{call_id}/audit - stored decision records for a call
//   - GET /health - liveness probe (always 200)
//   - GET /ready - readiness probe (runs registered component checks)
//   - GET /version - build information
//   - GET /metrics - prometheus metrics, when a collector is wired
//
// # Middleware
//
// Requests pass through recovery, request-ID assignment, and request
// logging; the /v1 routes additionally pass API key authentication
// (when enabled) and a per-request timeout. The request ID and, once
// known, the call and tenant IDs ride the request context so every log
// line downstream carries them.
//
// # Lifecycle
//
// Start blocks until the context is cancelled, SIGINT/SIGTERM arrives,
// or the listener fails, then drains in-flight requests for the
// configured shutdown timeout. TLS 1.3 termination is optional.
package server
