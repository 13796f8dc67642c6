// Package health backs the /health, /ready, and /version endpoints.
//
// Liveness reports only that the process runs. Readiness runs the
// component checks registered at assembly (rule store, caches, audit
// backend, completion endpoint) concurrently under a per-check timeout
// and answers 503 when any fails, so the load balancer stops routing
// calls to an instance that cannot decide turns.
package health
