// Package cache provides the compiled artifact cache shared by the triage
// compiler and the policy manager.
//
// Compiled rule sets and policies are expensive to rebuild on every turn,
// so they are serialized and cached under well-known keys with a TTL:
//
//	rules:{tenant}          compiled rule set
//	policy:{tenant}:active  compiled active policy
//
// Two backends are provided: an in-process Memory cache with TTL and LRU
// eviction for single-instance deployments, and a Redis cache for fleets
// that must share invalidation.
//
// Cache failures are never fatal. Callers treat an error from Get as a
// miss and recompile from the document store, so a cache outage degrades
// latency, not correctness.
package cache
