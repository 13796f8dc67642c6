// Package store is the durable home of tenant documents: operator-authored
// triage rules, transcript-mined rule candidates, canned response pools,
// versioned policy documents, and archived call sessions.
//
// Two backends implement the same interfaces. The sqlite backend
// (modernc.org/sqlite, WAL mode, single-writer pool) is the production
// default; the memory backend serves tests and ephemeral deployments.
//
// The store is the single source of truth. Compiled artifacts held in
// pkg/cache are derived data: every mutating operation notifies the
// registered Hooks so callers can drop stale compilations immediately
// instead of waiting out the cache TTL.
package store
