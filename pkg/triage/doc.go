// Package triage compiles tenant rule documents into deterministic,
// totally ordered rule sets and matches caller utterances against them.
//
// Rules come from three sources with a strict trust order: manual rules
// authored by operators, generated rules mined from call transcripts, and
// system rules owned by the platform. The compiler merges all three into a
// single evaluation order (priority, then source rank, then recency, then
// rule ID), appends a synthesized catch-all so matching can never come up
// empty, and caches the result per tenant with a TTL.
//
// Matching is two-phase: utterances and keywords are normalized once
// (lowercase, punctuation stripped, whitespace collapsed), then required
// keywords are tested by word-boundary containment and excluded keywords
// veto the rule. The first rule in evaluation order that matches wins.
//
// Compilation reads through pkg/cache; a cache outage degrades to
// per-turn compilation from the store rather than failing the call.
package triage
