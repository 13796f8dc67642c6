// Package policy defines tenant policy documents and compiles them into
// the form the policy engine evaluates on every turn.
//
// A policy document declares four layers, applied by pkg/policy/engine in
// fixed precedence order:
//
//   - Edge cases: utterance patterns with an operator-authored reaction
//     (override the response, force a transfer, hang up politely, or just
//     flag the caller).
//   - Transfer rules: utterance patterns that route the call to a named
//     target.
//   - Guardrails: flags that scrub the generated response (prices, phone
//     numbers, URLs, repeated apologies, restricted terms).
//   - Behavior flags: tone adjustments applied to whatever text survives
//     the earlier layers.
//
// Documents are versioned in pkg/store; exactly one version per tenant is
// active at a time. The Manager caches the active document per tenant
// under the policy:{tenant}:active key and compiles patterns once per
// document version. Invalid patterns are skipped with a warning so one bad
// regex cannot take a tenant's whole policy down.
package policy
