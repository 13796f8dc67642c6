// Package engine applies a tenant's compiled policy to one proposed
// response before it is spoken to the caller.
//
// Evaluation runs four stages in fixed precedence order:
//
//  1. Edge cases: operator-authored reactions to specific utterances
//     (override the response, force a transfer, hang up politely, or flag
//     the caller). A hit short-circuits the remaining stages because the
//     authored reaction is already approved wording.
//  2. Transfers: utterance patterns that route the call to a named target.
//     A hit short-circuits too. Transfers carrying an action tag outside
//     the policy's allowed set do not execute; the caller hears a generic
//     hand-off line and the attempt is recorded as a security violation.
//  3. Guardrails: scrub the generated text (unapproved prices, phone
//     numbers, URLs, restricted terms, repeated apologies) by replacing
//     offending spans with spoken placeholders.
//  4. Behavior: tone adjustments (acknowledgment prefix, first-turn
//     introduction, collected-field readback, contraction expansion).
//
// The engine is deliberately total: Apply never returns an error. A panic
// anywhere in evaluation degrades to serving the proposed text unmodified,
// because a policy bug must never take a live call down. The latency
// budget is advisory: overruns are logged, counted, and alerted on, never
// used to truncate evaluation.
package engine
