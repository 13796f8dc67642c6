// Package turn runs the per-turn decision pipeline: one caller utterance
// in, one spoken response and final action out.
//
// The orchestrator iterates a configurable list of named stages. Stages
// communicate only through explicit Update structs whose fields the merge
// copies one by one; there is no shared mutable bag a stage can pollute.
// A stage that panics or errors is logged and treated as a no-op, so a
// caller never receives a broken turn: every failure mode resolves to
// generated text, a generic hand-off, or an escalation to a human.
package turn
