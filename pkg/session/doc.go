// Package session carries per-call state across the turns of one call and
// implements the escalation ladders that react to it: repeated
// misunderstanding, caller interruption while the agent is speaking, and
// silence.
//
// State is owned by exactly one in-flight call. Turns of a call are
// sequential, so the ladders mutate State without locking; the Store
// implementations only synchronize access across different calls.
//
// The ladders are deliberately dumb: counters in, a Decision and the line
// to speak out. Interpreting a Decision (speaking a prompt, transferring,
// hanging up) is the turn pipeline's job.
package session
