package session

import (
	"unicode/utf8"

	"halcyon-hq/switchboard/pkg/triage"
)

// InterruptionKind classifies caller speech captured while the agent was
// still talking.
type InterruptionKind string

const (
	// InterruptionIgnored marks fragments too short to be intentional
	// speech.
	InterruptionIgnored InterruptionKind = "ignored"

	// InterruptionUrgent marks fragments that must suppress the agent's
	// in-progress output and be handled immediately.
	InterruptionUrgent InterruptionKind = "urgent"

	// InterruptionQueued marks ordinary fragments held until the agent
	// finishes speaking.
	InterruptionQueued InterruptionKind = "queued"
)

// Interruption is the handling decision for one barge-in fragment.
type Interruption struct {
	Kind InterruptionKind

	// Fragment is the normalized fragment text. Empty for ignored
	// fragments.
	Fragment string

	// Acknowledgment is spoken right away for queued fragments.
	Acknowledgment string
}

// ClassifyInterruption decides what to do with a barge-in fragment. The
// fragment is normalized the same way the matcher normalizes utterances,
// so the urgent keywords behave like triage keywords: whole words and
// phrases, case-insensitive.
func (m *Machine) ClassifyInterruption(fragment string) Interruption {
	normalized := triage.NormalizeText(fragment)
	if utf8.RuneCountInString(normalized) < m.cfg.MinInterruptionLength {
		return Interruption{Kind: InterruptionIgnored}
	}

	for _, kw := range m.urgent {
		if triage.ContainsPhrase(normalized, kw) {
			return Interruption{Kind: InterruptionUrgent, Fragment: normalized}
		}
	}
	return Interruption{
		Kind:           InterruptionQueued,
		Fragment:       normalized,
		Acknowledgment: m.cfg.InterruptionAck,
	}
}
