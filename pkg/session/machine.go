package session

import "halcyon-hq/switchboard/pkg/triage"

// Decision is the intervention the state machine proposes for a turn.
type Decision string

const (
	// DecisionNone lets the turn proceed normally.
	DecisionNone Decision = "none"

	// DecisionPrompt speaks the outcome's response instead of generating
	// one.
	DecisionPrompt Decision = "prompt"

	// DecisionEscalate hands the call to a human.
	DecisionEscalate Decision = "escalate"

	// DecisionHangup ends the call after speaking the outcome's response.
	DecisionHangup Decision = "hangup"
)

// Outcome pairs a decision with the line to speak for it.
type Outcome struct {
	Decision Decision
	Response string
}

// Lines spoken by the ladders when the config does not author its own.
var (
	defaultClarificationPrompts = []string{
		"I'm sorry, I didn't quite catch that. Could you say it again?",
		"I'm still having trouble understanding. Could you put it another way?",
	}

	defaultSilencePrompts = []string{
		"Are you still there?",
		"I haven't heard anything for a bit. Is there something I can help you with?",
	}

	defaultUrgentKeywords = []string{
		"stop", "wait", "hold on", "cancel", "emergency", "operator",
	}
)

const (
	defaultEscalationMessage = "Let me get someone on the line who can help you directly."
	defaultSilenceFarewell   = "It sounds like we may have lost you. Please call back anytime. Goodbye."
	defaultInterruptionAck   = "One moment."
)

// MachineConfig tunes the escalation ladders.
type MachineConfig struct {
	// MisunderstandingThreshold is how many consecutive failed
	// classifications get a clarification prompt before the call
	// escalates to a human. Default: 2.
	MisunderstandingThreshold int

	// SilenceRepromptLimit is how many consecutive silent turns get a
	// reprompt before the call ends politely. Default: 2.
	SilenceRepromptLimit int

	// MinInterruptionLength is the minimum normalized fragment length, in
	// characters, treated as intentional speech. Default: 3.
	MinInterruptionLength int

	// UrgentKeywords mark interruption fragments that must stop the
	// agent's speech immediately.
	UrgentKeywords []string

	// ClarificationPrompts are spoken in order as misunderstandings
	// accumulate; the last one repeats if the threshold is higher than
	// the ladder is long.
	ClarificationPrompts []string

	// SilencePrompts are spoken in order as silent turns accumulate.
	SilencePrompts []string

	// EscalationMessage is spoken when handing the call to a human.
	EscalationMessage string

	// SilenceFarewell is spoken before ending a call that stayed silent.
	SilenceFarewell string

	// InterruptionAck is spoken to acknowledge a queued interruption.
	InterruptionAck string
}

// Machine implements the per-call escalation ladders as plain functions
// over State. It holds no per-call data and is safe for concurrent use.
type Machine struct {
	cfg    MachineConfig
	urgent []string
}

// NewMachine creates a state machine, filling zero config fields with
// defaults. Urgent keywords are normalized once here, not per fragment.
func NewMachine(cfg MachineConfig) *Machine {
	if cfg.MisunderstandingThreshold <= 0 {
		cfg.MisunderstandingThreshold = 2
	}
	if cfg.SilenceRepromptLimit <= 0 {
		cfg.SilenceRepromptLimit = 2
	}
	if cfg.MinInterruptionLength <= 0 {
		cfg.MinInterruptionLength = 3
	}
	if len(cfg.UrgentKeywords) == 0 {
		cfg.UrgentKeywords = defaultUrgentKeywords
	}
	if len(cfg.ClarificationPrompts) == 0 {
		cfg.ClarificationPrompts = defaultClarificationPrompts
	}
	if len(cfg.SilencePrompts) == 0 {
		cfg.SilencePrompts = defaultSilencePrompts
	}
	if cfg.EscalationMessage == "" {
		cfg.EscalationMessage = defaultEscalationMessage
	}
	if cfg.SilenceFarewell == "" {
		cfg.SilenceFarewell = defaultSilenceFarewell
	}
	if cfg.InterruptionAck == "" {
		cfg.InterruptionAck = defaultInterruptionAck
	}

	urgent := make([]string, 0, len(cfg.UrgentKeywords))
	for _, kw := range cfg.UrgentKeywords {
		if n := triage.NormalizeKeyword(kw); n != "" {
			urgent = append(urgent, n)
		}
	}
	return &Machine{cfg: cfg, urgent: urgent}
}

// HandleMisunderstanding records a turn whose utterance could not be
// classified and proposes the reaction: an escalating clarification prompt
// while under the threshold, escalation to a human past it. The counter is
// not reset on escalation; the caller is leaving the automated flow.
func (m *Machine) HandleMisunderstanding(st *State) Outcome {
	st.Misunderstandings++
	if st.Misunderstandings <= m.cfg.MisunderstandingThreshold {
		return Outcome{
			Decision: DecisionPrompt,
			Response: graduated(m.cfg.ClarificationPrompts, st.Misunderstandings),
		}
	}
	return Outcome{Decision: DecisionEscalate, Response: m.cfg.EscalationMessage}
}

// RecordUnderstanding resets the misunderstanding ladder after a
// successful classification.
func (m *Machine) RecordUnderstanding(st *State, classification string) {
	st.Misunderstandings = 0
	st.LastClassification = classification
}

// HandleSilence records an empty-input turn and proposes the reaction: a
// graduated reprompt while under the limit, a polite hangup past it.
func (m *Machine) HandleSilence(st *State) Outcome {
	st.SilentTurns++
	if st.SilentTurns <= m.cfg.SilenceRepromptLimit {
		return Outcome{
			Decision: DecisionPrompt,
			Response: graduated(m.cfg.SilencePrompts, st.SilentTurns),
		}
	}
	return Outcome{Decision: DecisionHangup, Response: m.cfg.SilenceFarewell}
}

// RecordSpeech resets the silence ladder after any non-empty input.
func (m *Machine) RecordSpeech(st *State) {
	st.SilentTurns = 0
}

// graduated picks the line for the nth consecutive occurrence, repeating
// the last line when the ladder is shorter than the threshold.
func graduated(lines []string, n int) string {
	if n > len(lines) {
		n = len(lines)
	}
	return lines[n-1]
}
