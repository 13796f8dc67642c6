package engine

import (
	"time"
)

// Action is the final turn disposition after policy evaluation.
type Action string

const (
	// ActionRespond speaks the response text and keeps the call in the
	// automated flow.
	ActionRespond Action = "respond"

	// ActionTransfer speaks the response text and transfers the call to
	// TransferTarget.
	ActionTransfer Action = "transfer"

	// ActionHangup speaks the response text and ends the call.
	ActionHangup Action = "hangup"
)

// Side-effect flags a policy evaluation can raise. The orchestrator
// forwards them to the caller of the turn API.
const (
	// FlagCaller asks the platform to mark the caller for review.
	FlagCaller = "flag_caller"
)

// TurnInfo carries the call state the stages condition on.
type TurnInfo struct {
	// CallID identifies the call, for logs and traces.
	CallID string

	// TurnNumber is 1-based; the first caller utterance is turn 1.
	TurnNumber int

	// SpamScore is the platform's spam likelihood for this caller in
	// [0, 1]. Edge cases can gate on it.
	SpamScore float64

	// CollectedFields holds the fields gathered so far in the call,
	// read back by the CONFIRM_COLLECTED behavior.
	CollectedFields map[string]string
}

// Result is the outcome of applying a policy to one proposed response.
type Result struct {
	// ResponseText is the text to speak after all stages ran.
	ResponseText string

	// Action is the turn disposition.
	Action Action

	// TransferTarget is the destination when Action is ActionTransfer.
	TransferTarget string

	// Flags lists side-effect flags raised during evaluation, deduplicated.
	Flags []string

	// Applied names the rules and guardrails that modified the turn, in
	// the order they fired. Audit records carry it verbatim.
	Applied []string

	// EvaluationTime is how long the evaluation took.
	EvaluationTime time.Duration

	// Degraded reports that evaluation panicked and the proposed text was
	// served unmodified.
	Degraded bool

	// Trace records per-stage detail when tracing is enabled.
	Trace *Trace
}

// Trace records detailed evaluation steps for debugging.
type Trace struct {
	// Steps contains individual trace steps.
	Steps []*TraceStep

	// TotalTime is the total evaluation time.
	TotalTime time.Duration
}

// TraceStep is a single step in the evaluation trace.
type TraceStep struct {
	// Stage is the stage that produced the step.
	Stage string

	// Rule is the rule or flag involved, if any.
	Rule string

	// Details describes what happened.
	Details string

	// Timestamp is when the step occurred.
	Timestamp time.Time
}

// evalState accumulates mutations as the stages run.
type evalState struct {
	text    string
	action  Action
	target  string
	flags   []string
	applied []string
	stopped bool
	trace   *Trace
	start   time.Time
}

// stop short-circuits the remaining stages.
func (s *evalState) stop() {
	s.stopped = true
}

// apply records that a rule or guardrail modified the turn.
func (s *evalState) apply(name string) {
	s.applied = append(s.applied, name)
}

// addFlag raises a side-effect flag, deduplicating repeats.
func (s *evalState) addFlag(flag string) {
	for _, f := range s.flags {
		if f == flag {
			return
		}
	}
	s.flags = append(s.flags, flag)
}

// addTrace appends a trace step when tracing is enabled.
func (s *evalState) addTrace(stage, rule, details string) {
	if s.trace == nil {
		return
	}
	s.trace.Steps = append(s.trace.Steps, &TraceStep{
		Stage:     stage,
		Rule:      rule,
		Details:   details,
		Timestamp: time.Now(),
	})
}
