package turn

import (
	"halcyon-hq/switchboard/pkg/session"
	"halcyon-hq/switchboard/pkg/triage"
)

// Action is the final turn disposition handed back to the telephony layer.
type Action string

const (
	// ActionRespond speaks the response text and waits for the caller's
	// next utterance.
	ActionRespond Action = "respond"

	// ActionTransfer speaks the response text and transfers the call to
	// TransferTarget.
	ActionTransfer Action = "transfer"

	// ActionHangup speaks the response text and ends the call.
	ActionHangup Action = "hangup"
)

// Side-effect kinds the pipeline can emit alongside the response.
const (
	// EffectSuppressOutput tells the telephony layer to stop the agent
	// speech that was playing when an urgent barge-in arrived.
	EffectSuppressOutput = "suppress_output"

	// EffectFlagCaller asks the platform to mark the caller for review.
	EffectFlagCaller = "flag_caller"
)

// SideEffect is an instruction for the telephony layer that rides along
// with the turn's response.
type SideEffect struct {
	// Kind is one of the Effect* constants.
	Kind string `json:"kind"`

	// Detail carries kind-specific context, e.g. the flag name.
	Detail string `json:"detail,omitempty"`
}

// Request is one caller turn as delivered by the telephony layer.
type Request struct {
	// CallID identifies the call. Session state is keyed on it.
	CallID string `json:"call_id"`

	// TenantID identifies the tenant whose rules and policy apply.
	TenantID string `json:"tenant_id"`

	// Utterance is the caller's transcribed speech. Empty means the
	// caller said nothing this turn.
	Utterance string `json:"utterance"`

	// Interruption is a speech fragment captured while the agent was
	// still talking. When set, the barge-in stage decides whether it
	// replaces the utterance, queues, or is discarded as noise.
	Interruption string `json:"interruption,omitempty"`

	// SpamScore is the platform's spam likelihood for the caller in
	// [0, 1]. Policy edge cases can gate on it.
	SpamScore float64 `json:"spam_score,omitempty"`

	// AuxKeywords are caller-supplied keyword hints (IVR menu picks,
	// DTMF labels) passed through to the triage matcher.
	AuxKeywords []string `json:"aux_keywords,omitempty"`
}

// Classification is the triage outcome for the turn's input.
type Classification struct {
	// Category is the assigned service category, or "unknown".
	Category string `json:"category"`

	// Action is the triage action tag from the matched rule.
	Action string `json:"action"`

	// Source names what produced the classification: a rule source tag,
	// "llm" for classifier-only intents, or "none".
	Source string `json:"source"`

	// Confidence is the classifier's score when Source is "llm".
	Confidence float64 `json:"confidence,omitempty"`

	// MatchedKeywords lists the rule keywords found in the input.
	MatchedKeywords []string `json:"matched_keywords,omitempty"`

	// Entities are structured values the classifier extracted, e.g. a
	// callback number.
	Entities map[string]string `json:"entities,omitempty"`
}

// Unknown reports whether the classification fell through to the
// catch-all with no usable classifier intent.
func (c *Classification) Unknown() bool {
	return c == nil || c.Category == "" || c.Category == triage.ClassificationUnknown
}

// Update is a stage's contribution to the turn. The orchestrator merges
// exactly these fields; a zero field leaves the accumulated value alone.
type Update struct {
	// Classification replaces the turn's classification result.
	Classification *Classification

	// CleanedInput replaces the input later stages operate on.
	CleanedInput string

	// Proposed replaces the proposed response text awaiting policy.
	Proposed string

	// Final replaces the response text spoken to the caller.
	Final string

	// Action replaces the final action.
	Action Action

	// TransferTarget replaces the transfer destination.
	TransferTarget string

	// ShortCircuit stops the pipeline after this stage.
	ShortCircuit bool

	// Audit entries are appended to the turn's audit trail.
	Audit []string

	// Effects are appended to the turn's side effects.
	Effects []SideEffect

	// rules hands the compiled rule-set snapshot from the classify stage
	// to later stages. Never exposed outside the pipeline.
	rules *triage.RuleSet
}

// Context is the accumulated state of one turn as it moves through the
// pipeline.
type Context struct {
	// CallID identifies the call.
	CallID string `json:"call_id"`

	// TenantID identifies the tenant.
	TenantID string `json:"tenant_id"`

	// TurnNumber is 1-based across the call.
	TurnNumber int `json:"turn_number"`

	// SpamScore is carried from the request.
	SpamScore float64 `json:"spam_score,omitempty"`

	// RawInput is the utterance as received, before cleanup.
	RawInput string `json:"raw_input"`

	// Interruption is the barge-in fragment carried on the request.
	Interruption string `json:"interruption,omitempty"`

	// AuxKeywords are the matcher hints carried from the request.
	AuxKeywords []string `json:"aux_keywords,omitempty"`

	// Input is the cleaned utterance stages operate on.
	Input string `json:"input"`

	// Classification is the triage outcome, nil until the classify
	// stage ran.
	Classification *Classification `json:"classification,omitempty"`

	// Proposed is the generated response awaiting policy evaluation.
	Proposed string `json:"proposed,omitempty"`

	// Final is the response text spoken to the caller.
	Final string `json:"final"`

	// Action is the final turn disposition.
	Action Action `json:"action"`

	// TransferTarget is the destination when Action is ActionTransfer.
	TransferTarget string `json:"transfer_target,omitempty"`

	// ShortCircuited reports that a stage stopped the pipeline early.
	ShortCircuited bool `json:"short_circuited"`

	// Audit is the turn's decision trail, in the order entries were
	// recorded.
	Audit []string `json:"audit,omitempty"`

	// Effects are the side effects emitted for the telephony layer.
	Effects []SideEffect `json:"effects,omitempty"`

	// Session is the call's state. Owned by this turn for its duration;
	// stages mutate it through the session machine.
	Session *session.State `json:"-"`

	// rules is the compiled rule-set snapshot for this turn.
	rules *triage.RuleSet
}

// apply merges a stage's update into the context. Only the fields listed
// on Update move; string fields merge when non-empty, slices append, and
// the short-circuit flag is sticky.
func (tc *Context) apply(u Update) {
	if u.Classification != nil {
		tc.Classification = u.Classification
	}
	if u.CleanedInput != "" {
		tc.Input = u.CleanedInput
	}
	if u.Proposed != "" {
		tc.Proposed = u.Proposed
	}
	if u.Final != "" {
		tc.Final = u.Final
	}
	if u.Action != "" {
		tc.Action = u.Action
	}
	if u.TransferTarget != "" {
		tc.TransferTarget = u.TransferTarget
	}
	if u.ShortCircuit {
		tc.ShortCircuited = true
	}
	tc.Audit = append(tc.Audit, u.Audit...)
	tc.Effects = append(tc.Effects, u.Effects...)
	if u.rules != nil {
		tc.rules = u.rules
	}
}
