package triage

import "time"

// Source identifies where a triage rule came from. Sources form a strict
// trust order used to break priority ties: operator-authored rules outrank
// transcript-mined ones, which outrank platform defaults.
type Source string

const (
	// SourceManual marks rules authored by operators in the rule editor.
	SourceManual Source = "manual"

	// SourceGenerated marks rules mined from call transcripts by the
	// offline analysis pipeline.
	SourceGenerated Source = "generated"

	// SourceSystem marks built-in rules owned by the platform, including
	// the synthesized catch-all.
	SourceSystem Source = "system"
)

// Rank returns the trust rank of the source. Higher ranks win priority ties.
// Unknown sources rank below every known source.
func (s Source) Rank() int {
	switch s {
	case SourceManual:
		return 3
	case SourceGenerated:
		return 2
	case SourceSystem:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the source is a known value.
func (s Source) Valid() bool {
	return s.Rank() > 0
}

// Actions a matched rule can instruct the turn orchestrator to take.
const (
	// ActionContinue keeps the conversation in the automated flow.
	ActionContinue = "continue"

	// ActionForwardToClassifier hands the utterance to the LLM classifier
	// for a second opinion. This is the default catch-all action.
	ActionForwardToClassifier = "forward_to_classifier"

	// ActionTakeMessage switches the call into message-taking mode.
	ActionTakeMessage = "take_message"

	// ActionEscalate transfers the call to a human operator.
	ActionEscalate = "escalate"
)

// ClassificationUnknown is assigned when no authored rule matched and the
// utterance fell through to the catch-all.
const ClassificationUnknown = "unknown"

// ManualRule is an operator-authored triage rule as stored by the rule
// editor. Manual rules outrank all other sources at equal priority.
type ManualRule struct {
	// ID uniquely identifies the rule within its tenant.
	ID string `json:"id"`

	// Name is an optional operator-facing label.
	Name string `json:"name,omitempty"`

	// RequiredKeywords must all appear in the utterance for the rule to
	// match. At least one is required.
	RequiredKeywords []string `json:"required_keywords"`

	// ExcludedKeywords veto the rule when any of them appears.
	ExcludedKeywords []string `json:"excluded_keywords,omitempty"`

	// Classification is the service category assigned on match.
	Classification string `json:"classification"`

	// Action is the turn disposition taken on match.
	Action string `json:"action"`

	// Priority orders the rule against others. Higher evaluates first.
	Priority int `json:"priority"`

	// Rationale records why the operator added the rule.
	Rationale string `json:"rationale,omitempty"`

	// UpdatedAt is the last edit time, used to break ordering ties.
	UpdatedAt time.Time `json:"updated_at"`
}

// GeneratedRule is a rule mined from call transcripts by the offline
// analysis pipeline. Generated rules carry a confidence score and must be
// activated by an operator before they participate in compilation.
type GeneratedRule struct {
	// ID uniquely identifies the rule within its tenant.
	ID string `json:"id"`

	// RequiredKeywords must all appear in the utterance for the rule to
	// match. At least one is required.
	RequiredKeywords []string `json:"required_keywords"`

	// ExcludedKeywords veto the rule when any of them appears.
	ExcludedKeywords []string `json:"excluded_keywords,omitempty"`

	// Classification is the service category assigned on match.
	Classification string `json:"classification"`

	// Action is the turn disposition taken on match.
	Action string `json:"action"`

	// Priority orders the rule against others. Higher evaluates first.
	Priority int `json:"priority"`

	// Confidence is the mining pipeline's score in [0, 1].
	Confidence float64 `json:"confidence"`

	// Active gates the rule into compilation. Inactive rules are kept in
	// the store for review but never compiled.
	Active bool `json:"active"`

	// Rationale records the transcript evidence the rule was mined from.
	Rationale string `json:"rationale,omitempty"`

	// UpdatedAt is the last edit time, used to break ordering ties.
	UpdatedAt time.Time `json:"updated_at"`
}

// Rule is a single compiled triage rule. Keywords are normalized at compile
// time so the matcher never normalizes rule text on the hot path.
type Rule struct {
	ID               string    `json:"id"`
	Source           Source    `json:"source"`
	RequiredKeywords []string  `json:"required_keywords,omitempty"`
	ExcludedKeywords []string  `json:"excluded_keywords,omitempty"`
	Classification   string    `json:"classification"`
	Action           string    `json:"action"`
	Priority         int       `json:"priority"`
	Rationale        string    `json:"rationale,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`

	// CatchAll marks the synthesized terminal rule. A catch-all matches
	// every utterance.
	CatchAll bool `json:"catch_all,omitempty"`
}

// RuleSet is the compiled, totally ordered rule list for one tenant plus
// the canned response pools its classifications reference. The slice order
// is the evaluation order: the matcher walks it front to back and stops at
// the first hit, so the last rule is always the catch-all.
type RuleSet struct {
	// TenantID identifies the tenant the set was compiled for.
	TenantID string `json:"tenant_id"`

	// Rules holds the compiled rules in evaluation order.
	Rules []Rule `json:"rules"`

	// ResponsePools maps a classification to its canned responses.
	ResponsePools map[string][]string `json:"response_pools,omitempty"`

	// CompiledAt records when the set was built.
	CompiledAt time.Time `json:"compiled_at"`
}

// Len returns the number of compiled rules including the catch-all.
func (rs *RuleSet) Len() int {
	return len(rs.Rules)
}

// CatchAll returns the set's catch-all rule, or nil if the set was built
// without one.
func (rs *RuleSet) CatchAll() *Rule {
	for i := range rs.Rules {
		if rs.Rules[i].CatchAll {
			return &rs.Rules[i]
		}
	}
	return nil
}

// PoolResponse returns a canned response for the classification, rotating
// deterministically on seed so repeated turns in one call do not repeat the
// same line. ok is false when the tenant has no pool for the
// classification.
func (rs *RuleSet) PoolResponse(classification string, seed uint64) (string, bool) {
	pool := rs.ResponsePools[classification]
	if len(pool) == 0 {
		return "", false
	}
	return pool[seed%uint64(len(pool))], true
}
