package policy

import (
	"sort"
	"strings"
	"time"
)

// Guardrail flags a policy document can enable. Unknown flags are ignored
// at compile time with a warning.
const (
	// GuardrailNoPrices scrubs unapproved dollar amounts from responses.
	GuardrailNoPrices = "NO_PRICES"

	// GuardrailNoPhoneNumbers scrubs unapproved phone numbers.
	GuardrailNoPhoneNumbers = "NO_PHONE_NUMBERS"

	// GuardrailNoURLs scrubs web addresses.
	GuardrailNoURLs = "NO_URLS"

	// GuardrailSingleApology keeps only the first apology in a response.
	GuardrailSingleApology = "SINGLE_APOLOGY"

	// GuardrailNoMedicalLegal scrubs the document's restricted terms.
	GuardrailNoMedicalLegal = "NO_MEDICAL_LEGAL"
)

// Behavior flags a policy document can enable.
const (
	// BehaviorAcknowledgeFirst prefixes responses with a short
	// acknowledgment.
	BehaviorAcknowledgeFirst = "ACKNOWLEDGE_FIRST"

	// BehaviorIntroduceOnFirstTurn prepends the company greeting on the
	// first turn of a call.
	BehaviorIntroduceOnFirstTurn = "INTRODUCE_ON_FIRST_TURN"

	// BehaviorConfirmCollected appends a readback of fields collected so
	// far.
	BehaviorConfirmCollected = "CONFIRM_COLLECTED"

	// BehaviorExpandContractions expands contractions for callers who
	// struggle with synthesized speech.
	BehaviorExpandContractions = "EXPAND_CONTRACTIONS"
)

// Edge case kinds. The kind decides what the engine does when the edge
// case's pattern matches the caller's utterance.
const (
	// EdgeOverrideResponse replaces the generated response with the edge
	// case's authored response.
	EdgeOverrideResponse = "override_response"

	// EdgeForceTransfer transfers the call to the edge case's target.
	EdgeForceTransfer = "force_transfer"

	// EdgePoliteHangup speaks the authored farewell and ends the call.
	EdgePoliteHangup = "polite_hangup"

	// EdgeFlagOnly raises a flag for review and lets the turn continue.
	EdgeFlagOnly = "flag_only"
)

// EdgeCaseRule is one edge case as stored in a policy document.
type EdgeCaseRule struct {
	// Name identifies the rule in logs and audit records.
	Name string `json:"name"`

	// Pattern decides when the rule fires.
	Pattern PatternSpec `json:"pattern"`

	// Kind is one of the Edge* constants.
	Kind string `json:"kind"`

	// Response is the authored text for override_response and
	// polite_hangup kinds.
	Response string `json:"response,omitempty"`

	// Target is the transfer destination for force_transfer kinds.
	Target string `json:"target,omitempty"`

	// MinSpamScore gates the rule on the call's spam score. Zero means
	// the rule fires regardless of score.
	MinSpamScore float64 `json:"min_spam_score,omitempty"`

	// FlagCaller raises a caller flag as a side effect when the rule
	// fires, whatever its kind.
	FlagCaller bool `json:"flag_caller,omitempty"`
}

// TransferRule routes matching calls to a named target.
type TransferRule struct {
	// Name identifies the rule in logs and audit records.
	Name string `json:"name"`

	// Pattern decides when the rule fires.
	Pattern PatternSpec `json:"pattern"`

	// Target is the queue or extension to transfer to.
	Target string `json:"target"`

	// Message optionally overrides the default transfer announcement.
	Message string `json:"message,omitempty"`

	// Action is the authorization tag checked against the document's
	// allowed actions before the transfer executes. Empty means the
	// transfer needs no authorization.
	Action string `json:"action,omitempty"`
}

// GuardrailSpec is the guardrail section of a stored policy document.
type GuardrailSpec struct {
	// Flags lists the enabled Guardrail* constants.
	Flags []string `json:"flags,omitempty"`

	// ApprovedPrices are dollar amounts allowed through NO_PRICES, e.g.
	// "$89". Formatting differences are ignored when comparing.
	ApprovedPrices []string `json:"approved_prices,omitempty"`

	// ApprovedPhoneNumbers are numbers allowed through NO_PHONE_NUMBERS.
	ApprovedPhoneNumbers []string `json:"approved_phone_numbers,omitempty"`

	// RestrictedTerms are scrubbed under NO_MEDICAL_LEGAL.
	RestrictedTerms []string `json:"restricted_terms,omitempty"`
}

// BehaviorSpec is the behavior section of a stored policy document.
type BehaviorSpec struct {
	// Flags lists the enabled Behavior* constants.
	Flags []string `json:"flags,omitempty"`
}

// Document is a tenant's stored policy document. Documents are versioned;
// exactly one version per tenant is active at a time.
type Document struct {
	// TenantID identifies the owning tenant.
	TenantID string `json:"tenant_id"`

	// Version is assigned by the store on save and never reused.
	Version int `json:"version"`

	// Active marks the version the engine evaluates.
	Active bool `json:"active"`

	// CompanyName is spoken by the INTRODUCE_ON_FIRST_TURN behavior.
	CompanyName string `json:"company_name,omitempty"`

	// EdgeCases are evaluated first, in document order.
	EdgeCases []EdgeCaseRule `json:"edge_cases,omitempty"`

	// Transfers are evaluated after edge cases, in document order.
	Transfers []TransferRule `json:"transfers,omitempty"`

	// AllowedActions authorizes transfer action tags. A transfer whose
	// Action is absent from the list is downgraded to a generic hand-off
	// instead of executing. An empty list authorizes everything.
	AllowedActions []string `json:"allowed_actions,omitempty"`

	// Guardrails scrub the generated response.
	Guardrails GuardrailSpec `json:"guardrails,omitempty"`

	// Behavior adjusts the tone of the final response.
	Behavior BehaviorSpec `json:"behavior,omitempty"`

	// UpdatedAt is the last edit time.
	UpdatedAt time.Time `json:"updated_at"`
}

// FlagSet is a compiled set of policy flags. Lookup is case-insensitive
// because flags are uppercased at compile time.
type FlagSet map[string]struct{}

// NewFlagSet builds a flag set, uppercasing and deduplicating entries.
func NewFlagSet(flags []string) FlagSet {
	fs := make(FlagSet, len(flags))
	for _, f := range flags {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f != "" {
			fs[f] = struct{}{}
		}
	}
	return fs
}

// Has reports whether the flag is enabled.
func (fs FlagSet) Has(flag string) bool {
	_, ok := fs[flag]
	return ok
}

// List returns the enabled flags in sorted order.
func (fs FlagSet) List() []string {
	out := make([]string, 0, len(fs))
	for f := range fs {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// EdgeCase is a compiled edge case rule.
type EdgeCase struct {
	Rule    EdgeCaseRule
	Pattern *Pattern
}

// Transfer is a compiled transfer rule.
type Transfer struct {
	Rule    TransferRule
	Pattern *Pattern
}

// Guardrails is the compiled guardrail section. Approved values are stored
// in canonical form so formatting differences do not defeat the allow
// lists.
type Guardrails struct {
	// Flags holds the enabled guardrail flags.
	Flags FlagSet

	// ApprovedPrices is keyed by CanonicalPrice.
	ApprovedPrices map[string]struct{}

	// ApprovedPhoneNumbers is keyed by CanonicalPhone.
	ApprovedPhoneNumbers map[string]struct{}

	// RestrictedTerms match and replace NO_MEDICAL_LEGAL terms.
	RestrictedTerms []TermMatcher
}

// Enabled reports whether the guardrail flag is on.
func (g Guardrails) Enabled(flag string) bool {
	return g.Flags.Has(flag)
}

// PriceApproved reports whether a scanned dollar amount is on the allow
// list. raw may be in any formatting the response used.
func (g Guardrails) PriceApproved(raw string) bool {
	_, ok := g.ApprovedPrices[CanonicalPrice(raw)]
	return ok
}

// PhoneApproved reports whether a scanned phone number is on the allow
// list.
func (g Guardrails) PhoneApproved(raw string) bool {
	_, ok := g.ApprovedPhoneNumbers[CanonicalPhone(raw)]
	return ok
}

// Behavior is the compiled behavior section.
type Behavior struct {
	Flags FlagSet
}

// Enabled reports whether the behavior flag is on.
func (b Behavior) Enabled(flag string) bool {
	return b.Flags.Has(flag)
}

// Policy is a compiled policy document, ready for per-turn evaluation.
// Compilation happens once per document version; turns share the compiled
// form read-only.
type Policy struct {
	TenantID       string
	Version        int
	CompanyName    string
	EdgeCases      []EdgeCase
	Transfers      []Transfer
	AllowedActions map[string]struct{}
	Guardrails     Guardrails
	Behavior       Behavior
	CompiledAt     time.Time
}

// ActionAllowed reports whether a transfer action tag is authorized. An
// empty tag needs no authorization, and a document that lists no allowed
// actions authorizes everything.
func (p *Policy) ActionAllowed(tag string) bool {
	if tag == "" || len(p.AllowedActions) == 0 {
		return true
	}
	_, ok := p.AllowedActions[strings.ToLower(strings.TrimSpace(tag))]
	return ok
}

// Empty reports whether the policy has no rules and no flags, in which
// case the engine passes responses through untouched.
func (p *Policy) Empty() bool {
	return len(p.EdgeCases) == 0 &&
		len(p.Transfers) == 0 &&
		len(p.Guardrails.Flags) == 0 &&
		len(p.Behavior.Flags) == 0
}
