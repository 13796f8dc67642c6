package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"halcyon-hq/switchboard/pkg/policy"
	"halcyon-hq/switchboard/pkg/triage"
)

// ErrNotFound is returned when a mutating operation targets a document that
// does not exist. Check with errors.Is().
var ErrNotFound = errors.New("not found")

// RuleStore persists triage rule documents and response pools. It extends
// the read-only triage.RuleSource with the write paths used by the rule
// editor and the mining pipeline importer.
type RuleStore interface {
	triage.RuleSource

	// SaveManualRule inserts or replaces an operator-authored rule. A
	// missing ID is assigned; a zero UpdatedAt is stamped.
	SaveManualRule(ctx context.Context, tenantID string, rule *triage.ManualRule) error

	// DeleteManualRule removes an operator-authored rule. Returns
	// ErrNotFound when no such rule exists.
	DeleteManualRule(ctx context.Context, tenantID, ruleID string) error

	// SaveGeneratedRule inserts or replaces a transcript-mined rule.
	// Imported rules default to inactive until an operator approves them.
	SaveGeneratedRule(ctx context.Context, tenantID string, rule *triage.GeneratedRule) error

	// SetGeneratedRuleActive flips a mined rule in or out of compilation.
	// Returns ErrNotFound when no such rule exists.
	SetGeneratedRuleActive(ctx context.Context, tenantID, ruleID string, active bool) error

	// SaveResponsePool replaces the canned responses for a classification.
	SaveResponsePool(ctx context.Context, tenantID, classification string, responses []string) error

	// DeleteResponsePool removes a classification's canned responses.
	// Deleting an absent pool is a no-op.
	DeleteResponsePool(ctx context.Context, tenantID, classification string) error
}

// PolicyStore persists versioned policy documents. It extends the read-only
// policy.PolicySource with versioning write paths.
type PolicyStore interface {
	policy.PolicySource

	// SavePolicy stores the document as a new inactive version and
	// returns the assigned version number. Versions count up from 1 per
	// tenant and are never reused.
	SavePolicy(ctx context.Context, doc *policy.Document) (int, error)

	// ActivatePolicy makes the given version the tenant's single active
	// version, deactivating all others atomically. Returns ErrNotFound
	// when the version does not exist.
	ActivatePolicy(ctx context.Context, tenantID string, version int) error

	// PolicyVersions lists the tenant's stored versions, newest first.
	PolicyVersions(ctx context.Context, tenantID string) ([]PolicyVersion, error)
}

// SessionArchive keeps a record of finished calls for offline review and
// rule mining. The live per-turn state stays in pkg/session; the archive
// only ever sees a call's final snapshot.
type SessionArchive interface {
	// ArchiveSession appends a finished call's record.
	ArchiveSession(ctx context.Context, rec *SessionRecord) error

	// SessionHistory returns a tenant's archived calls, newest first,
	// capped at limit (0 means a backend-chosen default).
	SessionHistory(ctx context.Context, tenantID string, limit int) ([]SessionRecord, error)
}

// Store combines every document concern behind one handle.
type Store interface {
	RuleStore
	PolicyStore
	SessionArchive

	// SetHooks registers change notifications. Safe to call at any time;
	// replaces any previously registered hooks.
	SetHooks(h Hooks)

	// Close releases backend resources.
	Close() error
}

// PolicyVersion summarizes one stored policy version for listings.
type PolicyVersion struct {
	// Version is the store-assigned version number.
	Version int `json:"version"`

	// Active marks the version the engine evaluates.
	Active bool `json:"active"`

	// UpdatedAt is when the version was saved or last activated.
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionRecord is the archived snapshot of a finished call.
type SessionRecord struct {
	// CallID identifies the call.
	CallID string `json:"call_id"`

	// TenantID identifies the tenant the call belonged to.
	TenantID string `json:"tenant_id"`

	// Turns is the total number of turns the call ran.
	Turns int `json:"turns"`

	// Misunderstandings is the consecutive-misunderstanding count at
	// call end.
	Misunderstandings int `json:"misunderstandings"`

	// FinalAction is the action the last turn resolved to.
	FinalAction string `json:"final_action"`

	// LastClassification is the last successful triage classification.
	LastClassification string `json:"last_classification,omitempty"`

	// CollectedFields holds the information gathered during the call.
	CollectedFields map[string]string `json:"collected_fields,omitempty"`

	// Flags are the review markers raised during the call.
	Flags []string `json:"flags,omitempty"`

	// StartedAt is when the call's first turn created its session.
	StartedAt time.Time `json:"started_at"`

	// EndedAt is when the call ended.
	EndedAt time.Time `json:"ended_at"`
}

// Hooks receives change notifications after a mutation commits. Compiled
// artifacts are derived from store documents, so the wiring layer points
// these at triage.Compiler.Invalidate and policy.Manager.Invalidate. Nil
// fields are skipped.
type Hooks struct {
	// RulesChanged fires after any rule or response pool mutation.
	RulesChanged func(ctx context.Context, tenantID string)

	// PolicyChanged fires after a policy activation changes which
	// version is live.
	PolicyChanged func(ctx context.Context, tenantID string)
}

// notifier holds registered hooks for a backend. Both backends embed it.
type notifier struct {
	hookMu sync.RWMutex
	hooks  Hooks
}

// SetHooks registers change notifications.
func (n *notifier) SetHooks(h Hooks) {
	n.hookMu.Lock()
	n.hooks = h
	n.hookMu.Unlock()
}

// rulesChanged fires the rules hook, if registered.
func (n *notifier) rulesChanged(ctx context.Context, tenantID string) {
	n.hookMu.RLock()
	h := n.hooks.RulesChanged
	n.hookMu.RUnlock()
	if h != nil {
		h(ctx, tenantID)
	}
}

// policyChanged fires the policy hook, if registered.
func (n *notifier) policyChanged(ctx context.Context, tenantID string) {
	n.hookMu.RLock()
	h := n.hooks.PolicyChanged
	n.hookMu.RUnlock()
	if h != nil {
		h(ctx, tenantID)
	}
}
