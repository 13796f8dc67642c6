package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"halcyon-hq/switchboard/pkg/cache"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
	"halcyon-hq/switchboard/pkg/telemetry/metrics"
)

// PolicySource loads a tenant's active policy document. The canonical
// implementation lives in pkg/store; the manager only needs read access.
type PolicySource interface {
	// ActivePolicy returns the tenant's active policy document, or
	// ErrNoActivePolicy when the tenant has none.
	ActivePolicy(ctx context.Context, tenantID string) (*Document, error)
}

// ManagerConfig controls policy caching.
type ManagerConfig struct {
	// TTL is how long an active policy document stays cached. Default: 60s.
	TTL time.Duration
}

// Manager loads, caches, and compiles active policy documents per tenant.
//
// The byte cache holds the raw document under policy:{tenant}:active; an
// in-process memo holds the compiled form keyed by document version, so a
// document is compiled once no matter how many turns read it. Cache
// failures degrade to per-turn store reads, and a tenant with no active
// policy gets an empty permissive policy rather than an error.
type Manager struct {
	source  PolicySource
	cache   cache.Cache
	cfg     ManagerConfig
	logger  *logging.Logger
	metrics *metrics.PolicyMetrics

	mu       sync.RWMutex
	compiled map[string]*Policy
}

// NewManager creates a policy manager. metrics may be nil, in which case
// loading is not instrumented.
func NewManager(source PolicySource, c cache.Cache, cfg ManagerConfig, logger *logging.Logger, pm *metrics.PolicyMetrics) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Second
	}
	return &Manager{
		source:   source,
		cache:    c,
		cfg:      cfg,
		logger:   logger,
		metrics:  pm,
		compiled: make(map[string]*Policy),
	}
}

// Active returns the tenant's compiled active policy. Tenants without an
// active document get an empty policy that passes responses through.
func (m *Manager) Active(ctx context.Context, tenantID string) (*Policy, error) {
	return m.active(ctx, tenantID, false)
}

// Invalidate drops the tenant's cached and memoized policy. Policy CRUD
// calls this so the next turn evaluates fresh rules.
func (m *Manager) Invalidate(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	delete(m.compiled, tenantID)
	m.mu.Unlock()

	if err := m.cache.Delete(ctx, cache.ActivePolicyKey(tenantID)); err != nil {
		return fmt.Errorf("invalidate policy for tenant %q: %w", tenantID, err)
	}
	return nil
}

// Refresh invalidates the tenant's cached policy and loads a fresh one
// from the store, bypassing any stale cached copy.
func (m *Manager) Refresh(ctx context.Context, tenantID string) (*Policy, error) {
	if err := m.Invalidate(ctx, tenantID); err != nil {
		m.logger.WarnContext(ctx, "policy invalidation failed, loading anyway",
			"tenant_id", tenantID,
			"error", err)
	}
	return m.active(ctx, tenantID, true)
}

func (m *Manager) active(ctx context.Context, tenantID string, skipCache bool) (*Policy, error) {
	key := cache.ActivePolicyKey(tenantID)

	if !skipCache {
		if doc, ok := m.fromCache(ctx, key, tenantID); ok {
			return m.compiledFor(ctx, tenantID, doc), nil
		}
	}
	if m.metrics != nil {
		m.metrics.RecordCacheMiss(tenantID)
	}

	doc, err := m.source.ActivePolicy(ctx, tenantID)
	switch {
	case errors.Is(err, ErrNoActivePolicy):
		// Cache the absence too, or every turn of a policy-less tenant
		// would hit the store.
		doc = &Document{TenantID: tenantID}
		m.logger.DebugContext(ctx, "tenant has no active policy, using permissive default",
			"tenant_id", tenantID)
	case err != nil:
		return nil, &LoadError{TenantID: tenantID, Cause: err}
	}

	if data, err := json.Marshal(doc); err != nil {
		m.logger.WarnContext(ctx, "policy cache encode failed, serving uncached",
			"tenant_id", tenantID,
			"error", err)
	} else if err := m.cache.Set(ctx, key, data, m.cfg.TTL); err != nil {
		m.logger.WarnContext(ctx, "policy cache write failed, serving uncached",
			"tenant_id", tenantID,
			"error", err)
	}

	return m.compiledFor(ctx, tenantID, doc), nil
}

func (m *Manager) fromCache(ctx context.Context, key, tenantID string) (*Document, bool) {
	data, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		m.logger.WarnContext(ctx, "policy cache read failed, loading from store",
			"tenant_id", tenantID,
			"error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		m.logger.WarnContext(ctx, "cached policy is corrupt, reloading",
			"tenant_id", tenantID,
			"error", err)
		return nil, false
	}
	if m.metrics != nil {
		m.metrics.RecordCacheHit(tenantID)
	}
	return &doc, true
}

// compiledFor returns the memoized compiled policy when its version still
// matches the document, compiling otherwise.
func (m *Manager) compiledFor(ctx context.Context, tenantID string, doc *Document) *Policy {
	m.mu.RLock()
	pol, ok := m.compiled[tenantID]
	m.mu.RUnlock()
	if ok && pol.Version == doc.Version {
		return pol
	}

	pol = m.compile(ctx, doc)

	m.mu.Lock()
	m.compiled[tenantID] = pol
	m.mu.Unlock()
	return pol
}

var knownEdgeKinds = map[string]struct{}{
	EdgeOverrideResponse: {},
	EdgeForceTransfer:    {},
	EdgePoliteHangup:     {},
	EdgeFlagOnly:         {},
}

var knownGuardrailFlags = map[string]struct{}{
	GuardrailNoPrices:       {},
	GuardrailNoPhoneNumbers: {},
	GuardrailNoURLs:         {},
	GuardrailSingleApology:  {},
	GuardrailNoMedicalLegal: {},
}

var knownBehaviorFlags = map[string]struct{}{
	BehaviorAcknowledgeFirst:     {},
	BehaviorIntroduceOnFirstTurn: {},
	BehaviorConfirmCollected:     {},
	BehaviorExpandContractions:   {},
}

// compile turns a document into its evaluated form. Invalid patterns,
// unknown kinds, and unknown flags are skipped with a warning so one bad
// entry cannot take the tenant's whole policy down.
func (m *Manager) compile(ctx context.Context, doc *Document) *Policy {
	start := time.Now()
	skipped := 0

	pol := &Policy{
		TenantID:    doc.TenantID,
		Version:     doc.Version,
		CompanyName: doc.CompanyName,
		CompiledAt:  time.Now().UTC(),
	}

	for _, ec := range doc.EdgeCases {
		if _, ok := knownEdgeKinds[ec.Kind]; !ok {
			skipped++
			m.logger.WarnContext(ctx, "skipping edge case with unknown kind",
				"tenant_id", doc.TenantID,
				"edge_case", ec.Name,
				"kind", ec.Kind)
			continue
		}
		p, err := CompilePattern(ec.Pattern)
		if err != nil {
			skipped++
			m.logger.WarnContext(ctx, "skipping edge case with invalid pattern",
				"tenant_id", doc.TenantID,
				"edge_case", ec.Name,
				"error", err)
			continue
		}
		pol.EdgeCases = append(pol.EdgeCases, EdgeCase{Rule: ec, Pattern: p})
	}

	for _, tr := range doc.Transfers {
		if tr.Target == "" {
			skipped++
			m.logger.WarnContext(ctx, "skipping transfer rule without target",
				"tenant_id", doc.TenantID,
				"transfer", tr.Name)
			continue
		}
		p, err := CompilePattern(tr.Pattern)
		if err != nil {
			skipped++
			m.logger.WarnContext(ctx, "skipping transfer rule with invalid pattern",
				"tenant_id", doc.TenantID,
				"transfer", tr.Name,
				"error", err)
			continue
		}
		pol.Transfers = append(pol.Transfers, Transfer{Rule: tr, Pattern: p})
	}

	if len(doc.AllowedActions) > 0 {
		pol.AllowedActions = make(map[string]struct{}, len(doc.AllowedActions))
		for _, tag := range doc.AllowedActions {
			if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
				pol.AllowedActions[tag] = struct{}{}
			}
		}
	}

	pol.Guardrails = m.compileGuardrails(ctx, doc, &skipped)
	pol.Behavior = Behavior{Flags: m.filterFlags(ctx, doc.TenantID, "behavior", doc.Behavior.Flags, knownBehaviorFlags, &skipped)}

	if m.logger != nil {
		m.logger.DebugContext(ctx, "compiled policy",
			"tenant_id", doc.TenantID,
			"version", doc.Version,
			"edge_cases", len(pol.EdgeCases),
			"transfers", len(pol.Transfers),
			"skipped", skipped)
	}
	if m.metrics != nil {
		m.metrics.RecordCompile(doc.TenantID, len(pol.EdgeCases)+len(pol.Transfers), skipped, time.Since(start))
	}
	return pol
}

func (m *Manager) compileGuardrails(ctx context.Context, doc *Document, skipped *int) Guardrails {
	g := Guardrails{
		Flags:                m.filterFlags(ctx, doc.TenantID, "guardrail", doc.Guardrails.Flags, knownGuardrailFlags, skipped),
		ApprovedPrices:       make(map[string]struct{}, len(doc.Guardrails.ApprovedPrices)),
		ApprovedPhoneNumbers: make(map[string]struct{}, len(doc.Guardrails.ApprovedPhoneNumbers)),
	}

	for _, price := range doc.Guardrails.ApprovedPrices {
		if c := CanonicalPrice(price); c != "$" {
			g.ApprovedPrices[c] = struct{}{}
		}
	}
	for _, phone := range doc.Guardrails.ApprovedPhoneNumbers {
		if c := CanonicalPhone(phone); c != "" {
			g.ApprovedPhoneNumbers[c] = struct{}{}
		}
	}
	for _, term := range doc.Guardrails.RestrictedTerms {
		tm, err := CompileTerm(term)
		if err != nil {
			*skipped++
			m.logger.WarnContext(ctx, "skipping restricted term",
				"tenant_id", doc.TenantID,
				"error", err)
			continue
		}
		g.RestrictedTerms = append(g.RestrictedTerms, tm)
	}
	return g
}

func (m *Manager) filterFlags(ctx context.Context, tenantID, section string, flags []string, known map[string]struct{}, skipped *int) FlagSet {
	fs := make(FlagSet, len(flags))
	for _, f := range flags {
		upper := strings.ToUpper(strings.TrimSpace(f))
		if upper == "" {
			continue
		}
		if _, ok := known[upper]; !ok {
			*skipped++
			m.logger.WarnContext(ctx, "skipping unknown policy flag",
				"tenant_id", tenantID,
				"section", section,
				"flag", f)
			continue
		}
		fs[upper] = struct{}{}
	}
	return fs
}
