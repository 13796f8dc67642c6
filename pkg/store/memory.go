package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"halcyon-hq/switchboard/pkg/policy"
	"halcyon-hq/switchboard/pkg/triage"
)

// Memory implements Store with in-memory maps. All data is lost when the
// process exits, which makes it the backend for tests and throwaway
// environments.
//
// Memory is thread-safe. Policy documents and session records are held in
// encoded form so callers can keep mutating the values they passed in
// without corrupting the store, matching the sqlite backend's behavior.
type Memory struct {
	notifier

	mu        sync.RWMutex
	manual    map[string]map[string]triage.ManualRule
	generated map[string]map[string]triage.GeneratedRule
	pools     map[string]map[string][]string
	policies  map[string][]memoryPolicy
	sessions  map[string]map[string]archivedCall
}

// memoryPolicy is one stored policy version. Version, active, and updatedAt
// live outside the encoded body, mirroring the sqlite columns.
type memoryPolicy struct {
	version   int
	active    bool
	body      []byte
	updatedAt time.Time
}

// archivedCall is one archived session, keyed by call ID in the tenant map.
type archivedCall struct {
	body    []byte
	endedAt time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		manual:    make(map[string]map[string]triage.ManualRule),
		generated: make(map[string]map[string]triage.GeneratedRule),
		pools:     make(map[string]map[string][]string),
		policies:  make(map[string][]memoryPolicy),
		sessions:  make(map[string]map[string]archivedCall),
	}
}

// ManualRules returns the tenant's operator-authored rules.
func (m *Memory) ManualRules(ctx context.Context, tenantID string) ([]triage.ManualRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	byID := m.manual[tenantID]
	if len(byID) == 0 {
		return nil, nil
	}
	rules := make([]triage.ManualRule, 0, len(byID))
	for _, r := range byID {
		r.RequiredKeywords = slices.Clone(r.RequiredKeywords)
		r.ExcludedKeywords = slices.Clone(r.ExcludedKeywords)
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

// GeneratedRules returns the tenant's transcript-mined rules, including
// inactive ones.
func (m *Memory) GeneratedRules(ctx context.Context, tenantID string) ([]triage.GeneratedRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	byID := m.generated[tenantID]
	if len(byID) == 0 {
		return nil, nil
	}
	rules := make([]triage.GeneratedRule, 0, len(byID))
	for _, r := range byID {
		r.RequiredKeywords = slices.Clone(r.RequiredKeywords)
		r.ExcludedKeywords = slices.Clone(r.ExcludedKeywords)
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

// ResponsePools returns the tenant's canned response pools keyed by
// classification.
func (m *Memory) ResponsePools(ctx context.Context, tenantID string) (map[string][]string, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	byClass := m.pools[tenantID]
	if len(byClass) == 0 {
		return map[string][]string{}, nil
	}
	pools := make(map[string][]string, len(byClass))
	for classification, texts := range byClass {
		pools[classification] = slices.Clone(texts)
	}
	return pools, nil
}

// SaveManualRule inserts or replaces an operator-authored rule.
func (m *Memory) SaveManualRule(ctx context.Context, tenantID string, rule *triage.ManualRule) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = time.Now().UTC()
	}

	stored := *rule
	stored.RequiredKeywords = slices.Clone(rule.RequiredKeywords)
	stored.ExcludedKeywords = slices.Clone(rule.ExcludedKeywords)

	m.mu.Lock()
	byID := m.manual[tenantID]
	if byID == nil {
		byID = make(map[string]triage.ManualRule)
		m.manual[tenantID] = byID
	}
	byID[stored.ID] = stored
	m.mu.Unlock()

	m.rulesChanged(ctx, tenantID)
	return nil
}

// DeleteManualRule removes an operator-authored rule.
func (m *Memory) DeleteManualRule(ctx context.Context, tenantID, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if ruleID == "" {
		return fmt.Errorf("rule id cannot be empty")
	}

	m.mu.Lock()
	byID := m.manual[tenantID]
	_, ok := byID[ruleID]
	if ok {
		delete(byID, ruleID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("manual rule %q for tenant %q: %w", ruleID, tenantID, ErrNotFound)
	}

	m.rulesChanged(ctx, tenantID)
	return nil
}

// SaveGeneratedRule inserts or replaces a transcript-mined rule.
func (m *Memory) SaveGeneratedRule(ctx context.Context, tenantID string, rule *triage.GeneratedRule) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = time.Now().UTC()
	}

	stored := *rule
	stored.RequiredKeywords = slices.Clone(rule.RequiredKeywords)
	stored.ExcludedKeywords = slices.Clone(rule.ExcludedKeywords)

	m.mu.Lock()
	byID := m.generated[tenantID]
	if byID == nil {
		byID = make(map[string]triage.GeneratedRule)
		m.generated[tenantID] = byID
	}
	byID[stored.ID] = stored
	m.mu.Unlock()

	m.rulesChanged(ctx, tenantID)
	return nil
}

// SetGeneratedRuleActive flips a mined rule in or out of compilation.
func (m *Memory) SetGeneratedRuleActive(ctx context.Context, tenantID, ruleID string, active bool) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if ruleID == "" {
		return fmt.Errorf("rule id cannot be empty")
	}

	m.mu.Lock()
	byID := m.generated[tenantID]
	rule, ok := byID[ruleID]
	if ok {
		rule.Active = active
		rule.UpdatedAt = time.Now().UTC()
		byID[ruleID] = rule
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("generated rule %q for tenant %q: %w", ruleID, tenantID, ErrNotFound)
	}

	m.rulesChanged(ctx, tenantID)
	return nil
}

// SaveResponsePool replaces the canned responses for a classification.
func (m *Memory) SaveResponsePool(ctx context.Context, tenantID, classification string, responses []string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if classification == "" {
		return fmt.Errorf("classification cannot be empty")
	}

	m.mu.Lock()
	byClass := m.pools[tenantID]
	if byClass == nil {
		byClass = make(map[string][]string)
		m.pools[tenantID] = byClass
	}
	byClass[classification] = slices.Clone(responses)
	m.mu.Unlock()

	m.rulesChanged(ctx, tenantID)
	return nil
}

// DeleteResponsePool removes a classification's canned responses.
func (m *Memory) DeleteResponsePool(ctx context.Context, tenantID, classification string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if classification == "" {
		return fmt.Errorf("classification cannot be empty")
	}

	m.mu.Lock()
	byClass := m.pools[tenantID]
	_, ok := byClass[classification]
	if ok {
		delete(byClass, classification)
	}
	m.mu.Unlock()

	if ok {
		m.rulesChanged(ctx, tenantID)
	}
	return nil
}

// ActivePolicy returns the tenant's active policy document.
func (m *Memory) ActivePolicy(ctx context.Context, tenantID string) (*policy.Document, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mp := range m.policies[tenantID] {
		if !mp.active {
			continue
		}
		var doc policy.Document
		if err := json.Unmarshal(mp.body, &doc); err != nil {
			return nil, fmt.Errorf("decode policy document version %d: %w", mp.version, err)
		}
		doc.TenantID = tenantID
		doc.Version = mp.version
		doc.Active = true
		doc.UpdatedAt = mp.updatedAt
		return &doc, nil
	}
	return nil, policy.ErrNoActivePolicy
}

// SavePolicy stores the document as a new inactive version and returns the
// assigned version number.
func (m *Memory) SavePolicy(ctx context.Context, doc *policy.Document) (int, error) {
	if doc == nil {
		return 0, fmt.Errorf("document cannot be nil")
	}
	if doc.TenantID == "" {
		return 0, fmt.Errorf("tenant id cannot be empty")
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	version := 1
	for _, mp := range m.policies[doc.TenantID] {
		if mp.version >= version {
			version = mp.version + 1
		}
	}

	doc.Version = version
	doc.Active = false

	body, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode policy document: %w", err)
	}

	m.policies[doc.TenantID] = append(m.policies[doc.TenantID], memoryPolicy{
		version:   version,
		body:      body,
		updatedAt: doc.UpdatedAt,
	})
	return version, nil
}

// ActivatePolicy makes the given version the tenant's single active version.
func (m *Memory) ActivatePolicy(ctx context.Context, tenantID string, version int) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if version <= 0 {
		return fmt.Errorf("version must be positive")
	}

	m.mu.Lock()
	versions := m.policies[tenantID]
	found := false
	for i := range versions {
		if versions[i].version == version {
			found = true
			break
		}
	}
	if found {
		now := time.Now().UTC()
		for i := range versions {
			if versions[i].version == version {
				versions[i].active = true
				versions[i].updatedAt = now
			} else {
				versions[i].active = false
			}
		}
	}
	m.mu.Unlock()

	if !found {
		return fmt.Errorf("policy version %d for tenant %q: %w", version, tenantID, ErrNotFound)
	}

	m.policyChanged(ctx, tenantID)
	return nil
}

// PolicyVersions lists the tenant's stored versions, newest first.
func (m *Memory) PolicyVersions(ctx context.Context, tenantID string) ([]PolicyVersion, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.policies[tenantID]
	if len(stored) == 0 {
		return nil, nil
	}
	versions := make([]PolicyVersion, 0, len(stored))
	for _, mp := range stored {
		versions = append(versions, PolicyVersion{
			Version:   mp.version,
			Active:    mp.active,
			UpdatedAt: mp.updatedAt,
		})
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version > versions[j].Version })
	return versions, nil
}

// ArchiveSession appends a finished call's record.
func (m *Memory) ArchiveSession(ctx context.Context, rec *SessionRecord) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.CallID == "" {
		return fmt.Errorf("call id cannot be empty")
	}
	if rec.TenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now().UTC()
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}

	m.mu.Lock()
	byCall := m.sessions[rec.TenantID]
	if byCall == nil {
		byCall = make(map[string]archivedCall)
		m.sessions[rec.TenantID] = byCall
	}
	byCall[rec.CallID] = archivedCall{body: body, endedAt: rec.EndedAt}
	m.mu.Unlock()
	return nil
}

// SessionHistory returns a tenant's archived calls, newest first.
func (m *Memory) SessionHistory(ctx context.Context, tenantID string, limit int) ([]SessionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}
	if limit <= 0 {
		limit = defaultSessionHistoryLimit
	}

	m.mu.RLock()
	type entry struct {
		callID  string
		body    []byte
		endedAt time.Time
	}
	entries := make([]entry, 0, len(m.sessions[tenantID]))
	for callID, ac := range m.sessions[tenantID] {
		entries = append(entries, entry{callID: callID, body: ac.body, endedAt: ac.endedAt})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].endedAt.Equal(entries[j].endedAt) {
			return entries[i].endedAt.After(entries[j].endedAt)
		}
		return strings.Compare(entries[i].callID, entries[j].callID) < 0
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	records := make([]SessionRecord, 0, len(entries))
	for _, e := range entries {
		var rec SessionRecord
		if err := json.Unmarshal(e.body, &rec); err != nil {
			return nil, fmt.Errorf("decode session record: %w", err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records, nil
}

// Close releases backend resources. The memory backend holds none.
func (m *Memory) Close() error {
	return nil
}
