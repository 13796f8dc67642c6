package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"halcyon-hq/switchboard/pkg/cache"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
	"halcyon-hq/switchboard/pkg/telemetry/metrics"
)

// RuleSource loads a tenant's rule documents for compilation. The canonical
// implementation lives in pkg/store; the compiler only needs read access.
type RuleSource interface {
	// ManualRules returns the tenant's operator-authored rules.
	ManualRules(ctx context.Context, tenantID string) ([]ManualRule, error)

	// GeneratedRules returns the tenant's transcript-mined rules,
	// including inactive ones. The compiler filters on Active.
	GeneratedRules(ctx context.Context, tenantID string) ([]GeneratedRule, error)

	// ResponsePools returns the tenant's canned response pools keyed by
	// classification.
	ResponsePools(ctx context.Context, tenantID string) (map[string][]string, error)
}

// CompilerConfig controls rule set compilation and caching.
type CompilerConfig struct {
	// TTL is how long a compiled rule set stays cached. Rule CRUD
	// invalidates eagerly; the TTL backstops a missed invalidation.
	// Default: 1h.
	TTL time.Duration

	// FallbackAction is assigned to the synthesized catch-all rule.
	// Default: forward_to_classifier.
	FallbackAction string

	// MaxRules caps the combined manual and generated rule count per
	// tenant. Compilation fails outright above the cap. Default: 500.
	MaxRules int

	// MaxKeywordsPerRule caps required plus excluded keywords on a single
	// rule. Rules over the cap are skipped. Default: 32.
	MaxKeywordsPerRule int
}

// Compiler merges a tenant's manual, generated, and system rules into one
// deterministic rule set and caches the result per tenant.
//
// Cache failures never fail a compile: a broken cache degrades to per-turn
// compilation from the store. Store failures do fail the compile, because
// without rule documents there is nothing safe to serve.
type Compiler struct {
	source  RuleSource
	cache   cache.Cache
	cfg     CompilerConfig
	logger  *logging.Logger
	metrics *metrics.TriageMetrics
}

// NewCompiler creates a rule set compiler. metrics may be nil, in which
// case compilation is not instrumented.
func NewCompiler(source RuleSource, c cache.Cache, cfg CompilerConfig, logger *logging.Logger, tm *metrics.TriageMetrics) *Compiler {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.FallbackAction == "" {
		cfg.FallbackAction = ActionForwardToClassifier
	}
	if cfg.MaxRules <= 0 {
		cfg.MaxRules = 500
	}
	if cfg.MaxKeywordsPerRule <= 0 {
		cfg.MaxKeywordsPerRule = 32
	}
	return &Compiler{
		source:  source,
		cache:   c,
		cfg:     cfg,
		logger:  logger,
		metrics: tm,
	}
}

// Compile returns the tenant's compiled rule set, serving from cache when a
// fresh copy exists and rebuilding from the store otherwise.
func (c *Compiler) Compile(ctx context.Context, tenantID string) (*RuleSet, error) {
	return c.compile(ctx, tenantID, false)
}

// Invalidate drops the tenant's cached rule set. Rule CRUD calls this so
// the next turn compiles against fresh documents.
func (c *Compiler) Invalidate(ctx context.Context, tenantID string) error {
	if err := c.cache.Delete(ctx, cache.RuleSetKey(tenantID)); err != nil {
		return fmt.Errorf("invalidate rule set for tenant %q: %w", tenantID, err)
	}
	return nil
}

// Refresh invalidates the tenant's cached rule set and compiles a fresh one
// from the store, bypassing any stale cached copy.
func (c *Compiler) Refresh(ctx context.Context, tenantID string) (*RuleSet, error) {
	if err := c.Invalidate(ctx, tenantID); err != nil {
		c.logger.WarnContext(ctx, "rule set invalidation failed, compiling anyway",
			"tenant_id", tenantID,
			"error", err)
	}
	return c.compile(ctx, tenantID, true)
}

func (c *Compiler) compile(ctx context.Context, tenantID string, skipCache bool) (*RuleSet, error) {
	key := cache.RuleSetKey(tenantID)

	if !skipCache {
		if set, ok := c.fromCache(ctx, key, tenantID); ok {
			return set, nil
		}
	}
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(tenantID)
	}

	set, err := c.build(ctx, tenantID)
	if err != nil {
		return nil, &CompileError{TenantID: tenantID, Cause: err}
	}

	if data, err := json.Marshal(set); err != nil {
		c.logger.WarnContext(ctx, "rule set cache encode failed, serving uncached",
			"tenant_id", tenantID,
			"error", err)
	} else if err := c.cache.Set(ctx, key, data, c.cfg.TTL); err != nil {
		c.logger.WarnContext(ctx, "rule set cache write failed, serving uncached",
			"tenant_id", tenantID,
			"error", err)
	}

	return set, nil
}

func (c *Compiler) fromCache(ctx context.Context, key, tenantID string) (*RuleSet, bool) {
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "rule set cache read failed, compiling from store",
			"tenant_id", tenantID,
			"error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var set RuleSet
	if err := json.Unmarshal(data, &set); err != nil {
		c.logger.WarnContext(ctx, "cached rule set is corrupt, recompiling",
			"tenant_id", tenantID,
			"error", err)
		return nil, false
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit(tenantID)
	}
	return &set, true
}

// build loads rule documents from the store, validates and normalizes each
// rule, appends the catch-all, and sorts everything into evaluation order.
func (c *Compiler) build(ctx context.Context, tenantID string) (*RuleSet, error) {
	start := time.Now()

	manual, err := c.source.ManualRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load manual rules: %w", err)
	}
	generated, err := c.source.GeneratedRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load generated rules: %w", err)
	}
	pools, err := c.source.ResponsePools(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load response pools: %w", err)
	}

	if total := len(manual) + len(generated); total > c.cfg.MaxRules {
		return nil, fmt.Errorf("%w: %d rules exceed cap of %d", ErrTooManyRules, total, c.cfg.MaxRules)
	}

	rules := make([]Rule, 0, len(manual)+len(generated)+1)
	skipped := 0

	for _, mr := range manual {
		r := Rule{
			ID:               mr.ID,
			Source:           SourceManual,
			RequiredKeywords: mr.RequiredKeywords,
			ExcludedKeywords: mr.ExcludedKeywords,
			Classification:   mr.Classification,
			Action:           mr.Action,
			Priority:         mr.Priority,
			Rationale:        mr.Rationale,
			UpdatedAt:        mr.UpdatedAt,
		}
		if err := c.compileRule(&r); err != nil {
			skipped++
			c.logger.WarnContext(ctx, "skipping invalid rule",
				"tenant_id", tenantID,
				"rule_id", mr.ID,
				"source", string(SourceManual),
				"error", err)
			continue
		}
		rules = append(rules, r)
	}

	for _, gr := range generated {
		if !gr.Active {
			continue
		}
		r := Rule{
			ID:               gr.ID,
			Source:           SourceGenerated,
			RequiredKeywords: gr.RequiredKeywords,
			ExcludedKeywords: gr.ExcludedKeywords,
			Classification:   gr.Classification,
			Action:           gr.Action,
			Priority:         gr.Priority,
			Rationale:        gr.Rationale,
			UpdatedAt:        gr.UpdatedAt,
		}
		if err := c.compileRule(&r); err != nil {
			skipped++
			c.logger.WarnContext(ctx, "skipping invalid rule",
				"tenant_id", tenantID,
				"rule_id", gr.ID,
				"source", string(SourceGenerated),
				"error", err)
			continue
		}
		rules = append(rules, r)
	}

	rules = append(rules, c.catchAll())
	sortRules(rules)

	set := &RuleSet{
		TenantID:      tenantID,
		Rules:         rules,
		ResponsePools: pools,
		CompiledAt:    time.Now().UTC(),
	}

	c.logger.InfoContext(ctx, "compiled rule set",
		"tenant_id", tenantID,
		"rules", len(rules),
		"skipped", skipped,
		"duration_ms", time.Since(start).Milliseconds())
	if c.metrics != nil {
		c.metrics.RecordCompile(tenantID, len(rules), skipped, time.Since(start))
	}

	return set, nil
}

// compileRule validates a rule and normalizes its keywords in place.
func (c *Compiler) compileRule(r *Rule) error {
	if r.ID == "" {
		return &RuleValidationError{Source: r.Source, Reason: "missing rule ID"}
	}
	if r.Priority < 0 {
		return &RuleValidationError{RuleID: r.ID, Source: r.Source, Reason: "priority must not be negative"}
	}
	if r.Classification == "" {
		return &RuleValidationError{RuleID: r.ID, Source: r.Source, Reason: "missing classification"}
	}
	if len(r.RequiredKeywords)+len(r.ExcludedKeywords) > c.cfg.MaxKeywordsPerRule {
		return &RuleValidationError{RuleID: r.ID, Source: r.Source,
			Reason: fmt.Sprintf("%d keywords exceed cap of %d", len(r.RequiredKeywords)+len(r.ExcludedKeywords), c.cfg.MaxKeywordsPerRule)}
	}
	if r.Action == "" {
		r.Action = ActionContinue
	}

	r.RequiredKeywords = normalizeKeywords(r.RequiredKeywords)
	r.ExcludedKeywords = normalizeKeywords(r.ExcludedKeywords)
	if len(r.RequiredKeywords) == 0 {
		return &RuleValidationError{RuleID: r.ID, Source: r.Source, Reason: "no usable required keywords"}
	}
	return nil
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if n := NormalizeKeyword(kw); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// catchAll synthesizes the terminal rule appended to every compiled set. It
// has no keywords, so it matches every utterance that reaches it.
func (c *Compiler) catchAll() Rule {
	return Rule{
		ID:             "system-catch-all",
		Source:         SourceSystem,
		Classification: ClassificationUnknown,
		Action:         c.cfg.FallbackAction,
		Priority:       0,
		Rationale:      "synthesized terminal rule",
		CatchAll:       true,
	}
}

// sortRules orders rules into their total evaluation order: priority
// descending, then source rank descending, then most recently updated, then
// rule ID ascending. The comparison chain ends at the unique rule ID, so
// equal inputs always produce the same order.
func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Source.Rank() != b.Source.Rank() {
			return a.Source.Rank() > b.Source.Rank()
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}
