package triage

import (
	"slices"

	"halcyon-hq/switchboard/pkg/telemetry/metrics"
)

// Match describes the outcome of evaluating an utterance against a compiled
// rule set.
type Match struct {
	// Rule is the first rule in evaluation order whose keywords matched.
	Rule Rule

	// MatchedKeywords lists the required keywords found in the utterance,
	// in rule order. Empty for catch-all matches.
	MatchedKeywords []string

	// CatchAll reports whether the match fell through to the catch-all.
	CatchAll bool
}

// Matcher evaluates utterances against compiled rule sets.
type Matcher struct {
	metrics *metrics.TriageMetrics
}

// NewMatcher creates a matcher. metrics may be nil, in which case matching
// is not instrumented.
func NewMatcher(tm *metrics.TriageMetrics) *Matcher {
	return &Matcher{metrics: tm}
}

// Match returns the first rule in the set's evaluation order that matches
// the utterance. aux carries caller-supplied keyword hints (IVR menu picks,
// DTMF labels) that are matched by exact normalized equality rather than
// containment.
//
// Match only fails when the rule set has no catch-all, which indicates a
// compiler bug rather than a runtime condition.
func (m *Matcher) Match(set *RuleSet, utterance string, aux []string) (*Match, error) {
	norm := NormalizeText(utterance)

	auxNorm := make([]string, 0, len(aux))
	for _, a := range aux {
		if n := NormalizeKeyword(a); n != "" {
			auxNorm = append(auxNorm, n)
		}
	}

	for i := range set.Rules {
		r := &set.Rules[i]
		matched, hits := ruleMatches(r, norm, auxNorm)
		if !matched {
			continue
		}
		if m.metrics != nil {
			m.metrics.RecordMatch(set.TenantID, string(r.Source), r.CatchAll)
		}
		return &Match{Rule: *r, MatchedKeywords: hits, CatchAll: r.CatchAll}, nil
	}

	return nil, ErrNoCatchAll
}

// ruleMatches tests one rule against a normalized utterance. Excluded
// keywords are checked first so a single hit vetoes the rule regardless of
// required keyword coverage.
func ruleMatches(r *Rule, norm string, aux []string) (bool, []string) {
	for _, kw := range r.ExcludedKeywords {
		if keywordPresent(kw, norm, aux) {
			return false, nil
		}
	}

	if r.CatchAll {
		return true, nil
	}

	// A non-catch-all rule with no required keywords would shadow every
	// rule below it. Treat it as unmatchable; compilation should have
	// rejected it.
	if len(r.RequiredKeywords) == 0 {
		return false, nil
	}

	hits := make([]string, 0, len(r.RequiredKeywords))
	for _, kw := range r.RequiredKeywords {
		if !keywordPresent(kw, norm, aux) {
			return false, nil
		}
		hits = append(hits, kw)
	}
	return true, hits
}

func keywordPresent(keyword, norm string, aux []string) bool {
	if ContainsKeyword(norm, keyword) {
		return true
	}
	return slices.Contains(aux, keyword)
}
