package triage

import (
	"testing"
	"time"
)

// testRuleSet builds a small compiled set by hand. Keywords are written
// pre-normalized, the way the compiler would emit them.
func testRuleSet(rules ...Rule) *RuleSet {
	rules = append(rules, Rule{
		ID:             "system-catch-all",
		Source:         SourceSystem,
		Classification: ClassificationUnknown,
		Action:         ActionForwardToClassifier,
		CatchAll:       true,
	})
	sortRules(rules)
	return &RuleSet{
		TenantID:   "tenant-1",
		Rules:      rules,
		CompiledAt: time.Now(),
	}
}

func TestMatcher_Match(t *testing.T) {
	set := testRuleSet(
		Rule{
			ID:               "billing",
			Source:           SourceManual,
			RequiredKeywords: []string{"billing"},
			Classification:   "billing",
			Action:           ActionContinue,
			Priority:         80,
		},
		Rule{
			ID:               "no-heat",
			Source:           SourceManual,
			RequiredKeywords: []string{"no heat"},
			ExcludedKeywords: []string{"water"},
			Classification:   "heating_emergency",
			Action:           ActionEscalate,
			Priority:         90,
		},
	)

	m := NewMatcher(nil)

	tests := []struct {
		name         string
		utterance    string
		aux          []string
		wantRuleID   string
		wantCatchAll bool
	}{
		{
			name:       "billing question matches billing rule",
			utterance:  "I have a question about my bill",
			wantRuleID: "billing",
		},
		{
			name:         "unrelated utterance falls to catch-all",
			utterance:    "my furnace is making a weird noise",
			wantRuleID:   "system-catch-all",
			wantCatchAll: true,
		},
		{
			name:       "punctuation and case ignored",
			utterance:  "MY BILL!!!",
			wantRuleID: "billing",
		},
		{
			name:       "phrase keyword matches across words",
			utterance:  "there is no heat upstairs",
			wantRuleID: "no-heat",
		},
		{
			name:         "excluded keyword vetoes the rule",
			utterance:    "no heat in my water tank",
			wantRuleID:   "system-catch-all",
			wantCatchAll: true,
		},
		{
			name:       "aux keyword hint matches by equality",
			utterance:  "uh hello",
			aux:        []string{"billing"},
			wantRuleID: "billing",
		},
		{
			name:         "aux hint is not substring matched",
			utterance:    "uh hello",
			aux:          []string{"billing department"},
			wantRuleID:   "system-catch-all",
			wantCatchAll: true,
		},
		{
			name:         "empty utterance falls to catch-all",
			utterance:    "",
			wantRuleID:   "system-catch-all",
			wantCatchAll: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Match(set, tt.utterance, tt.aux)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if got.Rule.ID != tt.wantRuleID {
				t.Errorf("Match() rule = %q, want %q", got.Rule.ID, tt.wantRuleID)
			}
			if got.CatchAll != tt.wantCatchAll {
				t.Errorf("Match() catch-all = %v, want %v", got.CatchAll, tt.wantCatchAll)
			}
		})
	}
}

func TestMatcher_KeywordStemMatching(t *testing.T) {
	// A caller says "bill" where the operator authored "billing"; the
	// shared stem must still land the rule instead of the catch-all.
	set := testRuleSet(Rule{
		ID:               "billing",
		Source:           SourceManual,
		RequiredKeywords: []string{"billing"},
		Classification:   "billing",
		Action:           ActionContinue,
		Priority:         80,
	})
	m := NewMatcher(nil)

	tests := []struct {
		name         string
		utterance    string
		wantRuleID   string
		wantCatchAll bool
	}{
		{
			name:       "token is a leading stem of the keyword",
			utterance:  "I have a question about my bill",
			wantRuleID: "billing",
		},
		{
			name:       "keyword is a leading stem of the token",
			utterance:  "my billing statement looks wrong",
			wantRuleID: "billing",
		},
		{
			name:       "plural inflection matches",
			utterance:  "both my bills arrived twice",
			wantRuleID: "billing",
		},
		{
			name:         "unrelated compound does not match",
			utterance:    "the billboard out front fell over",
			wantRuleID:   "system-catch-all",
			wantCatchAll: true,
		},
		{
			name:         "unrelated utterance falls to catch-all",
			utterance:    "my furnace is loud",
			wantRuleID:   "system-catch-all",
			wantCatchAll: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Match(set, tt.utterance, nil)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if got.Rule.ID != tt.wantRuleID {
				t.Errorf("Match() rule = %q, want %q", got.Rule.ID, tt.wantRuleID)
			}
			if got.CatchAll != tt.wantCatchAll {
				t.Errorf("Match() catch-all = %v, want %v", got.CatchAll, tt.wantCatchAll)
			}
		})
	}
}

func TestMatcher_AllRequiredKeywordsMustMatch(t *testing.T) {
	set := testRuleSet(Rule{
		ID:               "reschedule",
		Source:           SourceManual,
		RequiredKeywords: []string{"reschedule", "appointment"},
		Classification:   "scheduling",
		Action:           ActionContinue,
		Priority:         50,
	})
	m := NewMatcher(nil)

	got, err := m.Match(set, "I need to reschedule my appointment", nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if got.Rule.ID != "reschedule" {
		t.Errorf("Match() rule = %q, want %q", got.Rule.ID, "reschedule")
	}
	if len(got.MatchedKeywords) != 2 {
		t.Errorf("Match() matched keywords = %v, want both", got.MatchedKeywords)
	}

	got, err = m.Match(set, "I need to reschedule", nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if !got.CatchAll {
		t.Errorf("Match() with partial keywords hit %q, want catch-all", got.Rule.ID)
	}
}

func TestMatcher_FirstMatchWins(t *testing.T) {
	// Both rules match "my bill is late"; the higher priority one must win
	// even though both are satisfied.
	set := testRuleSet(
		Rule{
			ID:               "late-payment",
			Source:           SourceManual,
			RequiredKeywords: []string{"bill", "late"},
			Classification:   "collections",
			Action:           ActionTakeMessage,
			Priority:         90,
		},
		Rule{
			ID:               "billing",
			Source:           SourceManual,
			RequiredKeywords: []string{"bill"},
			Classification:   "billing",
			Action:           ActionContinue,
			Priority:         80,
		},
	)
	m := NewMatcher(nil)

	got, err := m.Match(set, "my bill is late", nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if got.Rule.ID != "late-payment" {
		t.Errorf("Match() rule = %q, want %q", got.Rule.ID, "late-payment")
	}
}

func TestMatcher_RuleWithoutKeywordsNeverMatches(t *testing.T) {
	// A non-catch-all rule with no required keywords must not shadow the
	// rest of the set, even if a corrupt cache entry smuggles one in.
	set := testRuleSet(Rule{
		ID:             "broken",
		Source:         SourceManual,
		Classification: "broken",
		Action:         ActionContinue,
		Priority:       100,
	})
	m := NewMatcher(nil)

	got, err := m.Match(set, "hello there", nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if !got.CatchAll {
		t.Errorf("Match() hit %q, want catch-all", got.Rule.ID)
	}
}

func TestMatcher_NoCatchAll(t *testing.T) {
	set := &RuleSet{
		TenantID: "tenant-1",
		Rules: []Rule{{
			ID:               "billing",
			Source:           SourceManual,
			RequiredKeywords: []string{"bill"},
			Classification:   "billing",
			Priority:         80,
		}},
	}
	m := NewMatcher(nil)

	if _, err := m.Match(set, "unrelated", nil); err != ErrNoCatchAll {
		t.Errorf("Match() error = %v, want ErrNoCatchAll", err)
	}
}

func TestRuleSet_PoolResponse(t *testing.T) {
	set := &RuleSet{
		TenantID: "tenant-1",
		ResponsePools: map[string][]string{
			"billing": {"first", "second", "third"},
		},
	}

	got, ok := set.PoolResponse("billing", 0)
	if !ok || got != "first" {
		t.Errorf("PoolResponse(billing, 0) = %q, %v", got, ok)
	}
	got, ok = set.PoolResponse("billing", 4)
	if !ok || got != "second" {
		t.Errorf("PoolResponse(billing, 4) = %q, %v", got, ok)
	}
	if _, ok := set.PoolResponse("scheduling", 0); ok {
		t.Error("PoolResponse() for missing pool returned ok")
	}
}
