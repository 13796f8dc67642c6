package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"halcyon-hq/switchboard/pkg/policy"
	"halcyon-hq/switchboard/pkg/triage"
)

// testStores builds one of each backend so every test runs against both.
func testStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "switchboard.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestStore_ManualRuleLifecycle(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			rule := &triage.ManualRule{
				Name:             "billing questions",
				RequiredKeywords: []string{"bill", "invoice"},
				ExcludedKeywords: []string{"cancel"},
				Classification:   "billing",
				Action:           triage.ActionContinue,
				Priority:         40,
				Rationale:        "callers asking about invoices stay automated",
			}
			if err := s.SaveManualRule(ctx, "acme", rule); err != nil {
				t.Fatalf("SaveManualRule() error = %v", err)
			}
			if rule.ID == "" {
				t.Fatal("SaveManualRule() did not assign an ID")
			}
			if rule.UpdatedAt.IsZero() {
				t.Fatal("SaveManualRule() did not stamp UpdatedAt")
			}

			rules, err := s.ManualRules(ctx, "acme")
			if err != nil {
				t.Fatalf("ManualRules() error = %v", err)
			}
			if len(rules) != 1 {
				t.Fatalf("ManualRules() returned %d rules, want 1", len(rules))
			}
			got := rules[0]
			if got.ID != rule.ID {
				t.Errorf("ID = %q, want %q", got.ID, rule.ID)
			}
			if got.Name != "billing questions" {
				t.Errorf("Name = %q, want %q", got.Name, "billing questions")
			}
			if len(got.RequiredKeywords) != 2 || got.RequiredKeywords[0] != "bill" {
				t.Errorf("RequiredKeywords = %v, want [bill invoice]", got.RequiredKeywords)
			}
			if len(got.ExcludedKeywords) != 1 || got.ExcludedKeywords[0] != "cancel" {
				t.Errorf("ExcludedKeywords = %v, want [cancel]", got.ExcludedKeywords)
			}
			if got.Priority != 40 {
				t.Errorf("Priority = %d, want 40", got.Priority)
			}

			// Saving with the same ID replaces in place.
			rule.Priority = 55
			rule.UpdatedAt = time.Time{}
			if err := s.SaveManualRule(ctx, "acme", rule); err != nil {
				t.Fatalf("SaveManualRule() update error = %v", err)
			}
			rules, err = s.ManualRules(ctx, "acme")
			if err != nil {
				t.Fatalf("ManualRules() error = %v", err)
			}
			if len(rules) != 1 {
				t.Fatalf("ManualRules() after update returned %d rules, want 1", len(rules))
			}
			if rules[0].Priority != 55 {
				t.Errorf("Priority after update = %d, want 55", rules[0].Priority)
			}

			if err := s.DeleteManualRule(ctx, "acme", rule.ID); err != nil {
				t.Fatalf("DeleteManualRule() error = %v", err)
			}
			rules, err = s.ManualRules(ctx, "acme")
			if err != nil {
				t.Fatalf("ManualRules() error = %v", err)
			}
			if len(rules) != 0 {
				t.Errorf("ManualRules() after delete returned %d rules, want 0", len(rules))
			}

			err = s.DeleteManualRule(ctx, "acme", rule.ID)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("DeleteManualRule() twice error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_ManualRules_TenantIsolation(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, tenant := range []string{"acme", "globex"} {
				rule := &triage.ManualRule{
					RequiredKeywords: []string{tenant},
					Classification:   "greeting",
					Action:           triage.ActionContinue,
				}
				if err := s.SaveManualRule(ctx, tenant, rule); err != nil {
					t.Fatalf("SaveManualRule(%q) error = %v", tenant, err)
				}
			}

			rules, err := s.ManualRules(ctx, "acme")
			if err != nil {
				t.Fatalf("ManualRules() error = %v", err)
			}
			if len(rules) != 1 {
				t.Fatalf("ManualRules(acme) returned %d rules, want 1", len(rules))
			}
			if rules[0].RequiredKeywords[0] != "acme" {
				t.Errorf("acme list contains rule %v from another tenant", rules[0])
			}
		})
	}
}

func TestStore_GeneratedRuleLifecycle(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			rule := &triage.GeneratedRule{
				RequiredKeywords: []string{"furnace", "noise"},
				Classification:   "service_request",
				Action:           triage.ActionTakeMessage,
				Priority:         20,
				Confidence:       0.83,
				Rationale:        "mined from 14 transcripts",
			}
			if err := s.SaveGeneratedRule(ctx, "acme", rule); err != nil {
				t.Fatalf("SaveGeneratedRule() error = %v", err)
			}
			if rule.ID == "" {
				t.Fatal("SaveGeneratedRule() did not assign an ID")
			}

			rules, err := s.GeneratedRules(ctx, "acme")
			if err != nil {
				t.Fatalf("GeneratedRules() error = %v", err)
			}
			if len(rules) != 1 {
				t.Fatalf("GeneratedRules() returned %d rules, want 1", len(rules))
			}
			if rules[0].Active {
				t.Error("imported rule is active, want inactive until approved")
			}
			if rules[0].Confidence != 0.83 {
				t.Errorf("Confidence = %v, want 0.83", rules[0].Confidence)
			}

			if err := s.SetGeneratedRuleActive(ctx, "acme", rule.ID, true); err != nil {
				t.Fatalf("SetGeneratedRuleActive() error = %v", err)
			}
			rules, err = s.GeneratedRules(ctx, "acme")
			if err != nil {
				t.Fatalf("GeneratedRules() error = %v", err)
			}
			if !rules[0].Active {
				t.Error("rule still inactive after approval")
			}

			err = s.SetGeneratedRuleActive(ctx, "acme", "no-such-rule", true)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("SetGeneratedRuleActive(unknown) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_ResponsePools(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			pools, err := s.ResponsePools(ctx, "acme")
			if err != nil {
				t.Fatalf("ResponsePools() error = %v", err)
			}
			if len(pools) != 0 {
				t.Fatalf("ResponsePools() on empty store = %v, want empty", pools)
			}

			if err := s.SaveResponsePool(ctx, "acme", "greeting",
				[]string{"Thanks for calling.", "How can I help?"}); err != nil {
				t.Fatalf("SaveResponsePool() error = %v", err)
			}
			if err := s.SaveResponsePool(ctx, "acme", "hours",
				[]string{"We are open 8 to 5."}); err != nil {
				t.Fatalf("SaveResponsePool() error = %v", err)
			}

			pools, err = s.ResponsePools(ctx, "acme")
			if err != nil {
				t.Fatalf("ResponsePools() error = %v", err)
			}
			if len(pools) != 2 {
				t.Fatalf("ResponsePools() returned %d pools, want 2", len(pools))
			}
			if len(pools["greeting"]) != 2 {
				t.Errorf("greeting pool = %v, want 2 responses", pools["greeting"])
			}

			// Saving again replaces the whole pool.
			if err := s.SaveResponsePool(ctx, "acme", "greeting",
				[]string{"Hello."}); err != nil {
				t.Fatalf("SaveResponsePool() replace error = %v", err)
			}
			pools, _ = s.ResponsePools(ctx, "acme")
			if len(pools["greeting"]) != 1 || pools["greeting"][0] != "Hello." {
				t.Errorf("greeting pool after replace = %v, want [Hello.]", pools["greeting"])
			}

			if err := s.DeleteResponsePool(ctx, "acme", "hours"); err != nil {
				t.Fatalf("DeleteResponsePool() error = %v", err)
			}
			if err := s.DeleteResponsePool(ctx, "acme", "hours"); err != nil {
				t.Errorf("DeleteResponsePool() on absent pool error = %v, want nil", err)
			}
			pools, _ = s.ResponsePools(ctx, "acme")
			if _, ok := pools["hours"]; ok {
				t.Error("hours pool still present after delete")
			}
		})
	}
}

func TestStore_PolicyVersioning(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.ActivePolicy(ctx, "acme"); !errors.Is(err, policy.ErrNoActivePolicy) {
				t.Fatalf("ActivePolicy() on empty store error = %v, want ErrNoActivePolicy", err)
			}

			v1 := &policy.Document{
				TenantID:    "acme",
				CompanyName: "Acme Heating",
				Guardrails:  policy.GuardrailSpec{Flags: []string{policy.GuardrailNoPrices}},
			}
			version, err := s.SavePolicy(ctx, v1)
			if err != nil {
				t.Fatalf("SavePolicy() error = %v", err)
			}
			if version != 1 {
				t.Fatalf("SavePolicy() assigned version %d, want 1", version)
			}
			if v1.Version != 1 {
				t.Errorf("SavePolicy() left doc.Version = %d, want 1", v1.Version)
			}

			v2 := &policy.Document{
				TenantID:    "acme",
				CompanyName: "Acme Heating & Air",
				EdgeCases: []policy.EdgeCaseRule{{
					Name:     "robocall",
					Pattern:  policy.PatternSpec{Kind: policy.PatternKeywords, Keywords: []string{"press one"}},
					Kind:     policy.EdgePoliteHangup,
					Response: "Goodbye.",
				}},
			}
			if version, err = s.SavePolicy(ctx, v2); err != nil {
				t.Fatalf("SavePolicy() error = %v", err)
			}
			if version != 2 {
				t.Fatalf("SavePolicy() assigned version %d, want 2", version)
			}

			// Saved versions are inactive until activated.
			if _, err := s.ActivePolicy(ctx, "acme"); !errors.Is(err, policy.ErrNoActivePolicy) {
				t.Fatalf("ActivePolicy() before activation error = %v, want ErrNoActivePolicy", err)
			}

			if err := s.ActivatePolicy(ctx, "acme", 2); err != nil {
				t.Fatalf("ActivatePolicy(2) error = %v", err)
			}
			doc, err := s.ActivePolicy(ctx, "acme")
			if err != nil {
				t.Fatalf("ActivePolicy() error = %v", err)
			}
			if doc.Version != 2 || !doc.Active {
				t.Errorf("ActivePolicy() = version %d active %v, want version 2 active", doc.Version, doc.Active)
			}
			if doc.CompanyName != "Acme Heating & Air" {
				t.Errorf("CompanyName = %q, want %q", doc.CompanyName, "Acme Heating & Air")
			}
			if len(doc.EdgeCases) != 1 || doc.EdgeCases[0].Kind != policy.EdgePoliteHangup {
				t.Errorf("EdgeCases = %+v, want the stored polite_hangup rule", doc.EdgeCases)
			}

			// Switching back reactivates the old version and deactivates
			// the current one.
			if err := s.ActivatePolicy(ctx, "acme", 1); err != nil {
				t.Fatalf("ActivatePolicy(1) error = %v", err)
			}
			doc, err = s.ActivePolicy(ctx, "acme")
			if err != nil {
				t.Fatalf("ActivePolicy() error = %v", err)
			}
			if doc.Version != 1 {
				t.Errorf("ActivePolicy() after rollback = version %d, want 1", doc.Version)
			}
			if doc.Guardrails.Flags[0] != policy.GuardrailNoPrices {
				t.Errorf("Guardrails.Flags = %v, want [NO_PRICES]", doc.Guardrails.Flags)
			}

			err = s.ActivatePolicy(ctx, "acme", 99)
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("ActivatePolicy(99) error = %v, want ErrNotFound", err)
			}
			doc, _ = s.ActivePolicy(ctx, "acme")
			if doc == nil || doc.Version != 1 {
				t.Error("failed activation changed the active version")
			}
		})
	}
}

func TestStore_PolicyVersions_NewestFirstSingleActive(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				if _, err := s.SavePolicy(ctx, &policy.Document{TenantID: "acme"}); err != nil {
					t.Fatalf("SavePolicy() error = %v", err)
				}
			}
			if err := s.ActivatePolicy(ctx, "acme", 2); err != nil {
				t.Fatalf("ActivatePolicy() error = %v", err)
			}
			if err := s.ActivatePolicy(ctx, "acme", 3); err != nil {
				t.Fatalf("ActivatePolicy() error = %v", err)
			}

			versions, err := s.PolicyVersions(ctx, "acme")
			if err != nil {
				t.Fatalf("PolicyVersions() error = %v", err)
			}
			if len(versions) != 3 {
				t.Fatalf("PolicyVersions() returned %d versions, want 3", len(versions))
			}
			for i, want := range []int{3, 2, 1} {
				if versions[i].Version != want {
					t.Errorf("versions[%d].Version = %d, want %d", i, versions[i].Version, want)
				}
			}
			activeCount := 0
			for _, v := range versions {
				if v.Active {
					activeCount++
					if v.Version != 3 {
						t.Errorf("active version = %d, want 3", v.Version)
					}
				}
			}
			if activeCount != 1 {
				t.Errorf("%d versions active, want exactly 1", activeCount)
			}
		})
	}
}

func TestStore_Hooks(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var ruleEvents, policyEvents []string
			s.SetHooks(Hooks{
				RulesChanged:  func(_ context.Context, tenantID string) { ruleEvents = append(ruleEvents, tenantID) },
				PolicyChanged: func(_ context.Context, tenantID string) { policyEvents = append(policyEvents, tenantID) },
			})

			rule := &triage.ManualRule{
				RequiredKeywords: []string{"hours"},
				Classification:   "hours",
				Action:           triage.ActionContinue,
			}
			if err := s.SaveManualRule(ctx, "acme", rule); err != nil {
				t.Fatalf("SaveManualRule() error = %v", err)
			}
			if err := s.SaveResponsePool(ctx, "acme", "hours", []string{"8 to 5."}); err != nil {
				t.Fatalf("SaveResponsePool() error = %v", err)
			}
			if err := s.DeleteManualRule(ctx, "acme", rule.ID); err != nil {
				t.Fatalf("DeleteManualRule() error = %v", err)
			}
			// A no-op delete must not fire an invalidation.
			if err := s.DeleteResponsePool(ctx, "acme", "absent"); err != nil {
				t.Fatalf("DeleteResponsePool() error = %v", err)
			}

			if len(ruleEvents) != 3 {
				t.Errorf("rules hook fired %d times, want 3: %v", len(ruleEvents), ruleEvents)
			}
			for _, tenant := range ruleEvents {
				if tenant != "acme" {
					t.Errorf("rules hook fired for tenant %q, want acme", tenant)
				}
			}

			// Saving a policy does not change which version is live, so
			// only activation notifies.
			if _, err := s.SavePolicy(ctx, &policy.Document{TenantID: "acme"}); err != nil {
				t.Fatalf("SavePolicy() error = %v", err)
			}
			if len(policyEvents) != 0 {
				t.Errorf("policy hook fired on save: %v", policyEvents)
			}
			if err := s.ActivatePolicy(ctx, "acme", 1); err != nil {
				t.Fatalf("ActivatePolicy() error = %v", err)
			}
			if len(policyEvents) != 1 || policyEvents[0] != "acme" {
				t.Errorf("policy hook events = %v, want [acme]", policyEvents)
			}
		})
	}
}

func TestStore_SessionArchive(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

			for i, callID := range []string{"call-a", "call-b", "call-c"} {
				rec := &SessionRecord{
					CallID:          callID,
					TenantID:        "acme",
					Turns:           i + 1,
					FinalAction:     "hangup",
					CollectedFields: map[string]string{"name": "Dana"},
					StartedAt:       base.Add(time.Duration(i) * time.Hour),
					EndedAt:         base.Add(time.Duration(i)*time.Hour + 5*time.Minute),
				}
				if err := s.ArchiveSession(ctx, rec); err != nil {
					t.Fatalf("ArchiveSession(%q) error = %v", callID, err)
				}
			}

			records, err := s.SessionHistory(ctx, "acme", 0)
			if err != nil {
				t.Fatalf("SessionHistory() error = %v", err)
			}
			if len(records) != 3 {
				t.Fatalf("SessionHistory() returned %d records, want 3", len(records))
			}
			if records[0].CallID != "call-c" || records[2].CallID != "call-a" {
				t.Errorf("history order = [%s %s %s], want newest first",
					records[0].CallID, records[1].CallID, records[2].CallID)
			}
			if records[0].CollectedFields["name"] != "Dana" {
				t.Errorf("CollectedFields = %v, want name=Dana", records[0].CollectedFields)
			}

			records, err = s.SessionHistory(ctx, "acme", 2)
			if err != nil {
				t.Fatalf("SessionHistory(limit=2) error = %v", err)
			}
			if len(records) != 2 {
				t.Fatalf("SessionHistory(limit=2) returned %d records, want 2", len(records))
			}

			// Re-archiving a call replaces its record instead of growing
			// the history.
			if err := s.ArchiveSession(ctx, &SessionRecord{
				CallID:      "call-c",
				TenantID:    "acme",
				Turns:       9,
				FinalAction: "transfer",
				EndedAt:     base.Add(4 * time.Hour),
			}); err != nil {
				t.Fatalf("ArchiveSession() replace error = %v", err)
			}
			records, _ = s.SessionHistory(ctx, "acme", 0)
			if len(records) != 3 {
				t.Fatalf("history after replace has %d records, want 3", len(records))
			}
			if records[0].CallID != "call-c" || records[0].Turns != 9 {
				t.Errorf("replaced record = %+v, want call-c with 9 turns", records[0])
			}

			records, err = s.SessionHistory(ctx, "globex", 0)
			if err != nil {
				t.Fatalf("SessionHistory(globex) error = %v", err)
			}
			if len(records) != 0 {
				t.Errorf("SessionHistory(globex) returned %d records, want 0", len(records))
			}
		})
	}
}

func TestStore_Validation(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.SaveManualRule(ctx, "", &triage.ManualRule{}); err == nil {
				t.Error("SaveManualRule() with empty tenant succeeded")
			}
			if err := s.SaveManualRule(ctx, "acme", nil); err == nil {
				t.Error("SaveManualRule() with nil rule succeeded")
			}
			if _, err := s.ManualRules(ctx, ""); err == nil {
				t.Error("ManualRules() with empty tenant succeeded")
			}
			if _, err := s.SavePolicy(ctx, &policy.Document{}); err == nil {
				t.Error("SavePolicy() with empty tenant succeeded")
			}
			if err := s.ActivatePolicy(ctx, "acme", 0); err == nil {
				t.Error("ActivatePolicy() with version 0 succeeded")
			}
			if err := s.ArchiveSession(ctx, &SessionRecord{TenantID: "acme"}); err == nil {
				t.Error("ArchiveSession() with empty call id succeeded")
			}
		})
	}
}
