package engine

import (
	"context"
	"io"
	"strings"
	"testing"

	"halcyon-hq/switchboard/pkg/policy"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
)

func testLogger(t testing.TB) *logging.Logger {
	t.Helper()
	logger, err := logging.New(logging.Config{Level: "error", Format: "text", Writer: io.Discard})
	if err != nil {
		t.Fatalf("logging.New() error = %v", err)
	}
	t.Cleanup(func() { logger.Shutdown() })
	return logger
}

func newTestEngine(t testing.TB, cfg *EngineConfig) *Engine {
	t.Helper()
	e, err := New(cfg, testLogger(t), nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func mustKeywords(t testing.TB, keywords ...string) *policy.Pattern {
	t.Helper()
	p, err := policy.CompilePattern(policy.PatternSpec{Kind: policy.PatternKeywords, Keywords: keywords})
	if err != nil {
		t.Fatalf("CompilePattern() error = %v", err)
	}
	return p
}

// testPolicy builds a compiled policy covering all four stages.
func testPolicy(t testing.TB) *policy.Policy {
	t.Helper()
	return &policy.Policy{
		TenantID:    "tenant-1",
		Version:     1,
		CompanyName: "Halcyon Heating",
		EdgeCases: []policy.EdgeCase{
			{
				Rule: policy.EdgeCaseRule{
					Name:     "legal-threat",
					Kind:     policy.EdgeForceTransfer,
					Target:   "owner",
					Response: "I understand. Let me get the owner on the line.",
				},
				Pattern: mustKeywords(t, "lawsuit", "lawyer", "legal action"),
			},
			{
				Rule: policy.EdgeCaseRule{
					Name:         "likely-spam",
					Kind:         policy.EdgePoliteHangup,
					MinSpamScore: 0.9,
					FlagCaller:   true,
				},
				Pattern: mustKeywords(t, "extended warranty"),
			},
			{
				Rule: policy.EdgeCaseRule{
					Name:       "competitor-probe",
					Kind:       policy.EdgeFlagOnly,
					FlagCaller: true,
				},
				Pattern: mustKeywords(t, "your supplier"),
			},
		},
		Transfers: []policy.Transfer{
			{
				Rule: policy.TransferRule{
					Name:    "human-request",
					Target:  "front-desk",
					Message: "Of course, connecting you to the front desk now.",
				},
				Pattern: mustKeywords(t, "human", "real person", "operator"),
			},
		},
		Guardrails: policy.Guardrails{
			Flags:          policy.NewFlagSet([]string{policy.GuardrailNoPrices}),
			ApprovedPrices: map[string]struct{}{"$89": {}},
		},
		Behavior: policy.Behavior{
			Flags: policy.NewFlagSet([]string{policy.BehaviorAcknowledgeFirst}),
		},
	}
}

func TestEngine_Apply_EmptyPolicyPassesThrough(t *testing.T) {
	e := newTestEngine(t, nil)

	res := e.Apply(context.Background(), &policy.Policy{TenantID: "tenant-1"},
		"We open at 8am tomorrow.", "what time do you open", TurnInfo{TurnNumber: 2})

	if res.ResponseText != "We open at 8am tomorrow." {
		t.Errorf("ResponseText = %q, want passthrough", res.ResponseText)
	}
	if res.Action != ActionRespond {
		t.Errorf("Action = %q, want %q", res.Action, ActionRespond)
	}
	if len(res.Applied) != 0 {
		t.Errorf("Applied = %v, want empty", res.Applied)
	}
	if res.Degraded {
		t.Error("Degraded = true for a healthy evaluation")
	}
}

func TestEngine_Apply_NilPolicyPassesThrough(t *testing.T) {
	e := newTestEngine(t, nil)

	res := e.Apply(context.Background(), nil, "Hello.", "hi", TurnInfo{TurnNumber: 1})
	if res.ResponseText != "Hello." || res.Action != ActionRespond {
		t.Errorf("Apply(nil policy) = %q/%q, want passthrough", res.ResponseText, res.Action)
	}
}

func TestEngine_Apply_EdgeCaseForceTransfer(t *testing.T) {
	e := newTestEngine(t, nil)

	res := e.Apply(context.Background(), testPolicy(t),
		"Our diagnostic costs $250.", "I'm going to file a lawsuit", TurnInfo{TurnNumber: 3})

	if res.Action != ActionTransfer {
		t.Fatalf("Action = %q, want %q", res.Action, ActionTransfer)
	}
	if res.TransferTarget != "owner" {
		t.Errorf("TransferTarget = %q, want %q", res.TransferTarget, "owner")
	}
	if res.ResponseText != "I understand. Let me get the owner on the line." {
		t.Errorf("ResponseText = %q, want the authored response", res.ResponseText)
	}
	// The edge case short-circuits: the unapproved $250 in the proposed
	// text is irrelevant because the authored text replaced it.
	if strings.Contains(res.ResponseText, "$250") {
		t.Error("guardrails should not have been needed on authored text")
	}
	if len(res.Applied) != 1 || res.Applied[0] != "edge_case:legal-threat" {
		t.Errorf("Applied = %v, want [edge_case:legal-threat]", res.Applied)
	}
}

func TestEngine_Apply_EdgeCaseSpamGate(t *testing.T) {
	e := newTestEngine(t, nil)
	pol := testPolicy(t)

	// Below the spam score threshold the hangup rule must not fire.
	res := e.Apply(context.Background(), pol,
		"We don't need an extended warranty, thanks.", "calling about your extended warranty", TurnInfo{TurnNumber: 1, SpamScore: 0.4})
	if res.Action != ActionRespond {
		t.Errorf("Action = %q below spam threshold, want %q", res.Action, ActionRespond)
	}

	// At or above the threshold it fires and hangs up.
	res = e.Apply(context.Background(), pol,
		"ignored", "calling about your extended warranty", TurnInfo{TurnNumber: 1, SpamScore: 0.95})
	if res.Action != ActionHangup {
		t.Fatalf("Action = %q above spam threshold, want %q", res.Action, ActionHangup)
	}
	if res.ResponseText != defaultFarewellMessage {
		t.Errorf("ResponseText = %q, want default farewell", res.ResponseText)
	}
	if len(res.Flags) != 1 || res.Flags[0] != FlagCaller {
		t.Errorf("Flags = %v, want [%s]", res.Flags, FlagCaller)
	}
}

func TestEngine_Apply_FlagOnlyContinues(t *testing.T) {
	e := newTestEngine(t, nil)

	res := e.Apply(context.Background(), testPolicy(t),
		"We buy from several distributors.", "who is your supplier these days", TurnInfo{TurnNumber: 2})

	if res.Action != ActionRespond {
		t.Errorf("Action = %q, want %q (flag_only must not stop the turn)", res.Action, ActionRespond)
	}
	if len(res.Flags) != 1 || res.Flags[0] != FlagCaller {
		t.Errorf("Flags = %v, want [%s]", res.Flags, FlagCaller)
	}
	// Later stages still ran: the behavior prefix was applied.
	if !strings.HasPrefix(res.ResponseText, "Got it. ") {
		t.Errorf("ResponseText = %q, want behavior stage to run after flag_only", res.ResponseText)
	}
}

func TestEngine_Apply_TransferRule(t *testing.T) {
	e := newTestEngine(t, nil)

	res := e.Apply(context.Background(), testPolicy(t),
		"I can help with that here.", "no I want to talk to a real person", TurnInfo{TurnNumber: 4})

	if res.Action != ActionTransfer {
		t.Fatalf("Action = %q, want %q", res.Action, ActionTransfer)
	}
	if res.TransferTarget != "front-desk" {
		t.Errorf("TransferTarget = %q, want %q", res.TransferTarget, "front-desk")
	}
	if res.ResponseText != "Of course, connecting you to the front desk now." {
		t.Errorf("ResponseText = %q, want the authored announcement", res.ResponseText)
	}
}

func TestEngine_Apply_UnauthorizedTransferDowngraded(t *testing.T) {
	e := newTestEngine(t, nil)

	pol := &policy.Policy{
		TenantID: "tenant-1",
		Transfers: []policy.Transfer{{
			Rule: policy.TransferRule{
				Name:   "owner-request",
				Target: "owner-cell",
				Action: "transfer_owner",
			},
			Pattern: mustKeywords(t, "owner"),
		}},
		AllowedActions: map[string]struct{}{"transfer_front_desk": {}},
		Behavior:       policy.Behavior{Flags: policy.NewFlagSet([]string{policy.BehaviorAcknowledgeFirst})},
	}

	res := e.Apply(context.Background(), pol,
		"Sure, one sec.", "put the owner on the phone", TurnInfo{TurnNumber: 2})

	if res.Action != ActionRespond {
		t.Fatalf("Action = %q, want %q (transfer must not execute)", res.Action, ActionRespond)
	}
	if res.TransferTarget != "" {
		t.Errorf("TransferTarget = %q, want empty", res.TransferTarget)
	}
	if res.ResponseText != defaultHandoffMessage {
		t.Errorf("ResponseText = %q, want the generic hand-off line", res.ResponseText)
	}
	if len(res.Applied) != 1 || res.Applied[0] != "transfer_denied:owner-request" {
		t.Errorf("Applied = %v, want the denial recorded", res.Applied)
	}
}

func TestEngine_Apply_AuthorizedTransferExecutes(t *testing.T) {
	e := newTestEngine(t, nil)

	pol := &policy.Policy{
		TenantID: "tenant-1",
		Transfers: []policy.Transfer{{
			Rule: policy.TransferRule{
				Name:   "front-desk-request",
				Target: "front-desk",
				Action: "transfer_front_desk",
			},
			Pattern: mustKeywords(t, "front desk"),
		}},
		AllowedActions: map[string]struct{}{"transfer_front_desk": {}},
	}

	res := e.Apply(context.Background(), pol,
		"Sure.", "can the front desk help me", TurnInfo{TurnNumber: 2})

	if res.Action != ActionTransfer || res.TransferTarget != "front-desk" {
		t.Errorf("got %q/%q, want transfer to front-desk", res.Action, res.TransferTarget)
	}
}

func TestEngine_Apply_EdgeCaseBeatsTransfer(t *testing.T) {
	// "my lawyer" matches the edge case, "operator" matches a transfer
	// rule; the edge case stage runs first and wins.
	e := newTestEngine(t, nil)

	res := e.Apply(context.Background(), testPolicy(t),
		"ignored", "get me an operator or you'll hear from my lawyer", TurnInfo{TurnNumber: 2})

	if res.TransferTarget != "owner" {
		t.Errorf("TransferTarget = %q, want edge case target %q", res.TransferTarget, "owner")
	}
}

func TestEngine_Apply_GuardrailsAndBehavior(t *testing.T) {
	e := newTestEngine(t, nil)

	res := e.Apply(context.Background(), testPolicy(t),
		"It's $89 for a diagnostic, or sometimes $150 depending on the issue.",
		"how much is a visit", TurnInfo{TurnNumber: 2})

	want := "Got it. It's $89 for a diagnostic, or sometimes " + PricePlaceholder + " depending on the issue."
	if res.ResponseText != want {
		t.Errorf("ResponseText = %q, want %q", res.ResponseText, want)
	}
	if res.Action != ActionRespond {
		t.Errorf("Action = %q, want %q", res.Action, ActionRespond)
	}

	wantApplied := []string{"guardrail:" + policy.GuardrailNoPrices, "behavior:" + policy.BehaviorAcknowledgeFirst}
	if len(res.Applied) != len(wantApplied) {
		t.Fatalf("Applied = %v, want %v", res.Applied, wantApplied)
	}
	for i := range wantApplied {
		if res.Applied[i] != wantApplied[i] {
			t.Errorf("Applied[%d] = %q, want %q", i, res.Applied[i], wantApplied[i])
		}
	}
}

func TestEngine_Apply_RecoversFromPanic(t *testing.T) {
	e := newTestEngine(t, nil)

	// A nil compiled pattern is the kind of bug a bad deploy could ship.
	// The engine must degrade to the proposed text, not crash the call.
	broken := &policy.Policy{
		TenantID: "tenant-1",
		EdgeCases: []policy.EdgeCase{{
			Rule:    policy.EdgeCaseRule{Name: "broken", Kind: policy.EdgeOverrideResponse},
			Pattern: nil,
		}},
	}

	res := e.Apply(context.Background(), broken, "The proposed text.", "anything", TurnInfo{TurnNumber: 1})

	if !res.Degraded {
		t.Fatal("Degraded = false, want true after panic")
	}
	if res.ResponseText != "The proposed text." {
		t.Errorf("ResponseText = %q, want the proposed text unmodified", res.ResponseText)
	}
	if res.Action != ActionRespond {
		t.Errorf("Action = %q, want %q", res.Action, ActionRespond)
	}
}

func TestEngine_Apply_TraceEnabled(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig().WithTrace(true))

	res := e.Apply(context.Background(), testPolicy(t),
		"That's $42 even.", "how much", TurnInfo{TurnNumber: 2})

	if res.Trace == nil {
		t.Fatal("Trace = nil with tracing enabled")
	}
	if len(res.Trace.Steps) == 0 {
		t.Error("Trace has no steps")
	}
	if res.Trace.TotalTime <= 0 {
		t.Error("Trace.TotalTime not set")
	}
}

func TestEngine_Apply_BudgetOverrunIsAdvisory(t *testing.T) {
	// A one-nanosecond budget is always exceeded; the result must still
	// be a full evaluation, not a truncated one.
	e := newTestEngine(t, DefaultEngineConfig().WithBudget(1))

	res := e.Apply(context.Background(), testPolicy(t),
		"It costs $500.", "price check", TurnInfo{TurnNumber: 2})

	if res.Degraded {
		t.Error("budget overrun must not degrade the result")
	}
	if !strings.Contains(res.ResponseText, PricePlaceholder) {
		t.Errorf("ResponseText = %q, want guardrails to still run over budget", res.ResponseText)
	}
}

func TestEngineConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *EngineConfig
		wantErr bool
	}{
		{"default is valid", DefaultEngineConfig(), false},
		{"zero budget", DefaultEngineConfig().WithBudget(0), true},
		{"multiplier below one", DefaultEngineConfig().WithBudgetAlertMultiplier(0.5), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
