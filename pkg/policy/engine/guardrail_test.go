package engine

import (
	"context"
	"testing"

	"halcyon-hq/switchboard/pkg/policy"
)

// guardrailPolicy builds a policy with only guardrails enabled.
func guardrailPolicy(t *testing.T, flags []string, mutate func(*policy.Guardrails)) *policy.Policy {
	t.Helper()
	g := policy.Guardrails{
		Flags:                policy.NewFlagSet(flags),
		ApprovedPrices:       map[string]struct{}{},
		ApprovedPhoneNumbers: map[string]struct{}{},
	}
	if mutate != nil {
		mutate(&g)
	}
	return &policy.Policy{TenantID: "tenant-1", Guardrails: g}
}

func applyGuardrailsOnly(t *testing.T, pol *policy.Policy, proposed string) *Result {
	t.Helper()
	e := newTestEngine(t, nil)
	return e.Apply(context.Background(), pol, proposed, "utterance", TurnInfo{TurnNumber: 2})
}

func TestGuardrail_NoPrices(t *testing.T) {
	tests := []struct {
		name     string
		approved []string
		proposed string
		want     string
	}{
		{
			name:     "unapproved price scrubbed",
			proposed: "A new unit runs about $4,500 installed.",
			want:     "A new unit runs about " + PricePlaceholder + " installed.",
		},
		{
			name:     "approved price kept, unapproved scrubbed",
			approved: []string{"$89"},
			proposed: "It's $89 for a diagnostic, or sometimes $150 depending on the issue.",
			want:     "It's $89 for a diagnostic, or sometimes " + PricePlaceholder + " depending on the issue.",
		},
		{
			name:     "approval ignores formatting",
			approved: []string{"$89"},
			proposed: "The visit is $ 89.00 flat.",
			want:     "The visit is $ 89.00 flat.",
		},
		{
			name:     "spelled out dollars scrubbed",
			proposed: "Roughly 200 dollars for parts.",
			want:     "Roughly " + PricePlaceholder + " for parts.",
		},
		{
			name:     "spelled out dollars can be approved",
			approved: []string{"$200"},
			proposed: "Roughly 200 dollars for parts.",
			want:     "Roughly 200 dollars for parts.",
		},
		{
			name:     "no prices leaves text alone",
			proposed: "We can come by tomorrow morning.",
			want:     "We can come by tomorrow morning.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pol := guardrailPolicy(t, []string{policy.GuardrailNoPrices}, func(g *policy.Guardrails) {
				for _, p := range tt.approved {
					g.ApprovedPrices[policy.CanonicalPrice(p)] = struct{}{}
				}
			})
			res := applyGuardrailsOnly(t, pol, tt.proposed)
			if res.ResponseText != tt.want {
				t.Errorf("ResponseText = %q, want %q", res.ResponseText, tt.want)
			}
		})
	}
}

func TestGuardrail_NoPhoneNumbers(t *testing.T) {
	pol := guardrailPolicy(t, []string{policy.GuardrailNoPhoneNumbers}, func(g *policy.Guardrails) {
		g.ApprovedPhoneNumbers[policy.CanonicalPhone("(555) 123-4567")] = struct{}{}
	})

	res := applyGuardrailsOnly(t, pol,
		"Call us at (555) 123-4567 or try 555-987-6543 after hours.")

	want := "Call us at (555) 123-4567 or try " + PhonePlaceholder + " after hours."
	if res.ResponseText != want {
		t.Errorf("ResponseText = %q, want %q", res.ResponseText, want)
	}
}

func TestGuardrail_NoURLs(t *testing.T) {
	pol := guardrailPolicy(t, []string{policy.GuardrailNoURLs}, nil)

	tests := []struct {
		proposed string
		want     string
	}{
		{
			"Book online at www.halcyonheating.com anytime.",
			"Book online at " + URLPlaceholder + " anytime.",
		},
		{
			"See https://example.com/specials for details.",
			"See " + URLPlaceholder + " for details.",
		},
		{
			"Our site is halcyonheating.com if you prefer.",
			"Our site is " + URLPlaceholder + " if you prefer.",
		},
	}
	for _, tt := range tests {
		res := applyGuardrailsOnly(t, pol, tt.proposed)
		if res.ResponseText != tt.want {
			t.Errorf("ResponseText = %q, want %q", res.ResponseText, tt.want)
		}
	}
}

func TestGuardrail_SingleApology(t *testing.T) {
	pol := guardrailPolicy(t, []string{policy.GuardrailSingleApology}, nil)

	tests := []struct {
		name     string
		proposed string
		want     string
	}{
		{
			name:     "second apology removed",
			proposed: "I'm sorry about that. I'm sorry, it happens sometimes.",
			want:     "I'm sorry about that. it happens sometimes.",
		},
		{
			name:     "single apology untouched",
			proposed: "I'm sorry about the wait.",
			want:     "I'm sorry about the wait.",
		},
		{
			name:     "three apologies reduced to one",
			proposed: "Sorry, so sorry, we apologize for the mixup.",
			want:     "Sorry, for the mixup.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := applyGuardrailsOnly(t, pol, tt.proposed)
			if res.ResponseText != tt.want {
				t.Errorf("ResponseText = %q, want %q", res.ResponseText, tt.want)
			}
		})
	}
}

func TestGuardrail_NoMedicalLegal(t *testing.T) {
	pol := guardrailPolicy(t, []string{policy.GuardrailNoMedicalLegal}, func(g *policy.Guardrails) {
		for _, term := range []string{"asbestos", "mold litigation"} {
			tm, err := policy.CompileTerm(term)
			if err != nil {
				t.Fatalf("CompileTerm(%q) error = %v", term, err)
			}
			g.RestrictedTerms = append(g.RestrictedTerms, tm)
		}
	})

	res := applyGuardrailsOnly(t, pol,
		"We can't advise on asbestos or mold litigation over the phone.")

	want := "We can't advise on " + RestrictedPlaceholder + " or " + RestrictedPlaceholder + " over the phone."
	if res.ResponseText != want {
		t.Errorf("ResponseText = %q, want %q", res.ResponseText, want)
	}
}

func TestGuardrail_ScrubbingIsIdempotent(t *testing.T) {
	pol := guardrailPolicy(t, []string{
		policy.GuardrailNoPrices,
		policy.GuardrailNoPhoneNumbers,
		policy.GuardrailNoURLs,
	}, nil)
	e := newTestEngine(t, nil)

	proposed := "It's $300, call 555-123-4567 or visit www.example.com."
	first := e.Apply(context.Background(), pol, proposed, "u", TurnInfo{TurnNumber: 2})
	second := e.Apply(context.Background(), pol, first.ResponseText, "u", TurnInfo{TurnNumber: 2})

	if first.ResponseText != second.ResponseText {
		t.Errorf("second pass changed text:\nfirst:  %q\nsecond: %q", first.ResponseText, second.ResponseText)
	}
	if len(second.Applied) != 0 {
		t.Errorf("second pass applied %v, want nothing (placeholders must not re-trigger)", second.Applied)
	}
}

func TestGuardrail_DisabledFlagsDoNothing(t *testing.T) {
	pol := guardrailPolicy(t, nil, nil)

	proposed := "It's $300, call 555-123-4567, see www.example.com, sorry sorry."
	res := applyGuardrailsOnly(t, pol, proposed)
	if res.ResponseText != proposed {
		t.Errorf("ResponseText = %q, want untouched when no flags enabled", res.ResponseText)
	}
}
