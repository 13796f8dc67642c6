package engine

import (
	"regexp"
	"strings"

	"halcyon-hq/switchboard/pkg/policy"
)

// Placeholders spoken in place of scrubbed content. None of them can
// re-trigger a guardrail, so scrubbing is idempotent.
const (
	PricePlaceholder      = "[contact us for pricing]"
	PhonePlaceholder      = "[our main office line]"
	URLPlaceholder        = "[our website]"
	RestrictedPlaceholder = "[a topic for our specialists]"
)

var (
	// priceRe finds dollar amounts in either "$89" or "89 dollars" form.
	priceRe = regexp.MustCompile(`(?i)\$\s?\d[\d,]*(?:\.\d{1,2})?|\b\d[\d,]*(?:\.\d{1,2})?\s?dollars?\b`)

	// phoneRe finds North American phone numbers in common spoken
	// formats.
	phoneRe = regexp.MustCompile(`(?:\+?1[\s.-])?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)

	// urlRe finds web addresses, with or without a scheme.
	urlRe = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+|\b[a-z0-9][a-z0-9-]*\.(?:com|net|org|io|co)\b(?:/\S*)?`)

	// apologyRe finds apology phrases plus any trailing separator, so
	// removing one does not strand its comma. Longer alternatives come
	// first because the matcher is leftmost-first.
	apologyRe = regexp.MustCompile(`(?i)\b(?:i'?m sorry|i am sorry|we'?re sorry|we are sorry|so sorry|i apologi[sz]e|we apologi[sz]e|my apologies|our apologies|apologies|sorry)\b[,.!?]*\s*`)

	// Cleanup for artifacts left by phrase removal.
	repeatedCommaRe = regexp.MustCompile(`,\s*,+`)
	multiSpaceRe    = regexp.MustCompile(`[ \t]{2,}`)
	danglingPunctRe = regexp.MustCompile(`\s+([,.!?;:])`)
)

// applyGuardrails runs the third stage, rewriting the generated text per
// the policy's guardrail flags. Each flag that changed the text is recorded
// in Applied.
func (e *Engine) applyGuardrails(pol *policy.Policy, st *evalState) {
	g := pol.Guardrails
	changed := false

	if g.Enabled(policy.GuardrailNoPrices) {
		if n := scrubPrices(g, st); n > 0 {
			st.apply("guardrail:" + policy.GuardrailNoPrices)
			changed = true
		}
	}
	if g.Enabled(policy.GuardrailNoPhoneNumbers) {
		if n := scrubPhones(g, st); n > 0 {
			st.apply("guardrail:" + policy.GuardrailNoPhoneNumbers)
			changed = true
		}
	}
	if g.Enabled(policy.GuardrailNoURLs) {
		if n := scrubURLs(st); n > 0 {
			st.apply("guardrail:" + policy.GuardrailNoURLs)
			changed = true
		}
	}
	if g.Enabled(policy.GuardrailNoMedicalLegal) {
		if n := scrubRestrictedTerms(g, st); n > 0 {
			st.apply("guardrail:" + policy.GuardrailNoMedicalLegal)
			changed = true
		}
	}
	if g.Enabled(policy.GuardrailSingleApology) {
		if n := scrubExtraApologies(st); n > 0 {
			st.apply("guardrail:" + policy.GuardrailSingleApology)
			changed = true
		}
	}

	if changed {
		st.text = tidy(st.text)
	}
}

// scrubPrices replaces dollar amounts that are not on the approved list.
func scrubPrices(g policy.Guardrails, st *evalState) int {
	replaced := 0
	st.text = priceRe.ReplaceAllStringFunc(st.text, func(m string) string {
		if g.PriceApproved(m) {
			return m
		}
		replaced++
		return PricePlaceholder
	})
	if replaced > 0 {
		st.addTrace("guardrail", policy.GuardrailNoPrices, "scrubbed unapproved prices")
	}
	return replaced
}

// scrubPhones replaces phone numbers that are not on the approved list.
func scrubPhones(g policy.Guardrails, st *evalState) int {
	replaced := 0
	st.text = phoneRe.ReplaceAllStringFunc(st.text, func(m string) string {
		if g.PhoneApproved(m) {
			return m
		}
		replaced++
		return PhonePlaceholder
	})
	if replaced > 0 {
		st.addTrace("guardrail", policy.GuardrailNoPhoneNumbers, "scrubbed phone numbers")
	}
	return replaced
}

// scrubURLs replaces every web address. Spoken URLs confuse callers, so
// there is no allow list.
func scrubURLs(st *evalState) int {
	replaced := 0
	st.text = urlRe.ReplaceAllStringFunc(st.text, func(string) string {
		replaced++
		return URLPlaceholder
	})
	if replaced > 0 {
		st.addTrace("guardrail", policy.GuardrailNoURLs, "scrubbed URLs")
	}
	return replaced
}

// scrubRestrictedTerms replaces the policy's restricted terms.
func scrubRestrictedTerms(g policy.Guardrails, st *evalState) int {
	replaced := 0
	for _, tm := range g.RestrictedTerms {
		if !tm.Found(st.text) {
			continue
		}
		st.text = tm.Replace(st.text, RestrictedPlaceholder)
		replaced++
		st.addTrace("guardrail", policy.GuardrailNoMedicalLegal, "scrubbed term "+tm.Term)
	}
	return replaced
}

// scrubExtraApologies keeps the first apology phrase and removes the rest.
// LLMs over-apologize under pressure, which reads as insincere over voice.
func scrubExtraApologies(st *evalState) int {
	seen := 0
	removed := 0
	st.text = apologyRe.ReplaceAllStringFunc(st.text, func(m string) string {
		seen++
		if seen == 1 {
			return m
		}
		removed++
		return ""
	})
	if removed > 0 {
		st.addTrace("guardrail", policy.GuardrailSingleApology, "removed repeated apologies")
	}
	return removed
}

// tidy cleans artifacts that phrase removal can leave behind: repeated
// commas, doubled spaces, and whitespace before punctuation.
func tidy(s string) string {
	s = repeatedCommaRe.ReplaceAllString(s, ",")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = danglingPunctRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
