package engine

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"halcyon-hq/switchboard/pkg/policy"
)

const ackPrefix = "Got it. "

// Openers the text may already begin with; ACKNOWLEDGE_FIRST does not
// stack another acknowledgment on top of them.
var ackOpeners = []string{
	"got it", "okay", "ok", "sure", "understood",
	"absolutely", "certainly", "thanks", "thank you",
}

// applyBehavior runs the last stage, adjusting the tone of whatever text
// survived the earlier stages. Order matters: the acknowledgment is
// prefixed first, the first-turn introduction wraps around it, the
// collected-field readback is appended, and contraction expansion runs
// over the finished text.
func (e *Engine) applyBehavior(pol *policy.Policy, info TurnInfo, st *evalState) {
	b := pol.Behavior
	if st.text == "" {
		return
	}

	if b.Enabled(policy.BehaviorAcknowledgeFirst) && !startsWithAck(st.text) {
		st.text = ackPrefix + st.text
		st.apply("behavior:" + policy.BehaviorAcknowledgeFirst)
		st.addTrace("behavior", policy.BehaviorAcknowledgeFirst, "prefixed acknowledgment")
	}

	if b.Enabled(policy.BehaviorIntroduceOnFirstTurn) &&
		info.TurnNumber == 1 &&
		pol.CompanyName != "" &&
		!strings.Contains(st.text, pol.CompanyName) {
		st.text = "Thanks for calling " + pol.CompanyName + ". " + st.text
		st.apply("behavior:" + policy.BehaviorIntroduceOnFirstTurn)
		st.addTrace("behavior", policy.BehaviorIntroduceOnFirstTurn, "prepended introduction")
	}

	if b.Enabled(policy.BehaviorConfirmCollected) && len(info.CollectedFields) > 0 {
		st.text = strings.TrimSpace(st.text) + " " + confirmationSuffix(info.CollectedFields)
		st.apply("behavior:" + policy.BehaviorConfirmCollected)
		st.addTrace("behavior", policy.BehaviorConfirmCollected, "appended field readback")
	}

	if b.Enabled(policy.BehaviorExpandContractions) {
		if expanded := contractionReplacer.Replace(st.text); expanded != st.text {
			st.text = expanded
			st.apply("behavior:" + policy.BehaviorExpandContractions)
			st.addTrace("behavior", policy.BehaviorExpandContractions, "expanded contractions")
		}
	}
}

func startsWithAck(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, a := range ackOpeners {
		if !strings.HasPrefix(lower, a) {
			continue
		}
		rest := lower[len(a):]
		if rest == "" {
			return true
		}
		r, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// confirmationSuffix builds the readback of collected fields in sorted key
// order so the same fields always produce the same sentence.
func confirmationSuffix(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		label := strings.ReplaceAll(k, "_", " ")
		parts = append(parts, label+" is "+fields[k])
	}
	return "So far I have: " + strings.Join(parts, ", ") + "."
}

// contractionPairs maps spoken contractions to their expansions. Pronoun
// contractions with ambiguous expansions (he's, she's) are deliberately
// absent.
var contractionPairs = []string{
	"won't", "will not",
	"can't", "cannot",
	"don't", "do not",
	"doesn't", "does not",
	"didn't", "did not",
	"isn't", "is not",
	"aren't", "are not",
	"wasn't", "was not",
	"weren't", "were not",
	"haven't", "have not",
	"hasn't", "has not",
	"hadn't", "had not",
	"wouldn't", "would not",
	"couldn't", "could not",
	"shouldn't", "should not",
	"i'm", "i am",
	"i've", "i have",
	"i'll", "i will",
	"i'd", "i would",
	"it's", "it is",
	"that's", "that is",
	"there's", "there is",
	"here's", "here is",
	"what's", "what is",
	"who's", "who is",
	"let's", "let us",
	"we're", "we are",
	"we've", "we have",
	"we'll", "we will",
	"you're", "you are",
	"you've", "you have",
	"you'll", "you will",
	"they're", "they are",
	"they've", "they have",
	"they'll", "they will",
}

var contractionReplacer = buildContractionReplacer()

func buildContractionReplacer() *strings.Replacer {
	pairs := make([]string, 0, len(contractionPairs)*2)
	for i := 0; i < len(contractionPairs); i += 2 {
		from, to := contractionPairs[i], contractionPairs[i+1]
		pairs = append(pairs, from, to)
		pairs = append(pairs, capitalizeFirst(from), capitalizeFirst(to))
	}
	return strings.NewReplacer(pairs...)
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
