package triage

import (
	"strings"
	"unicode"
)

// NormalizeText lowercases the input, replaces every non-alphanumeric rune
// with a space, and collapses whitespace runs into single spaces. Matching
// operates on normalized text only, so "Bill!" and "bill" compare equal.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// NormalizeKeyword applies the utterance normalization to a rule keyword.
// Compilation drops keywords that normalize to the empty string.
func NormalizeKeyword(s string) string {
	return NormalizeText(s)
}

// ContainsPhrase reports whether the normalized phrase occurs in the
// normalized text on word boundaries: "bill" matches "my bill is wrong" but
// not "the billboard fell". Both arguments must already be normalized.
func ContainsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// Stem-matching bounds. A shared leading stem needs at least minStemLength
// bytes to count, and a token may extend past the keyword by at most
// maxStemOverhang bytes so an inflected form matches ("bills",
// "appointments") while an unrelated compound does not ("billboard").
const (
	minStemLength   = 4
	maxStemOverhang = 3
)

// ContainsKeyword reports whether the normalized keyword matches the
// normalized text. Multi-word keywords match as whole phrases only. A
// single-word keyword additionally matches any token sharing its leading
// stem, in either direction: keyword "billing" matches the token "bill",
// keyword "appointment" matches the token "appointments".
func ContainsKeyword(text, keyword string) bool {
	if ContainsPhrase(text, keyword) {
		return true
	}
	if keyword == "" || strings.ContainsRune(keyword, ' ') {
		return false
	}
	for _, token := range strings.Fields(text) {
		if stemMatch(token, keyword) {
			return true
		}
	}
	return false
}

// stemMatch compares one utterance token against a single-word keyword.
// A whole token that opens the keyword always matches ("bill" against
// "billing"); otherwise both sides may extend past the shared stem by at
// most maxStemOverhang, which lets inflections through ("bills", "billing
// statement") while rejecting compounds ("billboard").
func stemMatch(token, keyword string) bool {
	stem := commonPrefixLen(token, keyword)
	if stem < minStemLength {
		return false
	}
	if len(token) == stem {
		return true
	}
	return len(token)-stem <= maxStemOverhang && len(keyword)-stem <= maxStemOverhang
}

func commonPrefixLen(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
