package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern kinds.
const (
	// PatternKeywords matches when any of the listed keywords appears in
	// the utterance on a word boundary, case-insensitively.
	PatternKeywords = "keywords"

	// PatternRegex matches the utterance against a regular expression.
	// Matching is case-insensitive.
	PatternRegex = "regex"
)

// PatternSpec is the stored form of an utterance pattern.
type PatternSpec struct {
	// Kind is PatternKeywords or PatternRegex.
	Kind string `json:"kind"`

	// Keywords are the any-of terms for PatternKeywords.
	Keywords []string `json:"keywords,omitempty"`

	// Regex is the expression for PatternRegex. Compilation adds
	// case-insensitivity.
	Regex string `json:"regex,omitempty"`
}

// Pattern is a compiled utterance pattern.
type Pattern struct {
	// Spec is the stored form the pattern was compiled from.
	Spec PatternSpec

	re *regexp.Regexp
}

// CompilePattern compiles a stored pattern spec. Keyword patterns compile
// to a single alternation so evaluation cost does not grow with keyword
// count.
func CompilePattern(spec PatternSpec) (*Pattern, error) {
	switch spec.Kind {
	case PatternKeywords:
		terms := make([]string, 0, len(spec.Keywords))
		for _, kw := range spec.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			terms = append(terms, regexp.QuoteMeta(kw))
		}
		if len(terms) == 0 {
			return nil, fmt.Errorf("keywords pattern has no usable keywords")
		}
		re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(terms, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("compile keywords pattern: %w", err)
		}
		return &Pattern{Spec: spec, re: re}, nil

	case PatternRegex:
		if strings.TrimSpace(spec.Regex) == "" {
			return nil, fmt.Errorf("regex pattern is empty")
		}
		re, err := regexp.Compile(`(?i:` + spec.Regex + `)`)
		if err != nil {
			return nil, fmt.Errorf("compile regex pattern: %w", err)
		}
		return &Pattern{Spec: spec, re: re}, nil

	default:
		return nil, fmt.Errorf("unknown pattern kind %q", spec.Kind)
	}
}

// Matches reports whether the utterance satisfies the pattern.
func (p *Pattern) Matches(utterance string) bool {
	return p.re.MatchString(utterance)
}

// String describes the pattern for logs.
func (p *Pattern) String() string {
	if p.Spec.Kind == PatternKeywords {
		return fmt.Sprintf("keywords(%s)", strings.Join(p.Spec.Keywords, ", "))
	}
	return fmt.Sprintf("regex(%s)", p.Spec.Regex)
}

// TermMatcher scrubs one restricted term from response text.
type TermMatcher struct {
	// Term is the raw restricted term, kept for logs.
	Term string

	re *regexp.Regexp
}

// CompileTerm builds a matcher that finds the term on word boundaries,
// case-insensitively.
func CompileTerm(term string) (TermMatcher, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return TermMatcher{}, fmt.Errorf("restricted term is empty")
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
	if err != nil {
		return TermMatcher{}, fmt.Errorf("compile restricted term %q: %w", term, err)
	}
	return TermMatcher{Term: term, re: re}, nil
}

// Found reports whether the term occurs in the text.
func (t TermMatcher) Found(text string) bool {
	return t.re.MatchString(text)
}

// Replace substitutes every occurrence of the term with the placeholder.
func (t TermMatcher) Replace(text, placeholder string) string {
	return t.re.ReplaceAllString(text, placeholder)
}

// CanonicalPrice reduces a dollar amount to a comparable form: spaces and
// thousands separators removed, a trailing ".00" dropped, and the "N
// dollars" spelling folded into "$N". "$ 1,299.00" and "1299 dollars" both
// canonicalize to "$1299".
func CanonicalPrice(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "", ",", "").Replace(s)
	s = strings.TrimSuffix(s, "dollars")
	s = strings.TrimSuffix(s, "dollar")
	if !strings.HasPrefix(s, "$") {
		s = "$" + s
	}
	s = strings.TrimSuffix(s, ".00")
	return s
}

// CanonicalPhone reduces a phone number to its digits, dropping a leading
// country code 1. "(555) 123-4567" and "1-555-123-4567" both canonicalize
// to "5551234567".
func CanonicalPhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}
