// Package query turns a natural-language question into a lexical search profile.
package query

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	numberPattern  = regexp.MustCompile(`\$?\d+(?:,\d+)*(?:\.\d+)?`)
	questionPrefix = regexp.MustCompile(`^(what|how|why|when|where|who|which)\s+`)
	nonWordPattern = regexp.MustCompile(`[^\w\s]`)
	stopwords      = map[string]struct{}{
		"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
		"what": {}, "how": {}, "why": {}, "when": {}, "where": {}, "who": {},
	}
)

// Profile is the lexical view of a question used for scoring.
type Profile struct {
	Original      string
	OriginalLower string
	Words         []string
	Numbers       []string
	Variations    []string
}

// Empty reports whether the profile carries nothing to match on.
func (p Profile) Empty() bool {
	return p.OriginalLower == ""
}

// Process builds a Profile from a raw question.
func Process(q string) Profile {
	original := strings.TrimSpace(q)
	lower := strings.ToLower(original)
	if lower == "" {
		return Profile{}
	}
	return Profile{
		Original:      original,
		OriginalLower: lower,
		Words:         Words(lower),
		Numbers:       ExtractNumbers(lower),
		Variations:    variations(lower),
	}
}

// Words splits lowercased text on whitespace, trims surrounding punctuation
// and drops single-character tokens and stopwords.
func Words(lower string) []string {
	var words []string
	for _, tok := range strings.Fields(lower) {
		tok = strings.TrimFunc(tok, unicode.IsPunct)
		if utf8.RuneCountInString(tok) <= 1 || IsStopword(tok) {
			continue
		}
		words = append(words, tok)
	}
	return words
}

// IsStopword reports whether a lowercased token carries no search signal.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// ExtractNumbers returns currency and number-like substrings in order of appearance.
func ExtractNumbers(text string) []string {
	return numberPattern.FindAllString(text, -1)
}

func variations(lower string) []string {
	out := []string{lower}
	if loc := questionPrefix.FindStringIndex(lower); loc != nil {
		stripped := strings.TrimSpace(strings.TrimRight(lower[loc[1]:], "?"))
		if stripped != "" {
			out = append(out, stripped)
		}
	}
	if strings.Contains(lower, " is ") {
		for _, half := range strings.SplitN(lower, " is ", 2) {
			if half = strings.TrimSpace(half); half != "" {
				out = append(out, half)
			}
		}
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Broaden strips punctuation, lowercases and keeps only words longer than
// three characters. It is the second-chance query used when a search finds
// nothing.
func Broaden(q string) string {
	cleaned := strings.ToLower(nonWordPattern.ReplaceAllString(q, ""))
	var kept []string
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) > 3 {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
