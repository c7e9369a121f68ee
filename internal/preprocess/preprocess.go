// Package preprocess derives coarse keywords, numbers and section
// boundaries from extracted text.
package preprocess

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"venture-advisor/internal/query"
	"venture-advisor/internal/store"
)

const (
	DefaultMaxKeywords = 20
	maxNumbers         = 50
	maxHeadingLength   = 80
	introTitle         = "Introduction"
)

var (
	wordPattern     = regexp.MustCompile(`[a-z0-9]+`)
	pageMarkerLine  = regexp.MustCompile(`^--- Page \d+ ---$`)
	markdownHeading = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	numberedHeading = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+[A-Z]`)

	// common words that say nothing about a document's subject
	fillerWords = map[string]struct{}{
		"about": {}, "also": {}, "been": {}, "both": {}, "does": {}, "each": {}, "from": {},
		"have": {}, "into": {}, "just": {}, "more": {}, "most": {}, "only": {}, "other": {},
		"over": {}, "same": {}, "some": {}, "such": {}, "than": {}, "that": {}, "their": {},
		"them": {}, "then": {}, "there": {}, "these": {}, "they": {}, "this": {}, "those": {},
		"very": {}, "were": {}, "which": {}, "while": {}, "will": {}, "with": {}, "would": {},
		"your": {}, "could": {}, "should": {}, "after": {}, "before": {}, "because": {},
	}
)

type Preprocessor struct {
	maxKeywords int
}

func New(maxKeywords int) *Preprocessor {
	if maxKeywords <= 0 {
		maxKeywords = DefaultMaxKeywords
	}
	return &Preprocessor{maxKeywords: maxKeywords}
}

// Process returns keywords, numbers and sections of text. DocumentInfo is
// left for the caller to fill.
func (p *Preprocessor) Process(text string) store.ProcessedContent {
	return store.ProcessedContent{
		Keywords: p.keywords(text),
		Numbers:  numbers(text),
		Sections: sections(text),
	}
}

// keywords ranks words longer than three characters by frequency, breaking
// ties by first appearance.
func (p *Preprocessor) keywords(text string) []string {
	counts := make(map[string]int)
	var order []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(w) <= 3 || query.IsStopword(w) || isFiller(w) || isDigits(w) {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > p.maxKeywords {
		order = order[:p.maxKeywords]
	}
	return order
}

func isFiller(w string) bool {
	_, ok := fillerWords[w]
	return ok
}

func isDigits(w string) bool {
	for _, r := range w {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func numbers(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, n := range query.ExtractNumbers(text) {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
		if len(out) == maxNumbers {
			break
		}
	}
	return out
}

// sections cuts text at heading-like lines. Text before the first heading
// becomes an "Introduction" section; page markers are dropped.
func sections(text string) []store.Section {
	var (
		out     []store.Section
		title   = introTitle
		content []string
	)
	flush := func() {
		body := strings.TrimSpace(strings.Join(content, "\n"))
		if body != "" || title != introTitle {
			out = append(out, store.Section{Title: title, Content: body})
		}
		content = content[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if pageMarkerLine.MatchString(trimmed) {
			continue
		}
		if h, ok := heading(trimmed); ok {
			flush()
			title = h
			continue
		}
		content = append(content, line)
	}
	flush()
	return out
}

func heading(line string) (string, bool) {
	n := utf8.RuneCountInString(line)
	if n < 3 || n > maxHeadingLength {
		return "", false
	}
	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if numberedHeading.MatchString(line) && !strings.HasSuffix(line, ".") {
		return line, true
	}
	if strings.HasSuffix(line, ":") && n <= 60 && !strings.Contains(line, ". ") {
		return strings.TrimSuffix(line, ":"), true
	}
	if isUpperHeading(line) {
		return line, true
	}
	return "", false
}

func isUpperHeading(line string) bool {
	letters := 0
	for _, r := range line {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= 'A' && r <= 'Z':
			letters++
		}
	}
	return letters >= 3
}
