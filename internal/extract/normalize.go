package extract

import (
	"regexp"
	"strings"
)

var (
	manyNewlines = regexp.MustCompile(`\n{4,}`)
	manySpaces   = regexp.MustCompile(` {3,}`)
)

// Normalize keeps printable ASCII plus newline, carriage return and tab,
// turns tabs into two spaces, caps newline runs at three and space runs at
// two, and trims the result.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\t':
			b.WriteString("  ")
		case r == '\n' || r == '\r':
			b.WriteRune(r)
		case r >= 0x20 && r <= 0x7e:
			b.WriteRune(r)
		}
	}
	out := manyNewlines.ReplaceAllString(b.String(), "\n\n\n")
	out = manySpaces.ReplaceAllString(out, "  ")
	return strings.TrimSpace(out)
}

// cleanMetadata strips NUL, control characters and the U+FFFD replacement
// character from a metadata string.
func cleanMetadata(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == 0 || r == '\uFFFD' || r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			return -1
		}
		return r
	}, s))
}
