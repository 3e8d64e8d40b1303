package ingest

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	multiSpaceRe   = regexp.MustCompile(` +`)
	multiNewlineRe = regexp.MustCompile(`\n{4,}`)
	brokenHyphenRe = regexp.MustCompile(`(\w+)-\s+(\w+)`)
)

// Clean normalizes OCR artifacts: collapsed whitespace, stripped
// non-printables, rejoined hyphenated line breaks.
func Clean(text string) string {
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n\n")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			b.WriteRune(r)
		}
	}
	text = b.String()

	text = brokenHyphenRe.ReplaceAllString(text, "$1-$2")
	return strings.TrimSpace(text)
}
