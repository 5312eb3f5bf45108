// Package sanitize provides text normalization for inbound and operator-supplied text.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// htmlTagRegex matches HTML tags
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
	spaceRegex   = regexp.MustCompile(`\s+`)
)

// StripHTML removes HTML tags from a string. Helpdesk tools often post
// answers as HTML fragments; the channel only carries plain text.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	result = strings.ReplaceAll(result, "&nbsp;", " ")
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text strips control characters and trims surrounding whitespace while
// keeping line breaks the user typed.
func Text(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(cleaned)
}

// Question normalizes a question for comparison: lower case, collapsed
// whitespace, trailing punctuation removed.
func Question(s string) string {
	normalized := strings.ToLower(spaceRegex.ReplaceAllString(strings.TrimSpace(s), " "))
	return strings.TrimRight(normalized, "?!.¿¡ ")
}
