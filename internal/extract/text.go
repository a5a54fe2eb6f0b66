package extract

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict strips any markup that leaks into harvested text. Live pages are
// untrusted input: text content pulled over the wire from a browser
// backend can carry embedded tags.
var strict = bluemonday.StrictPolicy()

// CleanText collapses whitespace and strips residual markup from raw text
// content. Entities introduced by sanitisation are unescaped so the
// snapshot carries plain text.
func CleanText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Truncate caps s at n characters. Caps are character counts, not byte
// counts, so multibyte text keeps its full allowance.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
