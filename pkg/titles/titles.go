// Package titles provides normalization and matching helpers for book titles
// and target keys. Normalized forms are what the orchestrator deduplicates
// and keys failure records on, so they must be stable across sources that
// spell the same book differently.
package titles

import (
	"fmt"
	"strings"
	"unicode"
)

// Articles are leading articles stripped during normalization so that
// "The Fellowship of the Ring" and "Fellowship of the Ring" compare equal.
var Articles = []string{
	"the",
	"a",
	"an",
}

// Normalize lowercases, strips a leading article, collapses whitespace, and
// removes punctuation. The result is only used for comparison and keying,
// never shown to users.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r), r == '-', r == ':', r == '/':
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	out := strings.TrimSpace(b.String())

	for _, article := range Articles {
		prefix := article + " "
		if strings.HasPrefix(out, prefix) && len(out) > len(prefix) {
			out = out[len(prefix):]
			break
		}
	}

	return out
}

// Key builds the stable target key used to deduplicate work items and to
// accumulate failure records across a target's whole lifetime. An external
// identifier wins when present since it is more stable than any title form.
func Key(title, author string, seriesNumber *float64, identifier string) string {
	if identifier != "" {
		return "id:" + strings.ToLower(strings.TrimSpace(identifier))
	}
	key := Normalize(title) + "|" + Normalize(author)
	if seriesNumber != nil {
		key += fmt.Sprintf("|%g", *seriesNumber)
	}
	return key
}

// Match reports whether two titles refer to the same book. Subtitles after a
// colon are ignored, so "Dune" matches "Dune: Deluxe Edition" but not
// "Dune Messiah".
func Match(a, b string) bool {
	na := Normalize(stripSubtitle(a))
	nb := Normalize(stripSubtitle(b))
	if na == "" || nb == "" {
		return false
	}
	return na == nb
}

func stripSubtitle(s string) string {
	if i := strings.Index(s, ":"); i > 0 {
		return s[:i]
	}
	return s
}
