package rag

import (
	"strings"
	"unicode"
)

// NormalizeQuery canonicalizes a query for cache keying and memoization:
// lowercase, non-alphanumeric runes collapsed to spaces, whitespace folded
// to single spaces, trimmed. Idempotent.
func NormalizeQuery(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
