package store

import (
	"regexp"
	"strings"
	"unicode"
)

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// TokenizeCode splits text into lowercase search tokens with identifier
// awareness: camelCase, PascalCase and snake_case break into their parts,
// and single-character fragments are dropped.
func TokenizeCode(text string) []string {
	var tokens []string
	for _, word := range wordPattern.FindAllString(text, -1) {
		for _, part := range SplitIdentifier(word) {
			lower := strings.ToLower(part)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// SplitIdentifier breaks a single identifier into its words, handling
// snake_case first and then camelCase within each segment.
func SplitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var parts []string
		for _, segment := range strings.Split(token, "_") {
			if segment != "" {
				parts = append(parts, splitCamel(segment)...)
			}
		}
		return parts
	}
	return splitCamel(token)
}

// splitCamel splits camelCase and PascalCase, keeping acronym runs
// together: "parseHTTPRequest" becomes ["parse", "HTTP", "Request"].
func splitCamel(s string) []string {
	if s == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if current.Len() > 0 {
					parts = append(parts, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// FilterStopWords drops tokens present in the stop word set.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			kept = append(kept, token)
		}
	}
	return kept
}

// BuildStopWordMap converts a stop word list into a lookup set.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
