// Package plan turns an analyzed query into a retrieval strategy: which
// retrievers run, with what budgets, and whether retrieval is skipped or
// decomposed. Planning is a pure function of the query; all I/O stays in
// the orchestrator.
package plan

import (
	"strings"
	"unicode"

	"github.com/ragweaver/ragweaver/internal/rag"
)

// Base budgets before intent adjustments.
const (
	defaultTopK           = 20
	defaultVectorNResults = 10
	defaultMemoryLimit    = 20
	defaultMemoryConcepts = 3
	defaultKeywordLimit   = 8
	defaultGraphLimit     = 5
	defaultCodeLimit      = 8
	defaultHalfLifeDays   = 3

	// objectiveTopKCap bounds top_k for pointed factual questions.
	objectiveTopKCap = 10

	// longQueryChars marks open-ended queries that deserve wider budgets.
	longQueryChars = 120

	// planningQueryChars marks queries long enough to decompose.
	planningQueryChars = 160

	// definitionalMaxWords is the word cap for the skip-retrieval path.
	definitionalMaxWords = 6

	// expandBy is added to top_k and memory_limit for long queries.
	expandBy = 10
)

// objectiveMarkers signal a pointed question with a single factual answer.
// Narrow, high-precision retrieval beats breadth for these.
var objectiveMarkers = []string{
	"where", "which file", "what line", "parameter", "flag",
	"command", "filename", "path",
}

// planningMarkers signal multi-part questions worth decomposing.
var planningMarkers = []string{
	"pipeline", "flow", "steps", "decompose", "describe", "entire", "end-to-end",
}

// definitionalPrefixes open generic definition questions.
var definitionalPrefixes = []string{"what is ", "what's ", "define "}

// Limits are operator overrides applied after the planning rules. Zero
// fields leave the planned values untouched. Callers populate them only
// from explicit flags or environment variables, never from defaults, so
// the intent-specific budgets stay in effect for ordinary queries.
type Limits struct {
	TopK         int
	KeywordLimit int
	GraphLimit   int
	CodeLimit    int
	HalfLifeDays int
}

// Plan derives the retrieval strategy for an analyzed query.
func Plan(q rag.Query, limits Limits) rag.Strategy {
	intent := q.Analysis.Intent
	if !intent.IsValid() {
		intent = rag.IntentGeneral
	}
	lower := strings.ToLower(q.Text)

	// Base defaults.
	s := rag.Strategy{
		Mode:           rag.ModeHybrid,
		UseVector:      true,
		UseMemory:      true,
		UseKeywords:    true,
		UseCode:        intent == rag.IntentCode,
		UseGraph:       intent == rag.IntentStatus || intent == rag.IntentExplain || intent == rag.IntentGeneral,
		UseRecent:      q.Analysis.Temporal.Present,
		TopK:           defaultTopK,
		VectorNResults: defaultVectorNResults,
		MemoryLimit:    defaultMemoryLimit,
		MemoryConcepts: defaultMemoryConcepts,
		KeywordLimit:   defaultKeywordLimit,
		GraphLimit:     defaultGraphLimit,
		CodeLimit:      defaultCodeLimit,
		HalfLifeDays:   defaultHalfLifeDays,
	}

	// Intent adjustments.
	switch intent {
	case rag.IntentCode:
		s.TopK = 12
		s.VectorNResults = 15
		s.CodeLimit = 10
	case rag.IntentStatus:
		s.TopK = 8
		s.MemoryLimit = 10
	case rag.IntentConfig:
		s.TopK = 10
		s.VectorNResults = 8
	case rag.IntentExplain:
		s.TopK = 30
		s.MemoryLimit = 30
		s.VectorNResults = 15
	}

	// Pointed factual questions narrow the net; long open-ended ones widen it.
	if containsAny(lower, objectiveMarkers) {
		if s.TopK > objectiveTopKCap {
			s.TopK = objectiveTopKCap
		}
		s.UseGraph = false
	}
	if len(q.Text) > longQueryChars {
		s.TopK += expandBy
		s.MemoryLimit += expandBy
	}

	// Generic definitional questions skip retrieval entirely.
	if isGenericDefinitional(q.Text, lower) {
		s.Mode = rag.ModeNone
	}

	// Multi-part questions get decomposed before retrieval.
	if len(q.Text) > planningQueryChars || containsAny(lower, planningMarkers) {
		s.UsePlanning = true
	}

	// Operator overrides win over every rule.
	if limits.TopK > 0 {
		s.TopK = limits.TopK
	}
	if limits.KeywordLimit > 0 {
		s.KeywordLimit = limits.KeywordLimit
	}
	if limits.GraphLimit > 0 {
		s.GraphLimit = limits.GraphLimit
	}
	if limits.CodeLimit > 0 {
		s.CodeLimit = limits.CodeLimit
	}
	if limits.HalfLifeDays > 0 {
		s.HalfLifeDays = limits.HalfLifeDays
	}

	return s
}

func containsAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// isGenericDefinitional reports whether the query is a short "what is X" /
// "define X" question that mentions nothing project-specific, so answering
// from model knowledge alone is better than dredging the index.
func isGenericDefinitional(text, lower string) bool {
	matched := false
	for _, prefix := range definitionalPrefixes {
		if strings.HasPrefix(lower, prefix) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	words := strings.Fields(text)
	if len(words) > definitionalMaxWords {
		return false
	}
	for _, w := range words {
		if isProjectToken(w) {
			return false
		}
	}
	return true
}

// isProjectToken reports whether a word looks like an identifier, a path,
// or a filename rather than plain English.
func isProjectToken(word string) bool {
	word = strings.Trim(word, ".,;:!?\"'()")
	if word == "" {
		return false
	}
	if strings.ContainsAny(word, "_/") {
		return true
	}
	// Filename extension: a dot followed by letters.
	if i := strings.LastIndexByte(word, '.'); i > 0 && i < len(word)-1 {
		ext := word[i+1:]
		alpha := true
		for _, r := range ext {
			if !unicode.IsLetter(r) {
				alpha = false
				break
			}
		}
		if alpha {
			return true
		}
	}
	// camelCase: a lowercase letter followed by an uppercase one.
	runes := []rune(word)
	for i := 1; i < len(runes); i++ {
		if unicode.IsLower(runes[i-1]) && unicode.IsUpper(runes[i]) {
			return true
		}
	}
	return false
}
