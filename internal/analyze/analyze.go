// Package analyze derives the retrieval view of a raw question: key
// concepts, query expansions, temporal cues, and intent. Concepts and
// expansions come from the fast model tier; temporal and intent are keyword
// tables. The four extractors run concurrently and each degrades to a safe
// default on failure, so analysis never blocks a query.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ragweaver/ragweaver/internal/llm"
	"github.com/ragweaver/ragweaver/internal/rag"
)

const (
	// maxConcepts bounds the concepts parsed from the model response.
	maxConcepts = 5

	// maxExpansions bounds alternate phrasings.
	maxExpansions = 3

	// cacheSize is the LRU entry count for memoized analyses.
	cacheSize = 256

	// extractorMaxTokens bounds each fast-model completion.
	extractorMaxTokens = 300
)

// conceptsPrompt asks the fast model for retrieval-ready key phrases.
const conceptsPrompt = `Extract the key concepts from this question for a document search.
Return at most 5 concepts, one per line. Short noun phrases only, no bullets, no numbering, no commentary.

Question: %s

Concepts:`

// expansionsPrompt asks for alternate phrasings of the same question.
const expansionsPrompt = `Rewrite this question 3 different ways to improve recall from a document index.
One rewrite per line, no bullets, no numbering, no commentary.

Question: %s

Rewrites:`

// listMarker strips leading bullets and numbering from model output lines.
var listMarker = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)])\s*`)

// Analyzer turns raw query text into a rag.Analysis. Safe for concurrent
// use; completed analyses are memoized in an LRU keyed by the normalized
// query so repeated questions skip the model calls.
type Analyzer struct {
	fast   llm.Provider
	cache  *lru.Cache[string, rag.Analysis]
	logger *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New builds an Analyzer. fast may be nil, in which case concept and
// expansion extraction are skipped and only the keyword tables run.
func New(fast llm.Provider, opts ...Option) *Analyzer {
	cache, _ := lru.New[string, rag.Analysis](cacheSize)
	a := &Analyzer{
		fast:   fast,
		cache:  cache,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the four extractors concurrently and assembles the analysis.
// Extractor failures are logged and replaced with defaults; only caller
// cancellation surfaces as an error.
func (a *Analyzer) Analyze(ctx context.Context, text string) (rag.Analysis, error) {
	text = strings.TrimSpace(text)
	key := normalizeQuery(text)
	if key == "" {
		return rag.Analysis{Intent: rag.IntentGeneral}, nil
	}
	if cached, ok := a.cache.Get(key); ok {
		return cached, nil
	}

	var (
		concepts   []string
		expansions []string
		temporal   rag.Temporal
		intent     rag.Intent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := a.extractList(gctx, conceptsPrompt, text, maxConcepts)
		if err != nil {
			a.logger.Debug("concept_extraction_failed", "error", err)
			return nil
		}
		concepts = list
		return nil
	})
	g.Go(func() error {
		list, err := a.extractList(gctx, expansionsPrompt, text, maxExpansions)
		if err != nil {
			a.logger.Debug("query_expansion_failed", "error", err)
			return nil
		}
		expansions = list
		return nil
	})
	g.Go(func() error {
		temporal = ExtractTemporal(text)
		return nil
	})
	g.Go(func() error {
		intent = ClassifyIntent(text)
		return nil
	})
	_ = g.Wait()

	analysis := rag.Analysis{
		Concepts:   concepts,
		Expansions: expansions,
		Temporal:   temporal,
		Intent:     intent,
	}
	if err := ctx.Err(); err != nil {
		return analysis, err
	}
	a.cache.Add(key, analysis)
	return analysis, nil
}

// extractList runs one fast-model prompt and parses up to max lines.
func (a *Analyzer) extractList(ctx context.Context, prompt, text string, max int) ([]string, error) {
	if a.fast == nil {
		return nil, nil
	}
	resp, err := a.fast.Complete(ctx, llm.Request{
		Prompt:    fmt.Sprintf(prompt, text),
		MaxTokens: extractorMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return parseLines(resp.Text, max), nil
}

// parseLines splits model output into trimmed non-empty lines, stripping
// bullets and numbering, capped at max.
func parseLines(text string, max int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	return out
}

// normalizeQuery produces the memoization key.
func normalizeQuery(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// =============================================================================
// Temporal extraction
// =============================================================================

// temporalRule maps a recency keyword to its lookback window in days.
// Phrases match as substrings; single words match whole words, with prefix
// set for stems like "recent" that should also catch "recently".
type temporalRule struct {
	keyword string
	days    int
	prefix  bool
}

// temporalRules is evaluated in order; the first hit wins.
var temporalRules = []temporalRule{
	{keyword: "today", days: 0},
	{keyword: "yesterday", days: 1},
	{keyword: "day before", days: 2},
	{keyword: "week", days: 7},
	{keyword: "month", days: 30},
	{keyword: "recent", days: 7, prefix: true},
	{keyword: "last", days: 3},
	{keyword: "new", days: 3},
	{keyword: "latest", days: 3},
	{keyword: "current", days: 1},
	{keyword: "changed", days: 3},
	{keyword: "updated", days: 3},
}

// ExtractTemporal parses recency cues from the query text.
func ExtractTemporal(text string) rag.Temporal {
	lower := strings.ToLower(text)
	words := splitWords(lower)
	for _, rule := range temporalRules {
		if strings.Contains(rule.keyword, " ") {
			if strings.Contains(lower, rule.keyword) {
				return rag.Temporal{Present: true, DaysBack: rule.days, Keyword: rule.keyword}
			}
			continue
		}
		for _, w := range words {
			if w == rule.keyword || (rule.prefix && strings.HasPrefix(w, rule.keyword)) {
				return rag.Temporal{Present: true, DaysBack: rule.days, Keyword: rule.keyword}
			}
		}
	}
	return rag.Temporal{}
}

func splitWords(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '_'
	})
}

// =============================================================================
// Intent classification
// =============================================================================

// intentKeywords are checked in declaration order; the first category with
// any hit wins, otherwise the intent is general. Membership is substring
// over the lowercased query, which lets phrases like "how does" match.
var intentKeywords = []struct {
	intent   rag.Intent
	keywords []string
}{
	{rag.IntentCode, []string{
		"function", "func", "code", "implement", "bug", "error", "stack",
		"trace", "compile", "method", "class", "struct", "api", "refactor", "test",
	}},
	{rag.IntentConfig, []string{
		"config", "configuration", "setting", "parameter", "env", "variable",
		"flag", "option", "yaml", "toml",
	}},
	{rag.IntentExplain, []string{
		"explain", "why", "how does", "what does", "describe", "walk me",
		"understand", "difference", "architecture",
	}},
	{rag.IntentStatus, []string{
		"status", "health", "running", "up", "down", "progress", "state",
		"deployed", "version",
	}},
}

// ClassifyIntent maps query text to an intent without any model call.
func ClassifyIntent(text string) rag.Intent {
	lower := strings.ToLower(text)
	for _, group := range intentKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.intent
			}
		}
	}
	return rag.IntentGeneral
}
