package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ragweaver/ragweaver/internal/llm"
)

// DefaultMaxSubQuestions bounds query decomposition.
const DefaultMaxSubQuestions = 3

// decomposePrompt asks the fast model to split a multi-part question.
const decomposePrompt = `Split this question into at most %d standalone sub-questions that can each be answered on its own.
One sub-question per line, no bullets, no numbering, no commentary.
If the question is already a single question, return it unchanged.

Question: %s

Sub-questions:`

// conjunctionSeparators split multi-part questions when no model is
// reachable. Order matters: the longer phrase first.
var conjunctionSeparators = []string{" and then ", "; "}

// Decomposer splits multi-part questions into standalone sub-questions for
// planned retrieval.
type Decomposer struct {
	fast   llm.Provider
	logger *slog.Logger
}

// NewDecomposer builds a Decomposer. fast may be nil; decomposition then
// relies on conjunction splitting alone.
func NewDecomposer(fast llm.Provider, logger *slog.Logger) *Decomposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decomposer{fast: fast, logger: logger}
}

// Decompose returns up to max sub-questions, or nil when the question is
// already atomic. Model failures fall back to conjunction splitting and
// never surface as errors.
func (d *Decomposer) Decompose(ctx context.Context, query string, max int) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if max <= 0 {
		max = DefaultMaxSubQuestions
	}

	if d.fast != nil {
		resp, err := d.fast.Complete(ctx, llm.Request{
			Prompt:    fmt.Sprintf(decomposePrompt, max, query),
			MaxTokens: extractorMaxTokens,
		})
		if err == nil {
			subs := dropOriginal(parseLines(resp.Text, max), query)
			if len(subs) > 1 {
				return subs
			}
		} else {
			d.logger.Debug("decompose_failed", "error", err)
		}
	}

	subs := splitConjunctions(query)
	if len(subs) > max {
		subs = subs[:max]
	}
	if len(subs) <= 1 {
		return nil
	}
	return subs
}

// splitConjunctions breaks the query on the common multi-part phrasings.
func splitConjunctions(query string) []string {
	parts := []string{query}
	for _, sep := range conjunctionSeparators {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dropOriginal removes echoes of the original question from the model
// output, so "already atomic" responses don't count as a decomposition.
func dropOriginal(lines []string, original string) []string {
	norm := normalizeQuery(original)
	var out []string
	for _, l := range lines {
		if normalizeQuery(l) == norm {
			continue
		}
		out = append(out, l)
	}
	return out
}
