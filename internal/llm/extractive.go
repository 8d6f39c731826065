package llm

import (
	"context"
	"strings"
)

const extractiveSnippetLimit = 1200

// ExtractiveProvider is the no-model fallback: instead of generating prose
// it returns the top-ranked context block verbatim. Prompts without context
// blocks get an empty completion, which callers treat as "nothing to add" —
// the analyzer falls back to its keyword tables and the synthesizer reports
// a degraded answer.
type ExtractiveProvider struct{}

// NewExtractiveProvider returns the fallback provider.
func NewExtractiveProvider() *ExtractiveProvider {
	return &ExtractiveProvider{}
}

// Complete extracts the first context block from the prompt, if any.
func (p *ExtractiveProvider) Complete(_ context.Context, req Request) (*Response, error) {
	start := strings.Index(req.Prompt, "[Doc 1]")
	if start < 0 {
		return &Response{}, nil
	}

	block := req.Prompt[start:]
	// Drop the "[Doc 1] (Score: …)" header line itself.
	if nl := strings.IndexByte(block, '\n'); nl >= 0 {
		block = block[nl+1:]
	}
	if end := strings.Index(block, "\n[Doc "); end >= 0 {
		block = block[:end]
	}

	block = strings.TrimSpace(block)
	if block == "" {
		return &Response{}, nil
	}
	if len(block) > extractiveSnippetLimit {
		block = block[:extractiveSnippetLimit] + "..."
	}

	return &Response{Text: "From the most relevant indexed material:\n\n" + block}, nil
}

// ModelName identifies the fallback in logs and traces.
func (p *ExtractiveProvider) ModelName() string {
	return "extractive"
}

// Available is always true; there is nothing to reach.
func (p *ExtractiveProvider) Available(_ context.Context) bool {
	return true
}

// Close is a no-op.
func (p *ExtractiveProvider) Close() error {
	return nil
}
