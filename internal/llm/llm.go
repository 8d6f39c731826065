// Package llm provides the language-model providers behind answer synthesis
// and query analysis: the Anthropic Messages API for quality, a local Ollama
// model for privacy-sensitive setups, and an extractive fallback that keeps
// the CLI functional with no model at all.
package llm

import "context"

// Request is a single-turn completion request.
type Request struct {
	// System is the system prompt; empty omits it.
	System string

	// Prompt is the user message.
	Prompt string

	// MaxTokens bounds the completion; 0 uses the provider default.
	MaxTokens int

	// Temperature in [0,1]; 0 is deterministic-ish.
	Temperature float64
}

// Response carries the completion text and token accounting.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider is the completion surface the pipeline depends on.
type Provider interface {
	// Complete runs a single-turn completion.
	Complete(ctx context.Context, req Request) (*Response, error)

	// ModelName identifies the underlying model for logs and traces.
	ModelName() string

	// Available reports whether the provider can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Providers bundles the two model tiers the pipeline uses: Main synthesizes
// answers, Fast handles query analysis and decomposition.
type Providers struct {
	Main Provider
	Fast Provider
}

// Close closes both tiers.
func (p Providers) Close() error {
	var first error
	if p.Main != nil {
		first = p.Main.Close()
	}
	if p.Fast != nil && p.Fast != p.Main {
		if err := p.Fast.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
