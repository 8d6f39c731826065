package llm

import (
	"log/slog"
	"strings"
	"time"
)

const fastTierMaxTokens = 512

// Options configures provider construction for both tiers.
type Options struct {
	// Provider is "anthropic", "ollama" or "static".
	Provider string

	// Model synthesizes answers.
	Model string

	// FastModel handles analysis prompts; empty picks a provider default.
	FastModel string

	// MaxTokens bounds synthesized answers.
	MaxTokens int

	// OllamaHost is the Ollama endpoint (Ollama provider only).
	OllamaHost string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// APIKey and BaseURL override Anthropic credentials/endpoint (tests).
	APIKey  string
	BaseURL string
}

// NewProviders builds the main and fast tiers. A missing Anthropic key
// degrades both tiers to the extractive provider with a warning: queries
// keep working on retrieval alone instead of failing at startup.
func NewProviders(opts Options) Providers {
	switch strings.ToLower(opts.Provider) {
	case "static":
		p := NewExtractiveProvider()
		return Providers{Main: p, Fast: p}

	case "ollama":
		fastModel := opts.FastModel
		if fastModel == "" {
			fastModel = opts.Model
		}
		return Providers{
			Main: NewOllamaProvider(OllamaConfig{
				Host:      opts.OllamaHost,
				Model:     opts.Model,
				MaxTokens: opts.MaxTokens,
				Timeout:   opts.Timeout,
			}),
			Fast: NewOllamaProvider(OllamaConfig{
				Host:      opts.OllamaHost,
				Model:     fastModel,
				MaxTokens: fastTierMaxTokens,
				Timeout:   opts.Timeout,
			}),
		}

	default: // "anthropic" and anything unrecognized
		main, err := NewAnthropicProvider(AnthropicConfig{
			APIKey:    opts.APIKey,
			Model:     opts.Model,
			MaxTokens: opts.MaxTokens,
			Timeout:   opts.Timeout,
			BaseURL:   opts.BaseURL,
		})
		if err != nil {
			slog.Warn("llm_provider_unavailable",
				slog.String("provider", "anthropic"),
				slog.String("error", err.Error()),
				slog.String("fallback", "extractive"))
			p := NewExtractiveProvider()
			return Providers{Main: p, Fast: p}
		}

		fastModel := opts.FastModel
		if fastModel == "" {
			fastModel = DefaultAnthropicFastModel
		}
		fast, err := NewAnthropicProvider(AnthropicConfig{
			APIKey:    opts.APIKey,
			Model:     fastModel,
			MaxTokens: fastTierMaxTokens,
			Timeout:   opts.Timeout,
			BaseURL:   opts.BaseURL,
		})
		if err != nil {
			// Key was present a moment ago; fall back to the main tier.
			return Providers{Main: main, Fast: main}
		}
		return Providers{Main: main, Fast: fast}
	}
}
