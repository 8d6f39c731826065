package embed

import (
	"context"
	"log/slog"
	"strings"
)

// Options configures embedder construction.
type Options struct {
	// Provider is "ollama" or "static".
	Provider string

	// Model is the embedding model (Ollama only).
	Model string

	// Host is the Ollama API endpoint.
	Host string

	// Dimensions overrides auto-detection when non-zero.
	Dimensions int

	// BatchSize for batch requests.
	BatchSize int

	// CacheSize is the query-embedding LRU size (0 = default).
	CacheSize int

	// SkipHealthCheck skips the Ollama startup check (for testing).
	SkipHealthCheck bool
}

// NewEmbedder creates an embedder from options. An unreachable Ollama falls
// back to the static embedder with a warning rather than failing: retrieval
// quality degrades, availability does not.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	var inner Embedder

	switch strings.ToLower(opts.Provider) {
	case "static":
		inner = NewStaticEmbedder()

	default: // "ollama" and anything unrecognized
		ollama, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:            opts.Host,
			Model:           opts.Model,
			Dimensions:      opts.Dimensions,
			BatchSize:       opts.BatchSize,
			SkipHealthCheck: opts.SkipHealthCheck,
		})
		if err != nil {
			slog.Warn("ollama_embedder_unavailable",
				slog.String("error", err.Error()),
				slog.String("fallback", "static"))
			inner = NewStaticEmbedder()
		} else {
			inner = ollama
		}
	}

	return NewCachedEmbedder(inner, opts.CacheSize), nil
}
