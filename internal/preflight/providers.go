package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/ragweaver/ragweaver/internal/config"
)

const defaultOllamaHost = "http://localhost:11434"

// CheckLLMProvider verifies the configured answer model is usable. A
// missing Anthropic key is fatal; an unreachable Ollama host is only a
// warning because the factory degrades to the extractive provider.
func (c *Checker) CheckLLMProvider(ctx context.Context, cfg *config.Config) Result {
	result := Result{Name: "llm_provider"}

	switch cfg.LLM.Provider {
	case "anthropic":
		result.Required = true
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			result.Status = StatusFail
			result.Message = "ANTHROPIC_API_KEY is not set"
			result.Details = "export ANTHROPIC_API_KEY or set llm.provider to \"ollama\""
			return result
		}
		result.Status = StatusPass
		result.Message = fmt.Sprintf("anthropic (%s)", cfg.LLM.Model)
		return result

	case "ollama", "":
		host := cfg.LLM.OllamaHost
		if host == "" {
			host = defaultOllamaHost
		}
		if err := c.probeOllama(ctx, host); err != nil {
			result.Status = StatusWarn
			result.Message = fmt.Sprintf("ollama unreachable at %s", host)
			result.Details = "answers fall back to the extractive provider"
			return result
		}
		result.Status = StatusPass
		result.Message = fmt.Sprintf("ollama at %s (%s)", host, cfg.LLM.Model)
		return result

	default:
		// The static/extractive provider needs nothing external.
		result.Status = StatusPass
		result.Message = cfg.LLM.Provider
		return result
	}
}

// CheckEmbedder verifies the embedding provider. Never fatal: the
// static hash embedder always works, at reduced retrieval quality.
func (c *Checker) CheckEmbedder(ctx context.Context, cfg *config.Config) Result {
	result := Result{Name: "embedder"}

	if cfg.Embeddings.Provider != "ollama" {
		result.Status = StatusPass
		result.Message = "static"
		return result
	}

	host := cfg.Embeddings.OllamaHost
	if host == "" {
		host = defaultOllamaHost
	}
	if err := c.probeOllama(ctx, host); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("ollama unreachable at %s", host)
		result.Details = "embeddings fall back to the static hash embedder"
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("ollama at %s (%s)", host, cfg.Embeddings.Model)
	return result
}

func (c *Checker) probeOllama(ctx context.Context, host string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
