package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	ragerr "github.com/ragweaver/ragweaver/internal/errors"
)

const (
	// DefaultOllamaHost is the standard local Ollama endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaChatModel is used when no model is configured.
	DefaultOllamaChatModel = "llama3.2"

	defaultOllamaTimeout = 60 * time.Second
	ollamaMaxRetries     = 3
	ollamaPoolSize       = 2
)

// OllamaConfig configures an OllamaProvider.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string

	// Model is the generation model.
	Model string

	// MaxTokens is the default completion bound (num_predict).
	MaxTokens int

	// Timeout is the per-attempt timeout. The first request after a model
	// unload pays the load cost inside this window, so keep it generous.
	Timeout time.Duration
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaProvider completes through a local Ollama server's /api/generate.
type OllamaProvider struct {
	client    *http.Client
	transport *http.Transport
	host      string
	model     string
	maxTokens int
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewOllamaProvider builds the provider. No health check runs here: a down
// server surfaces per request and Available() probes on demand.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaChatModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultOllamaTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        ollamaPoolSize,
		MaxIdleConnsPerHost: ollamaPoolSize,
		IdleConnTimeout:     30 * time.Second,
	}

	return &OllamaProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		host:      strings.TrimSuffix(cfg.Host, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}
}

// Complete runs a single-turn generation with bounded retries. Network
// failures and 5xx responses retry with backoff; 4xx responses do not.
func (p *OllamaProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  p.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  maxTokens,
		},
	})
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeInternal, "failed to marshal generate request", err)
	}

	var lastErr error
	for attempt := 0; attempt < ollamaMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			slog.Debug("ollama_generate_retry",
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()))
		}

		resp, retryable, err := p.doGenerate(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, ragerr.New(ragerr.ErrCodeLLMRequest, "ollama generate failed", lastErr).
		WithDetail("model", p.model).
		WithDetail("host", p.host)
}

func (p *OllamaProvider) doGenerate(ctx context.Context, body []byte) (*Response, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, true, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		statusErr := fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(msg)))
		return nil, httpResp.StatusCode >= 500, statusErr
	}

	var decoded ollamaGenerateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return nil, false, fmt.Errorf("failed to decode generate response: %w", err)
	}

	return &Response{
		Text:         decoded.Response,
		InputTokens:  decoded.PromptEvalCount,
		OutputTokens: decoded.EvalCount,
	}, false, nil
}

func (p *OllamaProvider) checkOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("provider is closed")
	}
	return nil
}

// ModelName returns the configured model identifier.
func (p *OllamaProvider) ModelName() string {
	return p.model
}

// Available checks that the server responds and the model is installed.
func (p *OllamaProvider) Available(ctx context.Context) bool {
	if p.checkOpen() != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}

	want := strings.ToLower(p.model)
	for _, m := range tags.Models {
		name := strings.ToLower(m.Name)
		if strings.Contains(name, want) || strings.Contains(want, name) {
			return true
		}
	}
	return false
}

// Close releases idle connections.
func (p *OllamaProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.transport != nil {
		p.transport.CloseIdleConnections()
	}
	return nil
}
