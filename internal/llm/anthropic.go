package llm

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	ragerr "github.com/ragweaver/ragweaver/internal/errors"
)

const (
	// DefaultAnthropicModel synthesizes answers.
	DefaultAnthropicModel = "claude-sonnet-4-5"

	// DefaultAnthropicFastModel handles analysis prompts.
	DefaultAnthropicFastModel = "claude-3-5-haiku-latest"

	anthropicMaxRetries = 2
)

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	// APIKey overrides ANTHROPIC_API_KEY (tests).
	APIKey string

	// Model is the model identifier.
	Model string

	// MaxTokens is the default completion bound.
	MaxTokens int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// BaseURL overrides the API endpoint (tests).
	BaseURL string
}

// AnthropicProvider completes through the Anthropic Messages API.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicProvider builds the provider. A missing API key is a
// credential error so the factory can fall back instead of failing later
// on the first query.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, ragerr.New(ragerr.ErrCodeMissingCredential, "ANTHROPIC_API_KEY is not set", nil).
			WithSuggestion("export ANTHROPIC_API_KEY or set llm.provider to \"ollama\"")
	}

	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8000
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(anthropicMaxRetries),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Complete runs a single-turn message exchange.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeLLMRequest, "anthropic request failed", err).
			WithDetail("model", p.model)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Response{
		Text:         text.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// ModelName returns the configured model identifier.
func (p *AnthropicProvider) ModelName() string {
	return p.model
}

// Available is true once constructed: the key exists, and transient API
// failures are handled per request.
func (p *AnthropicProvider) Available(_ context.Context) bool {
	return true
}

// Close releases resources. The SDK client holds no long-lived state.
func (p *AnthropicProvider) Close() error {
	return nil
}
