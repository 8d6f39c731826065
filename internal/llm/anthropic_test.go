package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerr "github.com/ragweaver/ragweaver/internal/errors"
)

func TestAnthropicProvider_Complete(t *testing.T) {
	// Given: a fake messages endpoint capturing the request
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [
				{"type": "text", "text": "Billing retries use "},
				{"type": "text", "text": "exponential backoff."}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 42, "output_tokens": 12}
		}`)
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(AnthropicConfig{
		APIKey:  "test-key",
		Model:   "claude-sonnet-4-5",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	defer p.Close()

	// When: I complete a prompt
	resp, err := p.Complete(context.Background(), Request{
		System:      "Answer from the provided context.",
		Prompt:      "how do billing retries work?",
		MaxTokens:   100,
		Temperature: 0.2,
	})

	// Then: text blocks are concatenated and usage mapped
	require.NoError(t, err)
	assert.Equal(t, "Billing retries use exponential backoff.", resp.Text)
	assert.Equal(t, 42, resp.InputTokens)
	assert.Equal(t, 12, resp.OutputTokens)

	// And: the request carried the configured fields
	assert.Equal(t, "claude-sonnet-4-5", captured["model"])
	assert.Equal(t, float64(100), captured["max_tokens"])
	assert.Equal(t, 0.2, captured["temperature"])
	system, ok := captured["system"].([]any)
	require.True(t, ok, "system must be a block array")
	assert.Equal(t, "Answer from the provided context.",
		system[0].(map[string]any)["text"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
}

func TestAnthropicProvider_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewAnthropicProvider(AnthropicConfig{Model: "claude-sonnet-4-5"})

	require.Error(t, err)
	assert.Equal(t, ragerr.ErrCodeMissingCredential, ragerr.GetCode(err))
}

func TestAnthropicProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens required"}}`)
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), Request{Prompt: "anything"})

	require.Error(t, err)
	assert.Equal(t, ragerr.ErrCodeLLMRequest, ragerr.GetCode(err))
}

func TestAnthropicProvider_Defaults(t *testing.T) {
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	require.NoError(t, err)

	assert.Equal(t, DefaultAnthropicModel, p.ModelName())
	assert.True(t, p.Available(context.Background()))
}
