package answer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweaver/ragweaver/internal/llm"
	"github.com/ragweaver/ragweaver/internal/rag"
)

type scriptedProvider struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []llm.Request
}

func (p *scriptedProvider) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Text: p.text, InputTokens: 100, OutputTokens: 42}, nil
}

func (p *scriptedProvider) ModelName() string { return "scripted" }

func (p *scriptedProvider) Available(_ context.Context) bool { return true }

func (p *scriptedProvider) Close() error { return nil }

func TestSynthesizeBuildsPromptAndConfidence(t *testing.T) {
	provider := &scriptedProvider{text: "  The ingest pipeline chunks files [Doc 1].  "}
	s, err := New(provider)
	require.NoError(t, err)

	out, err := s.Synthesize(context.Background(), Input{
		Query:     "how does ingestion work",
		Intent:    rag.IntentExplain,
		Concepts:  []string{"ingest", "chunking"},
		Context:   "[Doc 1] (Score: 0.90)\nchunker splits files\n",
		Retrieved: 12,
		Reranked:  8,
		Mode:      rag.ModeHybrid,
	})

	require.NoError(t, err)
	assert.Equal(t, "The ingest pipeline chunks files [Doc 1].", out.Answer)
	assert.InDelta(t, 16.0, out.Confidence, 1e-9)
	assert.Equal(t, "scripted", out.Model)
	assert.Equal(t, 42, out.OutputTokens)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	assert.Equal(t, answerSystem, req.System)
	assert.InDelta(t, 0.2, req.Temperature, 1e-9)
	assert.Equal(t, 8000, req.MaxTokens)
	assert.Contains(t, req.Prompt, "how does ingestion work")
	assert.Contains(t, req.Prompt, "Intent: explain")
	assert.Contains(t, req.Prompt, "ingest, chunking")
	assert.Contains(t, req.Prompt, "12 documents retrieved, 8 kept")
	assert.Contains(t, req.Prompt, "chunker splits files")
	assert.Contains(t, req.Prompt, "[Doc N]")
}

func TestSynthesizeConfidenceCapped(t *testing.T) {
	s, err := New(&scriptedProvider{text: "answer"})
	require.NoError(t, err)

	out, err := s.Synthesize(context.Background(), Input{
		Query:    "q",
		Context:  "[Doc 1] body\n",
		Reranked: 80,
		Mode:     rag.ModeHybrid,
	})

	require.NoError(t, err)
	assert.InDelta(t, 100.0, out.Confidence, 1e-9)
}

func TestSynthesizeEmptyContextSkipsModel(t *testing.T) {
	provider := &scriptedProvider{text: "should not be called"}
	s, err := New(provider)
	require.NoError(t, err)

	out, err := s.Synthesize(context.Background(), Input{
		Query: "q",
		Mode:  rag.ModeHybrid,
	})

	require.NoError(t, err)
	assert.Equal(t, rag.NoInformationAnswer, out.Answer)
	assert.Zero(t, out.Confidence)
	assert.Empty(t, provider.requests)
}

func TestSynthesizeModeNoneAnswersWithoutContext(t *testing.T) {
	provider := &scriptedProvider{text: "a mutex is a lock"}
	s, err := New(provider)
	require.NoError(t, err)

	out, err := s.Synthesize(context.Background(), Input{
		Query: "what is a mutex",
		Mode:  rag.ModeNone,
	})

	require.NoError(t, err)
	assert.Equal(t, "a mutex is a lock", out.Answer)
	assert.InDelta(t, 50.0, out.Confidence, 1e-9)

	require.Len(t, provider.requests, 1)
	assert.Contains(t, provider.requests[0].Prompt, "what is a mutex")
	assert.NotContains(t, provider.requests[0].Prompt, "Context:")
}

func TestSynthesizeModelFailure(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("model exploded")}
	s, err := New(provider)
	require.NoError(t, err)

	out, err := s.Synthesize(context.Background(), Input{
		Query:    "q",
		Context:  "[Doc 1] body\n",
		Reranked: 4,
		Mode:     rag.ModeHybrid,
	})

	require.Error(t, err)
	assert.Equal(t, "Error generating answer: model exploded", out.Answer)
	assert.Zero(t, out.Confidence)
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(nil)

	assert.ErrorIs(t, err, ErrNilDependency)
}
