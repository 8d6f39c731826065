package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractiveProvider_ReturnsTopBlock(t *testing.T) {
	p := NewExtractiveProvider()
	prompt := "Question: how does caching work?\n\nContext:\n" +
		"[Doc 1] (Score: 0.91)\nThe cache stores answers keyed by query hash.\n" +
		"[Doc 2] (Score: 0.55)\nUnrelated second document.\n"

	resp, err := p.Complete(context.Background(), Request{Prompt: prompt})

	require.NoError(t, err)
	assert.Contains(t, resp.Text, "cache stores answers keyed by query hash")
	assert.NotContains(t, resp.Text, "Unrelated second document")
}

func TestExtractiveProvider_NoContextBlocks(t *testing.T) {
	p := NewExtractiveProvider()

	resp, err := p.Complete(context.Background(), Request{
		Prompt: "List up to 5 key concepts for: how does caching work?",
	})

	require.NoError(t, err)
	assert.Empty(t, resp.Text, "analysis prompts must get an empty completion")
}

func TestExtractiveProvider_TruncatesLongBlocks(t *testing.T) {
	p := NewExtractiveProvider()
	long := strings.Repeat("x", extractiveSnippetLimit+500)
	prompt := "[Doc 1] (Score: 0.9)\n" + long + "\n"

	resp, err := p.Complete(context.Background(), Request{Prompt: prompt})

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(resp.Text, "..."))
	assert.Less(t, len(resp.Text), len(long))
}

func TestExtractiveProvider_EmptyBlockBody(t *testing.T) {
	p := NewExtractiveProvider()
	prompt := "[Doc 1] (Score: 0.9)\n\n[Doc 2] (Score: 0.5)\nsecond\n"

	resp, err := p.Complete(context.Background(), Request{Prompt: prompt})

	require.NoError(t, err)
	assert.Empty(t, resp.Text)
}

func TestExtractiveProvider_Metadata(t *testing.T) {
	p := NewExtractiveProvider()

	assert.Equal(t, "extractive", p.ModelName())
	assert.True(t, p.Available(context.Background()))
	assert.NoError(t, p.Close())
}
