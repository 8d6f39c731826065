package analyze

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecomposeParsesModelLines(t *testing.T) {
	provider := &scriptedProvider{
		rewrites: "1. How are documents chunked?\n2. How are chunks embedded?\n3. Where are embeddings stored?\n4. one past the cap",
	}
	d := NewDecomposer(provider, nil)

	subs := d.Decompose(context.Background(), "describe the entire ingest pipeline from chunking to storage", 3)

	assert.Equal(t, []string{
		"How are documents chunked?",
		"How are chunks embedded?",
		"Where are embeddings stored?",
	}, subs)
}

func TestDecomposeAtomicQuestionReturnsNil(t *testing.T) {
	// Model echoes the question back: no decomposition happened.
	provider := &scriptedProvider{rewrites: "where is the cache pruned?"}
	d := NewDecomposer(provider, nil)

	assert.Nil(t, d.Decompose(context.Background(), "Where is the cache pruned?", 3))
}

func TestDecomposeModelFailureFallsBackToConjunctions(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("model offline")}
	d := NewDecomposer(provider, nil)

	subs := d.Decompose(context.Background(), "index the docs and then run the eval suite; report the scores", 3)

	assert.Equal(t, []string{
		"index the docs",
		"run the eval suite",
		"report the scores",
	}, subs)
}

func TestDecomposeNilProviderUsesConjunctions(t *testing.T) {
	d := NewDecomposer(nil, nil)

	subs := d.Decompose(context.Background(), "check the index status; summarize recent failures", 3)

	assert.Equal(t, []string{
		"check the index status",
		"summarize recent failures",
	}, subs)
}

func TestDecomposeCapsFallbackParts(t *testing.T) {
	d := NewDecomposer(nil, nil)

	subs := d.Decompose(context.Background(), "a; b; c; d; e", 3)

	assert.Equal(t, []string{"a", "b", "c"}, subs)
}

func TestDecomposeNoConjunctionsReturnsNil(t *testing.T) {
	d := NewDecomposer(nil, nil)

	assert.Nil(t, d.Decompose(context.Background(), "how does ranking work", 3))
	assert.Nil(t, d.Decompose(context.Background(), "   ", 3))
}
