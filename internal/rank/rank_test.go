package rank

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerr "github.com/ragweaver/ragweaver/internal/errors"
	"github.com/ragweaver/ragweaver/internal/rag"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeEncoder struct {
	mu        sync.Mutex
	scores    []float64
	err       error
	available bool
	calls     int
	lastQuery string
	lastDocs  []string
}

func (f *fakeEncoder) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastQuery = query
	f.lastDocs = documents
	if f.err != nil {
		return nil, f.err
	}
	if f.scores != nil {
		return f.scores, nil
	}
	scores := make([]float64, len(documents))
	for i := range documents {
		scores[i] = 0.5
	}
	return scores, nil
}

func (f *fakeEncoder) Available(_ context.Context) bool { return f.available }

func (f *fakeEncoder) Close() error { return nil }

func rankedDoc(content string, score, vectorScore, temporalBoost float64) rag.Document {
	d := rag.NewDocument(content, rag.SourceVector)
	d.Score = score
	d.VectorScore = vectorScore
	d.TemporalBoost = temporalBoost
	return d
}

// =============================================================================
// Rerank
// =============================================================================

func TestRerankEmptyInput(t *testing.T) {
	r := New(&fakeEncoder{available: true}, Config{})

	out, err := r.Rerank(context.Background(), "query", nil, 10)

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRerankCombinesSignals(t *testing.T) {
	enc := &fakeEncoder{available: true, scores: []float64{0.5, 0.9, 0.4}}
	r := New(enc, Config{})
	docs := []rag.Document{
		rankedDoc("plain haystack a", 0.9, 0.4, 0),
		rankedDoc("the needle is here", 0.8, 0, 0),
		rankedDoc("older observation", 0.5, 0, 3.0),
	}

	out, err := r.Rerank(context.Background(), "needle", docs, 3)

	require.NoError(t, err)
	require.Len(t, out, 3)
	// 0.4*3.0 beats (0.9)*1.2 beats 0.5+0.2*0.4.
	assert.Equal(t, "older observation", out[0].Content)
	assert.InDelta(t, 1.2, out[0].FinalScore, 1e-9)
	assert.Equal(t, "the needle is here", out[1].Content)
	assert.InDelta(t, 1.08, out[1].FinalScore, 1e-9)
	assert.Equal(t, "plain haystack a", out[2].Content)
	assert.InDelta(t, 0.58, out[2].FinalScore, 1e-9)
}

func TestRerankStableOnEqualScores(t *testing.T) {
	enc := &fakeEncoder{available: true, scores: []float64{0.7, 0.7}}
	r := New(enc, Config{})
	docs := []rag.Document{
		rankedDoc("first", 0.5, 0, 0),
		rankedDoc("second", 0.5, 0, 0),
	}

	out, err := r.Rerank(context.Background(), "query", docs, 2)

	require.NoError(t, err)
	assert.Equal(t, "first", out[0].Content)
	assert.Equal(t, "second", out[1].Content)
}

func TestRerankStageOneCut(t *testing.T) {
	docs := make([]rag.Document, 0, 60)
	for i := 0; i < 60; i++ {
		docs = append(docs, rankedDoc(strings.Repeat("x", i+1), float64(i)/100, 0, 0))
	}
	enc := &fakeEncoder{available: true}
	r := New(enc, Config{})

	out, err := r.Rerank(context.Background(), "query", docs, 5)

	require.NoError(t, err)
	// max(50, 2*5) candidates reach the encoder, top-k come back.
	assert.Len(t, enc.lastDocs, 50)
	assert.Len(t, out, 5)
}

func TestRerankStageOneFactorDominates(t *testing.T) {
	docs := make([]rag.Document, 0, 70)
	for i := 0; i < 70; i++ {
		docs = append(docs, rankedDoc(strings.Repeat("y", i+1), float64(i)/100, 0, 0))
	}
	enc := &fakeEncoder{available: true}
	r := New(enc, Config{})

	_, err := r.Rerank(context.Background(), "query", docs, 30)

	require.NoError(t, err)
	// max(50, 2*30) = 60.
	assert.Len(t, enc.lastDocs, 60)
}

func TestRerankFewerCandidatesThanTopK(t *testing.T) {
	enc := &fakeEncoder{available: true, scores: []float64{0.2, 0.8}}
	r := New(enc, Config{})
	docs := []rag.Document{
		rankedDoc("low", 0.9, 0, 0),
		rankedDoc("high", 0.1, 0, 0),
	}

	out, err := r.Rerank(context.Background(), "query", docs, 10)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].Content)
}

func TestRerankTruncatesEncoderPairs(t *testing.T) {
	enc := &fakeEncoder{available: true}
	r := New(enc, Config{})
	docs := []rag.Document{rankedDoc(strings.Repeat("z", 1500), 0.5, 0, 0)}

	_, err := r.Rerank(context.Background(), "query", docs, 1)

	require.NoError(t, err)
	require.Len(t, enc.lastDocs, 1)
	assert.Len(t, enc.lastDocs[0], 1000)
}

func TestRerankDoesNotMutateInput(t *testing.T) {
	enc := &fakeEncoder{available: true, scores: []float64{0.1, 0.9}}
	r := New(enc, Config{})
	docs := []rag.Document{
		rankedDoc("first", 0.9, 0, 0),
		rankedDoc("second", 0.1, 0, 0),
	}

	_, err := r.Rerank(context.Background(), "query", docs, 2)

	require.NoError(t, err)
	assert.Equal(t, "first", docs[0].Content)
	assert.Zero(t, docs[0].FinalScore)
	assert.Zero(t, docs[1].FinalScore)
}

// =============================================================================
// Degraded paths
// =============================================================================

func TestRerankDegradedWhenEncoderUnavailable(t *testing.T) {
	enc := &fakeEncoder{available: false}
	r := New(enc, Config{})
	docs := []rag.Document{
		rankedDoc("no needle", 0.9, 0, 0),
		rankedDoc("fresh needle match", 0.6, 0.2, 2.0),
	}

	out, err := r.Rerank(context.Background(), "needle", docs, 2)

	require.NoError(t, err)
	assert.Zero(t, enc.calls)
	// Heuristic score keeps the boosts: (0.6+0.2)*2.0*1.2 > 0.9.
	assert.Equal(t, "fresh needle match", out[0].Content)
	assert.InDelta(t, 1.92, out[0].FinalScore, 1e-9)
	assert.InDelta(t, 0.9, out[1].FinalScore, 1e-9)
}

func TestRerankDegradedWhenEncoderFails(t *testing.T) {
	enc := &fakeEncoder{available: true, err: errors.New("model crashed")}
	r := New(enc, Config{})
	docs := []rag.Document{rankedDoc("survivor", 0.7, 0, 0)}

	out, err := r.Rerank(context.Background(), "query", docs, 1)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.7, out[0].FinalScore, 1e-9)
}

func TestRerankNilEncoderHeuristicOnly(t *testing.T) {
	r := New(nil, Config{})
	docs := []rag.Document{
		rankedDoc("weak", 0.2, 0, 0),
		rankedDoc("strong", 0.8, 0.1, 0),
	}

	out, err := r.Rerank(context.Background(), "query", docs, 2)

	require.NoError(t, err)
	assert.Equal(t, "strong", out[0].Content)
	assert.InDelta(t, 0.9, out[0].FinalScore, 1e-9)
}

func TestRerankCancellationSurfaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	enc := &fakeEncoder{available: true, err: context.Canceled}
	r := New(enc, Config{})

	_, err := r.Rerank(ctx, "query", []rag.Document{rankedDoc("doc", 0.5, 0, 0)}, 1)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRerankScoreCountMismatch(t *testing.T) {
	enc := &fakeEncoder{available: true, scores: []float64{0.9}}
	r := New(enc, Config{})
	docs := []rag.Document{
		rankedDoc("first", 0.5, 0, 0),
		rankedDoc("second", 0.4, 0, 0),
	}

	_, err := r.Rerank(context.Background(), "query", docs, 2)

	require.Error(t, err)
	assert.Equal(t, ragerr.ErrCodeScoreMismatch, ragerr.GetCode(err))
}
