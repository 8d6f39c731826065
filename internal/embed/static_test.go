package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorMagnitude(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return sum // unit vectors: sum of squares == 1
}

// ============================================================================
// Basic Embedding
// ============================================================================

func TestStaticEmbedder_Embed_ReturnsCorrectDimensions(t *testing.T) {
	// Given: a static embedder
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	// When: I embed a query
	embedding, err := embedder.Embed(context.Background(), "how does the billing retry work")

	// Then: a fixed-width vector is returned
	require.NoError(t, err)
	assert.Len(t, embedding, StaticDimensions)
}

func TestStaticEmbedder_Embed_VectorIsNormalized(t *testing.T) {
	// Given: a static embedder
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	// When: I embed text
	embedding, err := embedder.Embed(context.Background(), "retry backoff schedule")
	require.NoError(t, err)

	// Then: vector magnitude is ~1.0 (normalized)
	assert.InDelta(t, 1.0, vectorMagnitude(embedding), 0.001, "vector should be normalized to unit length")
}

func TestStaticEmbedder_Embed_Deterministic(t *testing.T) {
	// Given: a static embedder
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	// When: I embed the same text twice
	first, err := embedder.Embed(context.Background(), "cache eviction policy")
	require.NoError(t, err)
	second, err := embedder.Embed(context.Background(), "cache eviction policy")
	require.NoError(t, err)

	// Then: the vectors are identical
	assert.Equal(t, first, second)
}

func TestStaticEmbedder_Embed_EmptyTextReturnsZeroVector(t *testing.T) {
	// Given: a static embedder
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	// When: I embed whitespace
	embedding, err := embedder.Embed(context.Background(), "   ")

	// Then: a zero vector comes back instead of an error
	require.NoError(t, err)
	assert.Equal(t, make([]float32, StaticDimensions), embedding)
}

// ============================================================================
// Tokenization
// ============================================================================

func TestStaticEmbedder_Embed_SplitsIdentifiers(t *testing.T) {
	// Given: a static embedder
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	// When: I embed camelCase and snake_case forms of the same identifier
	camel, err := embedder.Embed(context.Background(), "parseConfigFile")
	require.NoError(t, err)
	snake, err := embedder.Embed(context.Background(), "parse_config_file")
	require.NoError(t, err)
	other, err := embedder.Embed(context.Background(), "renderProgressBar")
	require.NoError(t, err)

	// Then: the two forms land much closer than an unrelated identifier
	same := CosineSimilarity(camel, snake)
	diff := CosineSimilarity(camel, other)
	assert.Greater(t, same, diff)
	assert.Greater(t, float64(same), 0.8)
}

func TestStaticEmbedder_Embed_FiltersSyntaxStopWords(t *testing.T) {
	// Given: a static embedder
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	// When: I pad a query with language keywords
	plain, err := embedder.Embed(context.Background(), "cache eviction")
	require.NoError(t, err)
	noisy, err := embedder.Embed(context.Background(), "func return cache eviction if else")
	require.NoError(t, err)

	// Then: the padded query stays close to the plain one
	assert.Greater(t, float64(CosineSimilarity(plain, noisy)), 0.5)
}

func TestStaticEmbedder_Embed_SharedVocabularyIncreasesSimilarity(t *testing.T) {
	// Given: a static embedder
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	// When: I embed related and unrelated queries
	a, err := embedder.Embed(context.Background(), "database connection pool size")
	require.NoError(t, err)
	b, err := embedder.Embed(context.Background(), "tune the database connection pool")
	require.NoError(t, err)
	c, err := embedder.Embed(context.Background(), "terminal progress bar rendering")
	require.NoError(t, err)

	// Then: shared vocabulary dominates
	assert.Greater(t, CosineSimilarity(a, b), CosineSimilarity(a, c))
}

// ============================================================================
// Batch Embedding
// ============================================================================

func TestStaticEmbedder_EmbedBatch_MatchesSingleEmbeds(t *testing.T) {
	// Given: a static embedder
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	// When: I embed a batch including an empty entry
	texts := []string{"first query", "second query", ""}
	batch, err := embedder.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	// Then: each result matches the single-text embedding
	for i, text := range texts {
		single, err := embedder.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "batch[%d] differs from single embed", i)
	}
}

func TestStaticEmbedder_EmbedBatch_EmptyInput(t *testing.T) {
	// Given: a static embedder
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	// When: I embed an empty batch
	batch, err := embedder.EmbedBatch(context.Background(), nil)

	// Then: an empty slice is returned
	require.NoError(t, err)
	assert.Empty(t, batch)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestStaticEmbedder_Metadata(t *testing.T) {
	embedder := NewStaticEmbedder()

	assert.Equal(t, StaticDimensions, embedder.Dimensions())
	assert.Equal(t, "static", embedder.ModelName())
	assert.True(t, embedder.Available(context.Background()))
}

func TestStaticEmbedder_Close_RejectsFurtherUse(t *testing.T) {
	// Given: a closed embedder
	embedder := NewStaticEmbedder()
	require.NoError(t, embedder.Close())

	// When: I embed after close
	_, err := embedder.Embed(context.Background(), "text")

	// Then: the call fails and the embedder reports unavailable
	assert.Error(t, err)
	assert.False(t, embedder.Available(context.Background()))
	assert.NoError(t, embedder.Close(), "double close is a no-op")
}

// ============================================================================
// Cosine Similarity
// ============================================================================

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	assert.InDelta(t, 0.0, float64(CosineSimilarity(a, b)), 1e-6)
	assert.InDelta(t, 1.0, float64(CosineSimilarity(a, a)), 1e-6)
	assert.Equal(t, float32(0), CosineSimilarity(a, []float32{1, 0}), "length mismatch yields zero")
	assert.Equal(t, float32(0), CosineSimilarity(nil, nil))
}
