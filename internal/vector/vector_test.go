package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweaver/ragweaver/internal/embed"
	"github.com/ragweaver/ragweaver/internal/rag"
	"github.com/ragweaver/ragweaver/internal/store"
)

func testChunks() []*store.Chunk {
	return []*store.Chunk{
		store.NewChunk("docs/cache.md", "The query cache stores answers keyed by a SHA-256 content hash with per-intent TTLs.", 1),
		store.NewChunk("docs/rerank.md", "Reranking runs in two stages: a cheap score filter, then a cross encoder over the survivors.", 1),
		store.NewChunk("docs/boost.md", "Temporal boost multiplies scores of recently updated documents so fresh facts rank first.", 1),
	}
}

func newTestChromem(t *testing.T) *ChromemIndex {
	t.Helper()
	idx, err := NewChromemIndex(ChromemConfig{Collection: "test"}, embed.NewStaticEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

// =============================================================================
// Chromem backend
// =============================================================================

func TestChromemIndex_EmptyIndexReturnsNoResults(t *testing.T) {
	idx := newTestChromem(t)

	docs, err := idx.Search(context.Background(), "anything at all", 5, nil)

	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestChromemIndex_AddThenSearch(t *testing.T) {
	idx := newTestChromem(t)
	require.NoError(t, idx.Add(context.Background(), testChunks()))

	docs, err := idx.Search(context.Background(), "query cache TTL hash", 2, nil)

	require.NoError(t, err)
	require.NotEmpty(t, docs)
	for _, d := range docs {
		assert.Equal(t, rag.SourceVector, d.Source)
		assert.NotEmpty(t, d.ID)
		assert.GreaterOrEqual(t, d.Score, 0.0)
		assert.LessOrEqual(t, d.Score, 1.0)
		assert.Equal(t, d.Score, d.VectorScore)
	}
	// The cache chunk shares the most vocabulary with the query.
	assert.Contains(t, docs[0].Content, "cache")
}

func TestChromemIndex_SearchClampsNToCollectionSize(t *testing.T) {
	idx := newTestChromem(t)
	require.NoError(t, idx.Add(context.Background(), testChunks()))

	// chromem rejects n > count; the index must clamp instead of failing.
	docs, err := idx.Search(context.Background(), "stages", 50, nil)

	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestChromemIndex_CountAndDelete(t *testing.T) {
	idx := newTestChromem(t)
	chunks := testChunks()
	require.NoError(t, idx.Add(context.Background(), chunks))

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, idx.Delete(context.Background(), []string{chunks[0].ID}))
	n, err = idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestChromemIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	embedder := embed.NewStaticEmbedder()

	idx, err := NewChromemIndex(ChromemConfig{Path: dir, Collection: "persist"}, embedder)
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), testChunks()))
	require.NoError(t, idx.Close())

	reopened, err := NewChromemIndex(ChromemConfig{Path: dir, Collection: "persist"}, embedder)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

// =============================================================================
// HNSW backend
// =============================================================================

func newTestHNSW(t *testing.T) *HNSWIndex {
	t.Helper()
	docs, err := store.OpenDocStore(store.DocStoreConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	idx, err := NewHNSWIndex(HNSWConfig{}, docs, embed.NewStaticEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestHNSWIndex_EmptyIndexReturnsNoResults(t *testing.T) {
	idx := newTestHNSW(t)

	docs, err := idx.Search(context.Background(), "anything", 5, nil)

	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestHNSWIndex_AddThenSearch(t *testing.T) {
	idx := newTestHNSW(t)
	require.NoError(t, idx.Add(context.Background(), testChunks()))

	docs, err := idx.Search(context.Background(), "cross encoder rerank stages", 3, nil)

	require.NoError(t, err)
	require.NotEmpty(t, docs)
	for _, d := range docs {
		assert.Equal(t, rag.SourceVector, d.Source)
		assert.NotEmpty(t, d.Metadata["path"])
	}
}

func TestHNSWIndex_FilterByMetadata(t *testing.T) {
	idx := newTestHNSW(t)
	require.NoError(t, idx.Add(context.Background(), testChunks()))

	docs, err := idx.Search(context.Background(), "scores", 3, map[string]string{"path": "docs/boost.md"})

	require.NoError(t, err)
	for _, d := range docs {
		assert.Equal(t, "docs/boost.md", d.Metadata["path"])
	}
}

// =============================================================================
// Hybrid merge
// =============================================================================

func TestHybridMerge_BlendsScoresByWeight(t *testing.T) {
	shared := rag.NewDocument("shared content found by both channels", rag.SourceVector)
	shared.Score = 1.0
	shared.VectorScore = 1.0

	keywordOnly := rag.NewDocument("content only the keyword scan found", rag.SourceKeyword)
	keywordOnly.Score = 0.6

	keywordShared := shared
	keywordShared.Source = rag.SourceKeyword
	keywordShared.Score = 0.5
	keywordShared.VectorScore = 0

	merged := hybridMerge(
		[]rag.Document{shared},
		[]rag.Document{keywordShared, keywordOnly},
		10, 0.7,
	)

	require.Len(t, merged, 2)
	// Shared doc: 0.3*0.5 + 0.7*1.0 = 0.85; keyword-only: 0.3*0.6 = 0.18.
	assert.InDelta(t, 0.85, merged[0].Score, 1e-9)
	assert.InDelta(t, 0.18, merged[1].Score, 1e-9)
	// The vector score survives the merge for the reranker.
	assert.Equal(t, 1.0, merged[0].VectorScore)
}

func TestHybridMerge_FirstSeenWinsOnIdentity(t *testing.T) {
	kw := rag.NewDocument("duplicate content", rag.SourceKeyword)
	kw.Score = 0.5
	vec := rag.NewDocument("duplicate content", rag.SourceVector)
	vec.Score = 0.9

	merged := hybridMerge([]rag.Document{vec}, []rag.Document{kw}, 10, 0.5)

	require.Len(t, merged, 1)
	// Keyword docs merge first, so the surviving document keeps its source.
	assert.Equal(t, rag.SourceKeyword, merged[0].Source)
	assert.InDelta(t, 0.7, merged[0].Score, 1e-9)
}

func TestHybridMerge_RespectsLimit(t *testing.T) {
	var vecDocs []rag.Document
	for _, content := range []string{"alpha", "beta", "gamma", "delta"} {
		d := rag.NewDocument(content, rag.SourceVector)
		d.Score = 0.5
		vecDocs = append(vecDocs, d)
	}

	merged := hybridMerge(vecDocs, nil, 2, 1.0)

	assert.Len(t, merged, 2)
}
