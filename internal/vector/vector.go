// Package vector provides semantic similarity search over the ingested
// knowledge base. Two backends implement the same Index interface: chromem
// (persistent embedded collections, the default) and hnsw (an in-process
// graph over the SQLite docstore). Both map similarity into [0,1] and treat
// an empty index as an empty result, never an error.
package vector

import (
	"context"
	"sort"

	"github.com/ragweaver/ragweaver/internal/rag"
	"github.com/ragweaver/ragweaver/internal/store"
)

// Index is the semantic search surface the retrieval orchestrator uses.
type Index interface {
	// Search returns the n most similar documents to the query. Scores are
	// cosine similarity mapped to [0,1]. An empty index returns an empty
	// slice and nil error.
	Search(ctx context.Context, query string, n int, filter map[string]string) ([]rag.Document, error)

	// HybridSearch merges semantic results with caller-supplied keyword
	// documents, blending scores by vectorWeight (vector) and
	// 1-vectorWeight (keyword). Documents found by both channels sum
	// their weighted scores.
	HybridSearch(ctx context.Context, query string, keywordDocs []rag.Document, n int, vectorWeight float64) ([]rag.Document, error)

	// Add indexes chunks. Embeddings are computed internally.
	Add(ctx context.Context, chunks []*store.Chunk) error

	// Delete removes chunks by ID.
	Delete(ctx context.Context, ids []string) error

	// Count reports how many chunks are indexed.
	Count(ctx context.Context) (int, error)

	// Close flushes and releases the backend.
	Close() error
}

// hybridMerge implements the shared score-blending used by both backends.
// Keyword documents keep their position on collision: first-seen wins for
// identity, scores accumulate.
func hybridMerge(vectorDocs, keywordDocs []rag.Document, n int, vectorWeight float64) []rag.Document {
	if vectorWeight < 0 {
		vectorWeight = 0
	}
	if vectorWeight > 1 {
		vectorWeight = 1
	}
	keywordWeight := 1 - vectorWeight

	merged := make([]rag.Document, 0, len(vectorDocs)+len(keywordDocs))
	index := make(map[string]int, len(vectorDocs)+len(keywordDocs))

	for _, d := range keywordDocs {
		key := d.ID
		if key == "" {
			key = rag.ContentKey(d.Content)
			d.ID = key
		}
		if i, ok := index[key]; ok {
			merged[i].Score += keywordWeight * d.Score
			continue
		}
		d.Score *= keywordWeight
		index[key] = len(merged)
		merged = append(merged, d)
	}

	for _, d := range vectorDocs {
		key := d.ID
		if key == "" {
			key = rag.ContentKey(d.Content)
			d.ID = key
		}
		if i, ok := index[key]; ok {
			merged[i].Score += vectorWeight * d.Score
			if merged[i].VectorScore == 0 {
				merged[i].VectorScore = d.VectorScore
			}
			continue
		}
		d.Score *= vectorWeight
		index[key] = len(merged)
		merged = append(merged, d)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if n > 0 && len(merged) > n {
		merged = merged[:n]
	}
	return merged
}

// chunkMetadata flattens the fields search results need to stay explainable:
// source path, position, and any custom metadata the chunk carried.
func chunkMetadata(c *store.Chunk) map[string]string {
	md := make(map[string]string, len(c.Metadata)+4)
	for k, v := range c.Metadata {
		md[k] = v
	}
	if c.Path != "" {
		md["path"] = c.Path
	}
	if c.Title != "" {
		md["title"] = c.Title
	}
	if c.Kind != "" {
		md["kind"] = c.Kind
	}
	if c.Language != "" {
		md["language"] = c.Language
	}
	return md
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
