package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/ragweaver/ragweaver/internal/embed"
	"github.com/ragweaver/ragweaver/internal/rag"
	"github.com/ragweaver/ragweaver/internal/store"
)

// HNSWIndex pairs an in-process HNSW graph with the SQLite docstore: the
// graph answers nearest-neighbour queries, the docstore turns chunk IDs back
// into content and metadata. It trades chromem's per-document persistence
// for an explicit Save on Close.
type HNSWIndex struct {
	mu        sync.RWMutex
	graph     *store.VectorGraph
	docs      *store.DocStore
	embedder  embed.Embedder
	graphPath string
	dirty     bool
	closed    bool
}

// HNSWConfig configures the hnsw backend.
type HNSWConfig struct {
	// GraphPath is where the graph persists. Empty keeps it in memory.
	GraphPath string

	// Dimensions overrides the embedding width; zero asks the embedder.
	Dimensions int
}

// NewHNSWIndex builds the graph (loading a previous snapshot when present)
// over an open docstore. The docstore is shared, not owned: Close leaves it
// open for other users.
func NewHNSWIndex(cfg HNSWConfig, docs *store.DocStore, embedder embed.Embedder) (*HNSWIndex, error) {
	if docs == nil {
		return nil, fmt.Errorf("hnsw index requires a docstore")
	}
	if embedder == nil {
		return nil, fmt.Errorf("hnsw index requires an embedder")
	}

	dims := cfg.Dimensions
	if dims <= 0 {
		dims = embedder.Dimensions()
	}

	// A previous snapshot pins the dimensionality; embedder changes force
	// a rebuild rather than silently mixing vector widths.
	if cfg.GraphPath != "" {
		if stored, err := store.GraphDimensions(cfg.GraphPath); err == nil && stored > 0 && stored != dims {
			slog.Warn("vector graph dimensions changed, discarding snapshot",
				slog.Int("stored", stored),
				slog.Int("embedder", dims))
			_ = os.Remove(cfg.GraphPath)
		}
	}

	graph, err := store.NewVectorGraph(store.VectorGraphConfig{Dimensions: dims})
	if err != nil {
		return nil, err
	}
	if cfg.GraphPath != "" {
		if _, err := os.Stat(cfg.GraphPath); err == nil {
			if err := graph.Load(cfg.GraphPath); err != nil {
				slog.Warn("vector graph failed to load, starting empty",
					slog.String("path", cfg.GraphPath),
					slog.String("error", err.Error()))
				graph, err = store.NewVectorGraph(store.VectorGraphConfig{Dimensions: dims})
				if err != nil {
					return nil, err
				}
			}
		}
	}

	return &HNSWIndex{
		graph:     graph,
		docs:      docs,
		embedder:  embedder,
		graphPath: cfg.GraphPath,
	}, nil
}

// Add embeds chunks, stores their content, and inserts the vectors.
func (x *HNSWIndex) Add(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return fmt.Errorf("vector index is closed")
	}

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		ids[i] = c.ID
	}
	embeddings, err := x.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	if err := x.docs.Put(ctx, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	if err := x.graph.Add(ctx, ids, embeddings); err != nil {
		return fmt.Errorf("index vectors: %w", err)
	}
	x.dirty = true
	return nil
}

// Search embeds the query, walks the graph, and rehydrates matches from the
// docstore. Matches whose chunk vanished from the docstore are dropped.
func (x *HNSWIndex) Search(ctx context.Context, query string, n int, filter map[string]string) ([]rag.Document, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if n <= 0 || x.graph.Count() == 0 {
		return nil, nil
	}

	embedding, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := x.graph.Search(ctx, embedding, n)
	if err != nil {
		return nil, fmt.Errorf("search graph: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	scores := make(map[string]float64, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
		scores[m.ID] = clampScore(float64(m.Score))
	}
	chunks, err := x.docs.Get(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	byID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	docs := make([]rag.Document, 0, len(matches))
	for _, m := range matches {
		c, ok := byID[m.ID]
		if !ok {
			continue
		}
		if !matchesFilter(c, filter) {
			continue
		}
		doc := rag.NewDocument(c.Content, rag.SourceVector)
		doc.Score = scores[m.ID]
		doc.VectorScore = doc.Score
		md := chunkMetadata(c)
		md["start_line"] = strconv.Itoa(c.StartLine)
		md["end_line"] = strconv.Itoa(c.EndLine)
		doc.Metadata = md
		docs = append(docs, doc)
	}
	return docs, nil
}

// HybridSearch merges semantic neighbours with the caller's keyword hits.
func (x *HNSWIndex) HybridSearch(ctx context.Context, query string, keywordDocs []rag.Document, n int, vectorWeight float64) ([]rag.Document, error) {
	vectorDocs, err := x.Search(ctx, query, n, nil)
	if err != nil {
		return nil, err
	}
	return hybridMerge(vectorDocs, keywordDocs, n, vectorWeight), nil
}

// Delete removes chunks from the graph and the docstore.
func (x *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return fmt.Errorf("vector index is closed")
	}
	if err := x.graph.Delete(ctx, ids); err != nil {
		return err
	}
	if err := x.docs.Delete(ctx, ids); err != nil {
		return err
	}
	x.dirty = true
	return nil
}

// Count reports the number of indexed vectors.
func (x *HNSWIndex) Count(_ context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return 0, fmt.Errorf("vector index is closed")
	}
	return x.graph.Count(), nil
}

// Close saves the graph snapshot when anything changed.
func (x *HNSWIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	if x.graphPath != "" && x.dirty {
		if err := x.graph.Save(x.graphPath); err != nil {
			return fmt.Errorf("save vector graph: %w", err)
		}
	}
	return x.graph.Close()
}

// matchesFilter applies the optional metadata filter to a chunk.
func matchesFilter(c *store.Chunk, filter map[string]string) bool {
	if len(filter) == 0 {
		return true
	}
	md := chunkMetadata(c)
	for k, want := range filter {
		if md[k] != want {
			return false
		}
	}
	return true
}

var _ Index = (*HNSWIndex)(nil)
