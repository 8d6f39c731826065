package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/ragweaver/ragweaver/internal/embed"
	"github.com/ragweaver/ragweaver/internal/rag"
	"github.com/ragweaver/ragweaver/internal/store"
)

// ChromemIndex persists embeddings in a chromem collection. Chromem handles
// on-disk persistence per document, so Add and Delete are durable without an
// explicit save step.
type ChromemIndex struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embed.Embedder
	closed     bool
}

// ChromemConfig configures the chromem backend.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps the index in memory
	// (tests).
	Path string

	// Collection is the collection name, typically "<project>_knowledge".
	Collection string
}

// NewChromemIndex opens or creates the collection. The embedder only runs
// at Add/Search time; construction is cheap.
func NewChromemIndex(cfg ChromemConfig, embedder embed.Embedder) (*ChromemIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("chromem index requires an embedder")
	}
	if cfg.Collection == "" {
		cfg.Collection = "knowledge"
	}

	var db *chromem.DB
	var err error
	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create vector store directory: %w", err)
		}
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			// A corrupted store is derived state; rebuild beats refusing
			// every query.
			slog.Warn("vector store failed to load, starting empty",
				slog.String("path", cfg.Path),
				slog.String("error", err.Error()))
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	// Embeddings are computed by internal/embed before documents reach
	// chromem; the collection-level embedding func must never run.
	noEmbed := func(_ context.Context, _ string) ([]float32, error) {
		return nil, fmt.Errorf("vectors are precomputed; embedding func must not be called")
	}
	col, err := db.GetOrCreateCollection(cfg.Collection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", cfg.Collection, err)
	}

	return &ChromemIndex{db: db, collection: col, embedder: embedder}, nil
}

// Add embeds and upserts chunks into the collection.
func (x *ChromemIndex) Add(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return fmt.Errorf("vector index is closed")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := x.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		md := chunkMetadata(c)
		md["start_line"] = strconv.Itoa(c.StartLine)
		md["end_line"] = strconv.Itoa(c.EndLine)
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  md,
			Embedding: embeddings[i],
		}
	}
	if err := x.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

// Search embeds the query and returns the n nearest chunks as documents
// tagged source=vector.
func (x *ChromemIndex) Search(ctx context.Context, query string, n int, filter map[string]string) ([]rag.Document, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if n <= 0 {
		return nil, nil
	}

	// chromem rejects nResults above the collection size.
	count := x.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if n > count {
		n = count
	}

	embedding, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := x.collection.QueryEmbedding(ctx, embedding, n, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	docs := make([]rag.Document, 0, len(results))
	for _, r := range results {
		doc := rag.NewDocument(r.Content, rag.SourceVector)
		doc.Score = clampScore(float64(r.Similarity))
		doc.VectorScore = doc.Score
		if len(r.Metadata) > 0 {
			doc.Metadata = r.Metadata
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// HybridSearch merges semantic neighbours with the caller's keyword hits.
func (x *ChromemIndex) HybridSearch(ctx context.Context, query string, keywordDocs []rag.Document, n int, vectorWeight float64) ([]rag.Document, error) {
	vectorDocs, err := x.Search(ctx, query, n, nil)
	if err != nil {
		return nil, err
	}
	return hybridMerge(vectorDocs, keywordDocs, n, vectorWeight), nil
}

// Delete removes chunks by ID. Unknown IDs are ignored.
func (x *ChromemIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return fmt.Errorf("vector index is closed")
	}
	if err := x.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// Count reports the number of indexed chunks.
func (x *ChromemIndex) Count(_ context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return 0, fmt.Errorf("vector index is closed")
	}
	return x.collection.Count(), nil
}

// Close marks the index closed. Chromem persists incrementally, so there is
// nothing to flush.
func (x *ChromemIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	return nil
}

var _ Index = (*ChromemIndex)(nil)
