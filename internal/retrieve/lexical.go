package retrieve

import (
	"context"
	"fmt"

	"github.com/ragweaver/ragweaver/internal/rag"
	"github.com/ragweaver/ragweaver/internal/store"
)

// BleveLexical adapts the chunk keyword index plus the document store into
// the Lexical surface hybrid search consumes. BM25 scores are unbounded, so
// each round is normalized by its best hit before blending with cosine
// similarities.
type BleveLexical struct {
	index *store.BleveIndex
	docs  *store.DocStore
}

// NewBleveLexical wires a keyword index to its backing document store.
func NewBleveLexical(index *store.BleveIndex, docs *store.DocStore) (*BleveLexical, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: keyword index is required", ErrNilDependency)
	}
	if docs == nil {
		return nil, fmt.Errorf("%w: document store is required", ErrNilDependency)
	}
	return &BleveLexical{index: index, docs: docs}, nil
}

// Search resolves BM25 hits to full chunks and returns them as keyword
// documents with scores in [0,1].
func (b *BleveLexical) Search(ctx context.Context, query string, limit int) ([]rag.Document, error) {
	hits, err := b.index.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	best := 0.0
	for i, h := range hits {
		ids[i] = h.ChunkID
		scores[h.ChunkID] = h.Score
		if h.Score > best {
			best = h.Score
		}
	}

	chunks, err := b.docs.Get(ctx, ids)
	if err != nil {
		return nil, err
	}

	docs := make([]rag.Document, 0, len(chunks))
	for _, c := range chunks {
		doc := rag.Document{
			ID:       c.ID,
			Content:  c.Content,
			Source:   rag.SourceKeyword,
			Metadata: lexicalMetadata(c),
		}
		if best > 0 {
			doc.Score = scores[c.ID] / best
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func lexicalMetadata(c *store.Chunk) map[string]string {
	md := make(map[string]string, 3)
	if c.Path != "" {
		md["path"] = c.Path
	}
	if c.Title != "" {
		md["title"] = c.Title
	}
	if c.Language != "" {
		md["language"] = c.Language
	}
	return md
}

// Ensure BleveLexical implements the Lexical surface.
var _ Lexical = (*BleveLexical)(nil)
