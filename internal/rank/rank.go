// Package rank implements two-stage re-ranking: a cheap heuristic cut over
// the retrieved candidates, then cross-encoder scoring of the survivors
// blended with vector similarity, recency and exact-match signals.
package rank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	ragerr "github.com/ragweaver/ragweaver/internal/errors"
	"github.com/ragweaver/ragweaver/internal/rag"
)

const (
	defaultVectorWeight    = 0.2
	defaultExactMatchBonus = 1.2
	defaultStageOneFactor  = 2
	defaultStageOneMin     = 50

	// pairContentLimit bounds the document side of a cross-encoder pair.
	pairContentLimit = 1000
)

// Config tunes the two stages. Zero values fall back to defaults.
type Config struct {
	// VectorWeight blends the vector similarity into the encoder score.
	VectorWeight float64
	// ExactMatchBonus multiplies scores of documents containing the
	// query verbatim.
	ExactMatchBonus float64
	// StageOneFactor and StageOneMin size the stage-one cut:
	// max(StageOneMin, StageOneFactor*topK) candidates survive.
	StageOneFactor int
	StageOneMin    int
}

func (c Config) withDefaults() Config {
	if c.VectorWeight <= 0 {
		c.VectorWeight = defaultVectorWeight
	}
	if c.ExactMatchBonus <= 0 {
		c.ExactMatchBonus = defaultExactMatchBonus
	}
	if c.StageOneFactor <= 0 {
		c.StageOneFactor = defaultStageOneFactor
	}
	if c.StageOneMin <= 0 {
		c.StageOneMin = defaultStageOneMin
	}
	return c
}

// Reranker orders retrieved documents by relevance to the query.
type Reranker struct {
	encoder CrossEncoder
	cfg     Config
	logger  *slog.Logger
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reranker) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New builds a Reranker. A nil encoder is allowed and keeps the heuristic
// stage-one ordering.
func New(encoder CrossEncoder, cfg Config, opts ...Option) *Reranker {
	r := &Reranker{
		encoder: encoder,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank scores the candidates and returns the top-k by final score. The
// input slice is not modified. Equal final scores keep their stage-one
// order. Encoder trouble degrades to the heuristic ordering; only caller
// cancellation and encoder contract violations are errors.
func (r *Reranker) Rerank(ctx context.Context, query string, docs []rag.Document, topK int) ([]rag.Document, error) {
	if len(docs) == 0 {
		return []rag.Document{}, nil
	}
	if topK <= 0 {
		topK = len(docs)
	}

	kept := r.stageOne(docs, topK)

	scores, err := r.stageTwo(ctx, query, kept)
	if err != nil {
		return nil, err
	}

	loweredQuery := strings.ToLower(query)
	for i := range kept {
		final := kept[i].Score + kept[i].VectorScore
		if scores != nil {
			final = scores[i] + r.cfg.VectorWeight*kept[i].VectorScore
		}
		if boost := kept[i].TemporalBoost; boost > 0 {
			final *= boost
		}
		if strings.Contains(strings.ToLower(kept[i].Content), loweredQuery) {
			final *= r.cfg.ExactMatchBonus
		}
		kept[i].FinalScore = final
	}

	sort.SliceStable(kept, func(a, b int) bool {
		return kept[a].FinalScore > kept[b].FinalScore
	})
	if len(kept) > topK {
		kept = kept[:topK]
	}
	return kept, nil
}

// stageOne copies the candidates, orders them by the cheap
// score+vector_score key and cuts the tail.
func (r *Reranker) stageOne(docs []rag.Document, topK int) []rag.Document {
	kept := make([]rag.Document, len(docs))
	copy(kept, docs)

	sort.SliceStable(kept, func(a, b int) bool {
		return kept[a].Score+kept[a].VectorScore > kept[b].Score+kept[b].VectorScore
	})

	limit := r.cfg.StageOneMin
	if byFactor := r.cfg.StageOneFactor * topK; byFactor > limit {
		limit = byFactor
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// stageTwo asks the cross-encoder for pair scores. A nil return with nil
// error means the encoder is out of play and stage-one scores stand.
func (r *Reranker) stageTwo(ctx context.Context, query string, docs []rag.Document) ([]float64, error) {
	if r.encoder == nil {
		return nil, nil
	}
	if !r.encoder.Available(ctx) {
		r.logger.Warn("cross_encoder_unavailable", "documents", len(docs))
		return nil, nil
	}

	pairs := make([]string, len(docs))
	for i, d := range docs {
		pairs[i] = head(d.Content, pairContentLimit)
	}

	scores, err := r.encoder.Score(ctx, query, pairs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("cross_encoder_failed", "error", err)
		return nil, nil
	}
	if len(scores) != len(pairs) {
		return nil, ragerr.New(ragerr.ErrCodeScoreMismatch,
			fmt.Sprintf("cross-encoder returned %d scores for %d documents", len(scores), len(pairs)), nil)
	}
	return scores, nil
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
