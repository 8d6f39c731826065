package retrieve

import (
	"context"
	"math"
	"time"

	"github.com/ragweaver/ragweaver/internal/rag"
)

// searchVector scans the query variants in order, stopping early once
// enough strong hits have accumulated. With a lexical index attached each
// variant runs as a hybrid search.
func (o *Orchestrator) searchVector(ctx context.Context, q rag.Query, strat rag.Strategy) ([]rag.Document, error) {
	var out []rag.Document
	seen := make(map[string]struct{})
	strong := 0

	for _, variant := range q.Variants() {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		var docs []rag.Document
		var err error
		if o.lexical != nil {
			var keywordDocs []rag.Document
			keywordDocs, err = o.lexical.Search(ctx, variant, strat.VectorNResults)
			if err != nil {
				o.logger.Debug("lexical_search_failed", "error", err)
				keywordDocs = nil
			}
			docs, err = o.vector.HybridSearch(ctx, variant, keywordDocs, strat.VectorNResults, o.cfg.HybridVectorWeight)
		} else {
			docs, err = o.vector.Search(ctx, variant, strat.VectorNResults, nil)
		}
		if err != nil {
			return out, err
		}

		for _, d := range docs {
			if _, dup := seen[d.ID]; dup {
				continue
			}
			seen[d.ID] = struct{}{}
			out = append(out, d)
			if d.Score > o.cfg.EarlyStopScore {
				strong++
			}
		}
		if strong >= o.cfg.EarlyStopCount {
			o.logger.Debug("vector_early_stop",
				"strong_hits", strong,
				"documents", len(out))
			break
		}
	}
	return out, nil
}

// searchMemory queries the memory agent with the original question plus the
// top extracted concepts. Concept query failures degrade to partial output.
func (o *Orchestrator) searchMemory(ctx context.Context, q rag.Query, strat rag.Strategy) ([]rag.Document, error) {
	docs, err := o.memory.Search(ctx, q.Text, strat.MemoryLimit)
	if err != nil {
		return nil, err
	}

	concepts := q.Analysis.Concepts
	if len(concepts) > strat.MemoryConcepts {
		concepts = concepts[:strat.MemoryConcepts]
	}
	for _, concept := range concepts {
		more, err := o.memory.Search(ctx, concept, conceptMemoryLimit)
		if err != nil {
			o.logger.Debug("memory_concept_search_failed",
				"concept", concept,
				"error", err)
			continue
		}
		docs = append(docs, more...)
	}
	return docs, nil
}

// searchTemporal re-queries memory for the original question and boosts
// each hit by recency.
func (o *Orchestrator) searchTemporal(ctx context.Context, q rag.Query, strat rag.Strategy) ([]rag.Document, error) {
	docs, err := o.memory.Search(ctx, q.Text, temporalMemoryLimit)
	if err != nil {
		return nil, err
	}

	halfLife := float64(strat.HalfLifeDays)
	if halfLife <= 0 {
		halfLife = defaultHalfLifeDays
	}
	now := o.now()
	for i := range docs {
		docs[i].TemporalBoost = temporalBoost(docs[i], now, halfLife)
		docs[i].Source = rag.SourceTemporal
	}
	return docs, nil
}

// searchCode prefers the symbol index and falls back to a filesystem scan.
func (o *Orchestrator) searchCode(_ context.Context, q rag.Query, strat rag.Strategy) ([]rag.Document, error) {
	queries := append([]string{q.Text}, q.Analysis.Concepts...)
	if o.code != nil && o.code.Available() {
		return o.code.Search(queries, strat.CodeLimit), nil
	}
	if o.fallback != nil {
		return o.fallback.Search(queries, strat.CodeLimit), nil
	}
	return nil, nil
}

// docTimeFormats are tried in order when parsing memory timestamps.
var docTimeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// temporalBoost weighs a document by the age of its last update. Fresh
// documents get a step boost; older ones decay exponentially toward 1.
// Backtest results stay interesting longer than ordinary observations.
func temporalBoost(doc rag.Document, now time.Time, halfLifeDays float64) float64 {
	ts := docTimestamp(doc.Metadata)
	boost := 1.0
	if !ts.IsZero() {
		ageDays := now.Sub(ts).Hours() / 24
		switch {
		case ageDays <= 1:
			boost = 3.0
		case ageDays <= 3:
			boost = 2.0
		case ageDays <= 7:
			boost = 1.5
		default:
			boost = 1 + math.Exp(-ageDays/halfLifeDays)
		}
	}
	if doc.Metadata["type"] == "backtest_result" {
		boost *= 1.3
	}
	return boost
}

// docTimestamp parses the document's update time, preferring updatedAt.
func docTimestamp(metadata map[string]string) time.Time {
	for _, key := range []string{"updatedAt", "createdAt"} {
		raw, ok := metadata[key]
		if !ok || raw == "" {
			continue
		}
		for _, layout := range docTimeFormats {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}
