// Package pipeline drives a question through the full answering flow:
// analyze, plan, probe the cache, retrieve, rerank, compress, synthesize,
// then persist and log the run. The state machine itself is sequential;
// fan-out happens inside the analyzer and the retrieval orchestrator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragweaver/ragweaver/internal/answer"
	"github.com/ragweaver/ragweaver/internal/cache"
	"github.com/ragweaver/ragweaver/internal/config"
	ragerr "github.com/ragweaver/ragweaver/internal/errors"
	"github.com/ragweaver/ragweaver/internal/rag"
	"github.com/ragweaver/ragweaver/internal/retrieve"
	"github.com/ragweaver/ragweaver/internal/trace"
)

// ErrNilDependency is returned by New when a required stage is missing.
var ErrNilDependency = errors.New("pipeline: nil dependency")

// ErrNoUpdater is returned by the ingestion hooks when no Updater was wired.
var ErrNoUpdater = errors.New("pipeline: no updater configured")

// Analyzer extracts concepts, expansions, temporal scope, and intent.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (rag.Analysis, error)
}

// Planner turns an analyzed query into a retrieval strategy.
type Planner interface {
	Plan(q rag.Query) rag.Strategy
}

// PlannerFunc adapts a plain function to the Planner interface.
type PlannerFunc func(q rag.Query) rag.Strategy

func (f PlannerFunc) Plan(q rag.Query) rag.Strategy { return f(q) }

// Retriever fans a query out to the enabled sources and merges the results.
type Retriever interface {
	Retrieve(ctx context.Context, q rag.Query, strat rag.Strategy) (*retrieve.Result, error)
}

// Reranker orders candidate documents against the query.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []rag.Document, topK int) ([]rag.Document, error)
}

// Compressor assembles ranked documents into a bounded context string.
// It returns the context, the characters used, and the documents included.
type Compressor interface {
	Compress(docs []rag.Document) (string, int, int)
}

// Synthesizer produces the final answer from the compressed context.
type Synthesizer interface {
	Synthesize(ctx context.Context, in answer.Input) (answer.Output, error)
}

// Cache is the slice of the query cache the engine needs.
type Cache interface {
	Enabled() bool
	Get(key string) (rag.RunRecord, bool)
	Set(key string, payload rag.RunRecord, ttlSeconds int) error
	Entries() int
}

// Monitor records per-run telemetry and serves the rolling aggregates.
type Monitor interface {
	Record(rec rag.RunRecord)
	Metrics() (trace.Metrics, error)
}

// Feedback receives completed runs for later learning passes over the
// question/answer history. The default implementation discards them.
type Feedback interface {
	RecordInteraction(rec rag.RunRecord)
}

type noopFeedback struct{}

func (noopFeedback) RecordInteraction(rag.RunRecord) {}

// Updater re-ingests project knowledge. The concrete implementation lives
// in the ingest package; the engine only forwards to it.
type Updater interface {
	UpdateVectorStore(ctx context.Context) error
	UpdateLocalKnowledge(ctx context.Context) error
}

// VectorStore is the slice of the vector backend the engine needs.
type VectorStore interface {
	Count(ctx context.Context) (int, error)
}

// MemoryProbe reports whether the memory sidecar is reachable.
type MemoryProbe interface {
	Enabled() bool
}

// LexicalCounter reports the BM25 index document count.
type LexicalCounter interface {
	Count() (int, error)
}

// Sizer reports entry counts for in-process indexes.
type Sizer interface {
	Size() int
}

// Engine owns one query pipeline: the six stages plus the optional cache,
// tracer, monitor, and feedback sinks around them.
type Engine struct {
	vector      VectorStore
	memory      MemoryProbe
	analyzer    Analyzer
	planner     Planner
	retriever   Retriever
	reranker    Reranker
	compressor  Compressor
	synthesizer Synthesizer

	cache    Cache
	tracer   *trace.Tracer
	monitor  Monitor
	feedback Feedback
	updater  Updater
	lexical  LexicalCounter
	symbols  Sizer
	graph    Sizer

	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithCache attaches the query cache.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithTracer attaches the stage tracer.
func WithTracer(t *trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMonitor attaches the run monitor.
func WithMonitor(m Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

// WithFeedback attaches an interaction sink for completed runs.
func WithFeedback(f Feedback) Option {
	return func(e *Engine) {
		if f != nil {
			e.feedback = f
		}
	}
}

// WithUpdater wires the ingestion hooks.
func WithUpdater(u Updater) Option {
	return func(e *Engine) { e.updater = u }
}

// WithLexical attaches the BM25 index for stats reporting.
func WithLexical(c LexicalCounter) Option {
	return func(e *Engine) { e.lexical = c }
}

// WithSymbols attaches the symbol index for stats reporting.
func WithSymbols(s Sizer) Option {
	return func(e *Engine) { e.symbols = s }
}

// WithGraph attaches the entity graph for stats reporting.
func WithGraph(g Sizer) Option {
	return func(e *Engine) { e.graph = g }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New builds an engine from its stages. The vector store, the six stage
// components, and the config are required; memory may be nil when the
// sidecar is disabled.
func New(
	vector VectorStore,
	memory MemoryProbe,
	analyzer Analyzer,
	planner Planner,
	orchestrator Retriever,
	reranker Reranker,
	compressor Compressor,
	synthesizer Synthesizer,
	cfg *config.Config,
	opts ...Option,
) (*Engine, error) {
	if vector == nil || analyzer == nil || planner == nil || orchestrator == nil ||
		reranker == nil || compressor == nil || synthesizer == nil || cfg == nil {
		return nil, ErrNilDependency
	}
	e := &Engine{
		vector:      vector,
		memory:      memory,
		analyzer:    analyzer,
		planner:     planner,
		retriever:   orchestrator,
		reranker:    reranker,
		compressor:  compressor,
		synthesizer: synthesizer,
		cfg:         cfg,
		feedback:    noopFeedback{},
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Ask runs one query through the pipeline and returns its run record.
// Every terminal path, including failures past analysis, produces a
// record; the record is logged to the monitor and the trace is closed
// before returning.
func (e *Engine) Ask(ctx context.Context, text string) (*rag.RunRecord, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ragerr.New(ragerr.ErrCodeQueryEmpty, "query is empty", nil)
	}

	started := e.now()
	var tr *trace.Trace
	if e.tracer != nil {
		tr = e.tracer.StartTrace("ask", text)
		ctx = trace.NewContext(ctx, tr)
	}

	rec, err := e.run(ctx, text, started)

	if rec != nil {
		if e.monitor != nil {
			e.monitor.Record(*rec)
		}
		if err == nil && !rec.FromCache {
			e.feedback.RecordInteraction(*rec)
		}
	}
	if e.tracer != nil {
		e.tracer.EndTrace(tr, runSummary(rec, err))
	}
	return rec, err
}

// run is the state machine body. It returns a record on every path that
// gets past analysis; Ask handles the terminal bookkeeping.
func (e *Engine) run(ctx context.Context, text string, started time.Time) (*rag.RunRecord, error) {
	span := trace.SpanFromContext(ctx, "analyze")
	analysis, err := e.analyzer.Analyze(ctx, text)
	span.End(err)
	if err != nil {
		return e.failure(text, rag.IntentGeneral, started, "analyze", err)
	}

	q := rag.Query{Text: text, Analysis: analysis}

	span = trace.SpanFromContext(ctx, "plan")
	strat := e.planner.Plan(q)
	span.SetAttr("mode", string(strat.Mode))
	span.SetAttr("retrievers", strat.EnabledRetrievers())
	span.End(nil)

	var key string
	if e.cache != nil && e.cache.Enabled() {
		key = e.cacheKey(text, analysis.Intent, strat)
		span = trace.SpanFromContext(ctx, "cache_probe")
		hit, ok := e.cache.Get(key)
		span.SetAttr("hit", ok)
		span.End(nil)
		if ok {
			hit.FromCache = true
			hit.ElapsedSec = e.since(started)
			e.logger.Info("cache_hit",
				"query", head(text, 80),
				"confidence", hit.Confidence)
			return &hit, nil
		}
	}

	if strat.Mode == rag.ModeNone {
		span = trace.SpanFromContext(ctx, "synthesize")
		out, err := e.synthesizer.Synthesize(ctx, answer.Input{
			Query:    text,
			Intent:   analysis.Intent,
			Concepts: analysis.Concepts,
			Mode:     rag.ModeNone,
		})
		span.End(err)
		if err != nil {
			return e.failure(text, analysis.Intent, started, "synthesize", err)
		}
		rec := e.record(text, analysis.Intent, out, 0, 0, 0, started)
		e.persist(key, rec, analysis.Intent)
		return rec, nil
	}

	span = trace.SpanFromContext(ctx, "retrieve")
	res, err := e.retriever.Retrieve(ctx, q, strat)
	if err != nil {
		span.End(err)
		return e.failure(text, analysis.Intent, started, "retrieve", err)
	}
	span.SetAttr("documents", len(res.Documents))
	if len(res.Warnings) > 0 {
		span.SetAttr("warnings", res.Warnings)
	}
	span.End(nil)

	if len(res.Documents) == 0 {
		e.logger.Info("no_documents", "query", head(text, 80))
		out := answer.Output{Answer: rag.NoInformationAnswer}
		rec := e.record(text, analysis.Intent, out, 0, 0, 0, started)
		e.persist(key, rec, analysis.Intent)
		return rec, nil
	}

	span = trace.SpanFromContext(ctx, "rerank")
	ranked, err := e.reranker.Rerank(ctx, text, res.Documents, strat.TopK)
	span.End(err)
	if err != nil {
		return e.failure(text, analysis.Intent, started, "rerank", err)
	}
	if len(ranked) > len(res.Documents) {
		err := ragerr.InternalError(
			fmt.Sprintf("reranker returned %d documents from %d candidates", len(ranked), len(res.Documents)), nil)
		return e.failure(text, analysis.Intent, started, "rerank", err)
	}

	span = trace.SpanFromContext(ctx, "compress")
	contextText, contextChars, included := e.compressor.Compress(ranked)
	span.SetAttr("chars", contextChars)
	span.SetAttr("included", included)
	span.End(nil)
	if max := e.cfg.Context.MaxChars; max > 0 && contextChars > max {
		err := ragerr.InternalError(
			fmt.Sprintf("compressed context %d chars exceeds budget %d", contextChars, max), nil)
		return e.failure(text, analysis.Intent, started, "compress", err)
	}

	span = trace.SpanFromContext(ctx, "synthesize")
	out, err := e.synthesizer.Synthesize(ctx, answer.Input{
		Query:     text,
		Intent:    analysis.Intent,
		Concepts:  analysis.Concepts,
		Context:   contextText,
		Retrieved: len(res.Documents),
		Reranked:  len(ranked),
		Mode:      strat.Mode,
	})
	span.End(err)
	if err != nil {
		return e.failure(text, analysis.Intent, started, "synthesize", err)
	}

	rec := e.record(text, analysis.Intent, out, len(res.Documents), len(ranked), contextChars, started)
	e.persist(key, rec, analysis.Intent)
	e.logger.Info("ask_completed",
		"intent", string(analysis.Intent),
		"retrieved", rec.Retrieved,
		"reranked", rec.Reranked,
		"context_chars", rec.ContextChars,
		"confidence", rec.Confidence,
		"elapsed_sec", rec.ElapsedSec)
	return rec, nil
}

// BatchResult pairs one batch query with its outcome.
type BatchResult struct {
	Query  string
	Record *rag.RunRecord
	Err    error
}

// BatchAsk runs queries concurrently on a bounded pool. Failures are
// isolated per query; the returned slice is index-aligned with the input.
func (e *Engine) BatchAsk(ctx context.Context, queries []string) []BatchResult {
	results := make([]BatchResult, len(queries))
	if len(queries) == 0 {
		return results
	}
	var g errgroup.Group
	g.SetLimit(min(len(queries), 10))
	for i, q := range queries {
		g.Go(func() error {
			rec, err := e.Ask(ctx, q)
			results[i] = BatchResult{Query: q, Record: rec, Err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

// ComponentStats is a point-in-time snapshot across the engine's parts.
type ComponentStats struct {
	Project       string                     `json:"project"`
	VectorChunks  int                        `json:"vector_chunks"`
	LexicalDocs   int                        `json:"lexical_docs"`
	SymbolEntries int                        `json:"symbol_entries"`
	GraphEntities int                        `json:"graph_entities"`
	MemoryEnabled bool                       `json:"memory_enabled"`
	CacheEnabled  bool                       `json:"cache_enabled"`
	CacheEntries  int                        `json:"cache_entries"`
	Runs          trace.Metrics              `json:"runs"`
	Stages        map[string]trace.SpanStats `json:"stages,omitempty"`
}

// Stats gathers per-component counts. Component failures degrade to zero
// values rather than failing the call.
func (e *Engine) Stats(ctx context.Context) ComponentStats {
	stats := ComponentStats{Project: e.cfg.Project}
	if n, err := e.vector.Count(ctx); err != nil {
		e.logger.Warn("vector_count_failed", "error", err)
	} else {
		stats.VectorChunks = n
	}
	if e.lexical != nil {
		if n, err := e.lexical.Count(); err == nil {
			stats.LexicalDocs = n
		}
	}
	if e.symbols != nil {
		stats.SymbolEntries = e.symbols.Size()
	}
	if e.graph != nil {
		stats.GraphEntities = e.graph.Size()
	}
	if e.memory != nil {
		stats.MemoryEnabled = e.memory.Enabled()
	}
	if e.cache != nil {
		stats.CacheEnabled = e.cache.Enabled()
		stats.CacheEntries = e.cache.Entries()
	}
	if e.monitor != nil {
		if m, err := e.monitor.Metrics(); err == nil {
			stats.Runs = m
		}
	}
	if e.tracer != nil && e.tracer.Enabled() {
		if stages, err := e.tracer.Summary(); err == nil && len(stages) > 0 {
			stats.Stages = stages
		}
	}
	return stats
}

// UpdateVectorStore re-ingests the knowledge sources into the vector and
// keyword indexes.
func (e *Engine) UpdateVectorStore(ctx context.Context) error {
	if e.updater == nil {
		return ErrNoUpdater
	}
	return e.updater.UpdateVectorStore(ctx)
}

// UpdateLocalKnowledge rebuilds the symbol cache and the entity graph.
func (e *Engine) UpdateLocalKnowledge(ctx context.Context) error {
	if e.updater == nil {
		return ErrNoUpdater
	}
	return e.updater.UpdateLocalKnowledge(ctx)
}

// failure builds the error-sentinel record for a failed stage. The record
// still flows to the monitor and the trace so failed runs stay visible.
func (e *Engine) failure(text string, intent rag.Intent, started time.Time, stage string, cause error) (*rag.RunRecord, error) {
	e.logger.Error("pipeline_stage_failed", "stage", stage, "error", cause)
	rec := &rag.RunRecord{
		Query:      text,
		Answer:     fmt.Sprintf("Error generating answer: %v", cause),
		Intent:     intent,
		ElapsedSec: e.since(started),
		Project:    e.cfg.Project,
		Timestamp:  e.now().UTC().Format(time.RFC3339),
	}
	return rec, ragerr.New(ragerr.ErrCodePipelineStage, fmt.Sprintf("%s stage failed", stage), cause)
}

func (e *Engine) record(text string, intent rag.Intent, out answer.Output, retrieved, reranked, contextChars int, started time.Time) *rag.RunRecord {
	return &rag.RunRecord{
		Query:        text,
		Answer:       out.Answer,
		Intent:       intent,
		Retrieved:    retrieved,
		Reranked:     reranked,
		ContextChars: contextChars,
		Confidence:   out.Confidence,
		ElapsedSec:   e.since(started),
		Project:      e.cfg.Project,
		Timestamp:    e.now().UTC().Format(time.RFC3339),
	}
}

// persist writes the record through the cache with the per-intent TTL.
// Cache write failures are logged and absorbed.
func (e *Engine) persist(key string, rec *rag.RunRecord, intent rag.Intent) {
	if e.cache == nil || !e.cache.Enabled() || key == "" {
		return
	}
	ttl := int(e.cfg.Cache.TTLFor(string(intent)).Seconds())
	rec.CacheTTL = ttl
	if err := e.cache.Set(key, *rec, ttl); err != nil {
		e.logger.Warn("cache_write_failed", "error", err)
	}
}

func (e *Engine) cacheKey(text string, intent rag.Intent, strat rag.Strategy) string {
	return cache.Key(cache.KeyParams{
		Project:         e.cfg.Project,
		Query:           text,
		Intent:          intent,
		TopK:            strat.TopK,
		ContextMaxChars: e.cfg.Context.MaxChars,
		UseVector:       strat.UseVector,
		UseMemory:       strat.UseMemory,
		UseRecent:       strat.UseRecent,
	})
}

func (e *Engine) since(started time.Time) float64 {
	return e.now().Sub(started).Seconds()
}

func runSummary(rec *rag.RunRecord, err error) map[string]any {
	summary := map[string]any{"ok": err == nil}
	if rec != nil {
		summary["confidence"] = rec.Confidence
		summary["retrieved"] = rec.Retrieved
		summary["reranked"] = rec.Reranked
		summary["from_cache"] = rec.FromCache
	}
	if err != nil {
		summary["error"] = err.Error()
	}
	return summary
}

// AutoSaveEnabled reports whether RAG_AUTO_SAVE opts in to interaction
// logging.
func AutoSaveEnabled() bool {
	v := strings.TrimSpace(os.Getenv("RAG_AUTO_SAVE"))
	return v == "1" || strings.EqualFold(v, "true")
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
