// Package retrieve fans a planned query out to the enabled retrieval agents
// and merges their output into one deduplicated document set. Agents run
// concurrently and absorb their own failures: a dead retriever costs its
// documents, never the query.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragweaver/ragweaver/internal/rag"
	"github.com/ragweaver/ragweaver/internal/trace"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

const (
	// minWorkers floors the fan-out parallelism.
	minWorkers = 4

	// defaultEarlyStopScore and defaultEarlyStopCount end the vector
	// variant scan once enough strong hits have accumulated.
	defaultEarlyStopScore = 0.8
	defaultEarlyStopCount = 30

	// defaultHybridVectorWeight blends semantic against lexical scores in
	// the hybrid merge.
	defaultHybridVectorWeight = 0.7

	// defaultMaxSubQueries bounds query decomposition.
	defaultMaxSubQueries = 3

	// defaultAgentTimeout bounds a single retriever.
	defaultAgentTimeout = 8 * time.Second

	// temporalMemoryLimit is the recency agent's memory budget.
	temporalMemoryLimit = 10

	// conceptMemoryLimit is the per-concept memory budget.
	conceptMemoryLimit = 5

	// defaultHalfLifeDays decays temporal boosts when the strategy does
	// not set its own half-life.
	defaultHalfLifeDays = 3
)

// VectorIndex is the semantic retriever surface.
type VectorIndex interface {
	Search(ctx context.Context, query string, n int, filter map[string]string) ([]rag.Document, error)
	HybridSearch(ctx context.Context, query string, keywordDocs []rag.Document, n int, vectorWeight float64) ([]rag.Document, error)
}

// Lexical serves BM25 hits over the ingested chunks for hybrid merging.
type Lexical interface {
	Search(ctx context.Context, query string, limit int) ([]rag.Document, error)
}

// MemorySearcher queries the external memory agent.
type MemorySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]rag.Document, error)
	Enabled() bool
}

// KeywordScanner greps the working tree.
type KeywordScanner interface {
	Search(ctx context.Context, query string, limit int) ([]rag.Document, error)
}

// SymbolIndex serves cached code symbol lookups.
type SymbolIndex interface {
	Search(queries []string, limit int) []rag.Document
	Available() bool
}

// SymbolScanner is the uncached filesystem fallback for symbol lookups.
type SymbolScanner interface {
	Search(queries []string, limit int) []rag.Document
}

// EntityGraph serves entity card lookups.
type EntityGraph interface {
	Search(query string, limit int) []rag.Document
	Available() bool
}

// Analyzer re-analyzes decomposed sub-questions.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (rag.Analysis, error)
}

// Decomposer splits multi-part questions.
type Decomposer interface {
	Decompose(ctx context.Context, query string, max int) []string
}

// Config tunes the orchestrator. Zero values take the package defaults.
type Config struct {
	// EarlyStopScore / EarlyStopCount end the vector variant scan early.
	EarlyStopScore float64
	EarlyStopCount int

	// HybridVectorWeight blends semantic and lexical scores.
	HybridVectorWeight float64

	// MaxSubQueries caps planned decomposition.
	MaxSubQueries int

	// Timeout bounds each retrieval agent.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.EarlyStopScore <= 0 {
		c.EarlyStopScore = defaultEarlyStopScore
	}
	if c.EarlyStopCount <= 0 {
		c.EarlyStopCount = defaultEarlyStopCount
	}
	if c.HybridVectorWeight <= 0 {
		c.HybridVectorWeight = defaultHybridVectorWeight
	}
	if c.MaxSubQueries <= 0 {
		c.MaxSubQueries = defaultMaxSubQueries
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultAgentTimeout
	}
	return c
}

// Result is one retrieval round: the merged document set, how many each
// source contributed after deduplication, and the failures absorbed along
// the way.
type Result struct {
	Documents []rag.Document
	PerSource map[rag.Source]int
	Warnings  []string
}

// Orchestrator owns the retrieval fan-out.
type Orchestrator struct {
	vector     VectorIndex
	lexical    Lexical
	memory     MemorySearcher
	keyword    KeywordScanner
	code       SymbolIndex
	fallback   SymbolScanner
	graph      EntityGraph
	analyzer   Analyzer
	decomposer Decomposer
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLexical enables hybrid vector+BM25 merging.
func WithLexical(l Lexical) Option {
	return func(o *Orchestrator) { o.lexical = l }
}

// WithMemory enables the memory and temporal agents.
func WithMemory(m MemorySearcher) Option {
	return func(o *Orchestrator) { o.memory = m }
}

// WithKeyword enables the working-tree keyword agent.
func WithKeyword(k KeywordScanner) Option {
	return func(o *Orchestrator) { o.keyword = k }
}

// WithSymbols enables the code agent: the index when available, the
// scanner as fallback. Either may be nil.
func WithSymbols(index SymbolIndex, scanner SymbolScanner) Option {
	return func(o *Orchestrator) {
		o.code = index
		o.fallback = scanner
	}
}

// WithGraph enables the entity graph agent.
func WithGraph(g EntityGraph) Option {
	return func(o *Orchestrator) { o.graph = g }
}

// WithPlanning enables query decomposition for multi-part questions.
func WithPlanning(d Decomposer, a Analyzer) Option {
	return func(o *Orchestrator) {
		o.decomposer = d
		o.analyzer = a
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used for temporal boosts.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds an Orchestrator around the required vector index. All other
// agents are optional and attach through options.
func New(vector VectorIndex, cfg Config, opts ...Option) (*Orchestrator, error) {
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	o := &Orchestrator{
		vector: vector,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Retrieve runs the enabled agents for the query and merges their output.
// Agent failures become warnings; only caller cancellation is an error.
func (o *Orchestrator) Retrieve(ctx context.Context, q rag.Query, strat rag.Strategy) (*Result, error) {
	result := &Result{PerSource: make(map[rag.Source]int)}
	if strat.Mode == rag.ModeNone {
		return result, nil
	}

	seen := make(map[string]struct{})
	o.runRound(ctx, q, strat, result, seen)

	// Multi-part questions: retrieve each sub-question with halved budgets
	// and union the results into the main set.
	if strat.UsePlanning && o.decomposer != nil {
		subStrat := halveBudgets(strat)
		for _, sub := range o.decomposer.Decompose(ctx, q.Text, o.cfg.MaxSubQueries) {
			if ctx.Err() != nil {
				break
			}
			subQ := rag.Query{Text: sub}
			if o.analyzer != nil {
				analysis, err := o.analyzer.Analyze(ctx, sub)
				if err != nil {
					break
				}
				subQ.Analysis = analysis
			}
			o.logger.Debug("sub_query_retrieval", "sub_query", sub)
			o.runRound(ctx, subQ, subStrat, result, seen)
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	o.logger.Debug("retrieval_complete",
		"documents", len(result.Documents),
		"warnings", len(result.Warnings))
	return result, nil
}

// agent binds a named retriever to its execution closure.
type agent struct {
	name string
	run  func(ctx context.Context) ([]rag.Document, error)
}

// enabledAgents builds the agent set in the fixed merge order: vector,
// memory, temporal, code, keyword, graph.
func (o *Orchestrator) enabledAgents(q rag.Query, strat rag.Strategy) []agent {
	var agents []agent
	if strat.UseVector {
		agents = append(agents, agent{"vector", func(ctx context.Context) ([]rag.Document, error) {
			return o.searchVector(ctx, q, strat)
		}})
	}
	if strat.UseMemory && o.memory != nil && o.memory.Enabled() {
		agents = append(agents, agent{"memory", func(ctx context.Context) ([]rag.Document, error) {
			return o.searchMemory(ctx, q, strat)
		}})
	}
	if strat.UseRecent && o.memory != nil && o.memory.Enabled() {
		agents = append(agents, agent{"temporal", func(ctx context.Context) ([]rag.Document, error) {
			return o.searchTemporal(ctx, q, strat)
		}})
	}
	if strat.UseCode && (o.fallback != nil || (o.code != nil && o.code.Available())) {
		agents = append(agents, agent{"code", func(ctx context.Context) ([]rag.Document, error) {
			return o.searchCode(ctx, q, strat)
		}})
	}
	if strat.UseKeywords && o.keyword != nil {
		agents = append(agents, agent{"keyword", func(ctx context.Context) ([]rag.Document, error) {
			return o.keyword.Search(ctx, q.Text, strat.KeywordLimit)
		}})
	}
	if strat.UseGraph && o.graph != nil && o.graph.Available() {
		agents = append(agents, agent{"graph", func(ctx context.Context) ([]rag.Document, error) {
			return o.graph.Search(q.Text, strat.GraphLimit), nil
		}})
	}
	return agents
}

// runRound fans out one retrieval round and merges its output into result.
func (o *Orchestrator) runRound(ctx context.Context, q rag.Query, strat rag.Strategy, result *Result, seen map[string]struct{}) {
	agents := o.enabledAgents(q, strat)
	if len(agents) == 0 {
		return
	}

	slots := make([][]rag.Document, len(agents))
	errs := make([]error, len(agents))

	g, gctx := errgroup.WithContext(ctx)
	workers := len(agents)
	if workers < minWorkers {
		workers = minWorkers
	}
	g.SetLimit(workers)

	for i, ag := range agents {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(gctx, o.cfg.Timeout)
			defer cancel()

			span := trace.SpanFromContext(gctx, "retrieve_"+ag.name)
			docs, err := ag.run(actx)
			span.SetAttr("documents", len(docs))
			span.End(err)
			if err != nil {
				// Absorb: a failed retriever never fails the round.
				errs[i] = err
				return nil
			}
			slots[i] = docs
			return nil
		})
	}
	_ = g.Wait()

	for i := range agents {
		if errs[i] != nil {
			o.logger.Warn("retriever_failed",
				"retriever", agents[i].name,
				"error", errs[i])
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", agents[i].name, errs[i]))
			continue
		}
		mergeDocs(result, seen, slots[i])
	}
}

// mergeDocs appends documents not yet seen, keyed by the content hash.
// First occurrence wins; insertion order is preserved.
func mergeDocs(result *Result, seen map[string]struct{}, docs []rag.Document) {
	for _, d := range docs {
		key := rag.ContentKey(d.Content)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result.Documents = append(result.Documents, d)
		result.PerSource[d.Source]++
	}
}

// halveBudgets shrinks the per-retriever budgets for sub-question rounds.
func halveBudgets(s rag.Strategy) rag.Strategy {
	s.VectorNResults = halve(s.VectorNResults)
	s.MemoryLimit = halve(s.MemoryLimit)
	s.MemoryConcepts = halve(s.MemoryConcepts)
	s.KeywordLimit = halve(s.KeywordLimit)
	s.GraphLimit = halve(s.GraphLimit)
	s.CodeLimit = halve(s.CodeLimit)
	s.UsePlanning = false
	return s
}

func halve(n int) int {
	if n <= 1 {
		return 1
	}
	return n / 2
}
