package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ragweaver/ragweaver/internal/analyze"
	"github.com/ragweaver/ragweaver/internal/answer"
	"github.com/ragweaver/ragweaver/internal/cache"
	"github.com/ragweaver/ragweaver/internal/compress"
	"github.com/ragweaver/ragweaver/internal/config"
	"github.com/ragweaver/ragweaver/internal/embed"
	"github.com/ragweaver/ragweaver/internal/graph"
	"github.com/ragweaver/ragweaver/internal/ingest"
	"github.com/ragweaver/ragweaver/internal/keyword"
	"github.com/ragweaver/ragweaver/internal/llm"
	"github.com/ragweaver/ragweaver/internal/memory"
	"github.com/ragweaver/ragweaver/internal/pipeline"
	"github.com/ragweaver/ragweaver/internal/plan"
	"github.com/ragweaver/ragweaver/internal/rag"
	"github.com/ragweaver/ragweaver/internal/rank"
	"github.com/ragweaver/ragweaver/internal/retrieve"
	"github.com/ragweaver/ragweaver/internal/store"
	"github.com/ragweaver/ragweaver/internal/symbols"
	"github.com/ragweaver/ragweaver/internal/trace"
	"github.com/ragweaver/ragweaver/internal/ui"
	"github.com/ragweaver/ragweaver/internal/vector"
)

// resolveRoot picks the project root: --project-root, then
// $RAG_PROJECT_ROOT, then the enclosing project of the working directory,
// then the working directory itself.
func resolveRoot() (string, error) {
	root := flagProjectRoot
	if root == "" {
		root = os.Getenv("RAG_PROJECT_ROOT")
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		if found, err := config.FindProjectRoot(cwd); err == nil {
			root = found
		} else {
			root = cwd
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	return abs, nil
}

// loadConfig loads the configuration for a project root and applies the
// global flag overrides on top of it.
func loadConfig(root string) (*config.Config, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if flagProject != "" {
		cfg.Project = flagProject
	}
	if flagTopK > 0 {
		cfg.Retrieval.TopK = flagTopK
	}
	if flagContextChars > 0 {
		cfg.Context.MaxChars = flagContextChars
	}
	return cfg, nil
}

// planLimits maps the config's retrieval limits onto planner overrides.
// Fields the user never set stay zero, which leaves the planner's
// per-intent budgets in effect.
func planLimits(cfg *config.Config) plan.Limits {
	return plan.Limits{
		TopK:         cfg.Retrieval.TopK,
		KeywordLimit: cfg.Retrieval.KeywordLimit,
		GraphLimit:   cfg.Retrieval.GraphLimit,
		CodeLimit:    cfg.Retrieval.CodeLimit,
		HalfLifeDays: int(cfg.Retrieval.HalfLifeDays),
	}
}

// logsDir is the shared run-log directory; the monitor, tracer, and eval
// reports all live under it.
func logsDir() string {
	return filepath.Join(config.DataDir(), "logs")
}

// engineAssembly bundles a built engine with its backing stores so
// commands can close everything they opened.
type engineAssembly struct {
	engine *pipeline.Engine
	ingest *ingest.Pipeline
	cfg    *config.Config
	root   string

	closers []func() error
}

func (a *engineAssembly) addCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases the stores in reverse open order. Close errors are
// logged, not returned: by the time a command closes the assembly its
// work is already done or already failed.
func (a *engineAssembly) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("store_close_failed", "error", err)
		}
	}
	a.closers = nil
}

// buildOptions tunes engine assembly per command.
type buildOptions struct {
	// progress enables ingestion progress rendering to the given writer.
	// Nil keeps ingestion quiet.
	progress io.Writer

	// plainProgress forces the line-oriented renderer over the live view.
	plainProgress bool
}

// buildEngine opens the project's stores and wires the full answering
// pipeline: vector and keyword indexes, the symbol cache and entity
// graph, the memory client, both LLM tiers, and the cache/trace/monitor
// sinks around the engine. The caller owns the returned assembly and
// must Close it.
func buildEngine(ctx context.Context, opts buildOptions) (*engineAssembly, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	dataDir := config.ProjectDir(cfg.Project)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	asm := &engineAssembly{cfg: cfg, root: root}

	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = filepath.Join(dataDir, "docstore.db")
	}
	docs, err := store.OpenDocStore(store.DocStoreConfig{Path: storePath, Driver: cfg.Store.Driver})
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	asm.addCloser(docs.Close)

	keywords, err := store.OpenBleveIndex(filepath.Join(dataDir, "keyword.bleve"))
	if err != nil {
		asm.Close()
		return nil, fmt.Errorf("open keyword index: %w", err)
	}
	asm.addCloser(keywords.Close)

	embedder, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.OllamaHost,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
	})
	if err != nil {
		asm.Close()
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	vectorDir := cfg.Vector.Path
	if vectorDir == "" {
		vectorDir = dataDir
	}
	vectors, err := vector.New(vector.Options{
		Backend:    cfg.Vector.Backend,
		DataDir:    vectorDir,
		Collection: cfg.Vector.Collection,
		Dimensions: cfg.Embeddings.Dimensions,
	}, embedder, docs)
	if err != nil {
		asm.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	asm.addCloser(vectors.Close)

	symIndex := symbols.Load(root)
	entGraph := graph.Load(root)

	memCfg := memory.Config{Timeout: cfg.MemoryTimeout(), Logger: logger}
	if cfg.Memory.Enabled {
		memCfg.Command = cfg.Memory.Command
		memCfg.Args = cfg.Memory.Args
	}
	mem := memory.NewClient(memCfg)

	providers := llm.NewProviders(llm.Options{
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		FastModel:  cfg.LLM.AnalysisModel,
		MaxTokens:  cfg.LLM.MaxTokens,
		OllamaHost: cfg.LLM.OllamaHost,
		Timeout:    cfg.LLMTimeout(),
	})

	analyzer := analyze.New(providers.Fast, analyze.WithLogger(logger))
	decomposer := analyze.NewDecomposer(providers.Fast, logger)

	limits := planLimits(cfg)
	planner := pipeline.PlannerFunc(func(q rag.Query) rag.Strategy {
		return plan.Plan(q, limits)
	})

	lexical, err := retrieve.NewBleveLexical(keywords, docs)
	if err != nil {
		asm.Close()
		return nil, fmt.Errorf("wire lexical search: %w", err)
	}

	orchestrator, err := retrieve.New(vectors, retrieve.Config{
		EarlyStopScore: cfg.Retrieval.EarlyStopScore,
		EarlyStopCount: cfg.Retrieval.EarlyStopCount,
		MaxSubQueries:  cfg.Retrieval.MaxSubQueries,
		Timeout:        cfg.RetrieverTimeout(),
	},
		retrieve.WithLexical(lexical),
		retrieve.WithMemory(mem),
		retrieve.WithKeyword(keyword.NewScanner(root, logger)),
		retrieve.WithSymbols(symIndex, symbols.NewFallbackScanner(root)),
		retrieve.WithGraph(entGraph),
		retrieve.WithPlanning(decomposer, analyzer),
		retrieve.WithLogger(logger),
	)
	if err != nil {
		asm.Close()
		return nil, fmt.Errorf("build retrieval orchestrator: %w", err)
	}

	var encoder rank.CrossEncoder
	if cfg.Rerank.Endpoint != "" {
		encoder = rank.NewHTTPCrossEncoder(rank.EncoderConfig{
			Endpoint: cfg.Rerank.Endpoint,
			Model:    cfg.Rerank.Model,
			Timeout:  cfg.RerankTimeout(),
		})
	}
	reranker := rank.New(encoder, rank.Config{
		VectorWeight:    cfg.Rerank.VectorWeight,
		ExactMatchBonus: cfg.Rerank.ExactMatchBonus,
		StageOneFactor:  cfg.Rerank.StageOneFactor,
		StageOneMin:     cfg.Rerank.StageOneMin,
	}, rank.WithLogger(logger))

	compressor := compress.New(compress.Config{
		MaxChars:             cfg.Context.MaxChars,
		FullTextRank:         cfg.Context.FullTextRank,
		FullTextScore:        cfg.Context.FullTextScore,
		SummaryChars:         cfg.Context.SummaryChars,
		TruncateMinRemaining: cfg.Context.TruncateMinRemaining,
	})

	synthesizer, err := answer.New(providers.Main, answer.WithLogger(logger))
	if err != nil {
		asm.Close()
		return nil, fmt.Errorf("build synthesizer: %w", err)
	}

	cacheDir := cfg.Cache.Dir
	if cacheDir == "" {
		cacheDir = filepath.Join(config.DataDir(), "cache", cfg.Project)
	}
	answers := cache.New(cacheDir, cache.Config{
		Enabled:    cfg.Cache.Enabled,
		MaxEntries: cfg.Cache.MaxEntries,
	}, cache.WithLogger(logger))

	traceDir := cfg.Trace.Dir
	if traceDir == "" {
		traceDir = filepath.Join(logsDir(), "traces")
	}
	tracer := trace.NewTracer(traceDir,
		trace.WithEnabled(cfg.Trace.Enabled),
		trace.WithLogger(logger))
	monitor := trace.NewMonitor(logsDir(), trace.WithMonitorLogger(logger))

	ingestOpts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithWorkers(cfg.Ingest.Workers),
	}
	if opts.progress != nil {
		renderer := ui.NewRenderer(ui.Config{
			Output:     opts.progress,
			ForcePlain: opts.plainProgress,
			NoColor:    ui.DetectNoColor(),
			Project:    cfg.Project,
		})
		ingestOpts = append(ingestOpts, ingest.WithRenderer(renderer))
	}
	updater, err := ingest.New(root, cfg, docs, keywords, vectors, ingestOpts...)
	if err != nil {
		asm.Close()
		return nil, fmt.Errorf("build ingest pipeline: %w", err)
	}

	engineOpts := []pipeline.Option{
		pipeline.WithCache(answers),
		pipeline.WithTracer(tracer),
		pipeline.WithMonitor(monitor),
		pipeline.WithUpdater(updater),
		pipeline.WithLexical(keywords),
		pipeline.WithSymbols(symIndex),
		pipeline.WithGraph(entGraph),
		pipeline.WithLogger(logger),
	}
	if os.Getenv("RAG_AUTO_SAVE") == "1" {
		log := trace.NewInteractionLog(filepath.Join(logsDir(), "interactions.jsonl"))
		engineOpts = append(engineOpts, pipeline.WithFeedback(log))
	}

	eng, err := pipeline.New(vectors, mem, analyzer, planner, orchestrator,
		reranker, compressor, synthesizer, cfg, engineOpts...)
	if err != nil {
		asm.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}

	asm.engine = eng
	asm.ingest = updater
	return asm, nil
}
