// Package ingest builds and maintains the knowledge base an engine answers
// from. A Pipeline scans the project tree, splits files into chunks, embeds
// and indexes them across the vector, keyword, and document stores, and
// regenerates the symbol cache. Runs are incremental: files whose content
// hash matches the stored record are skipped, and chunks of removed files
// are deleted from every store.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragweaver/ragweaver/internal/chunk"
	"github.com/ragweaver/ragweaver/internal/config"
	"github.com/ragweaver/ragweaver/internal/graph"
	"github.com/ragweaver/ragweaver/internal/scanner"
	"github.com/ragweaver/ragweaver/internal/store"
	"github.com/ragweaver/ragweaver/internal/ui"
	"github.com/ragweaver/ragweaver/internal/vector"
)

// progressEvery batches scan progress updates so the renderer is not
// hammered once per file.
const progressEvery = 25

// Summary reports what a run changed.
type Summary struct {
	FilesScanned int
	FilesIndexed int
	FilesSkipped int // content hash unchanged
	FilesFailed  int
	FilesRemoved int
	Chunks       int
	Symbols      int
	Duration     time.Duration
}

// Pipeline ingests a project into the stores it was constructed with.
// It satisfies the engine's Updater interface, so a wired engine can
// trigger re-ingestion through the same code path as `ragweaver update`.
type Pipeline struct {
	root     string
	cfg      *config.Config
	docs     *store.DocStore
	keywords *store.BleveIndex
	vectors  vector.Index

	files    *scanner.Scanner
	splitter *chunk.Splitter
	renderer ui.Renderer
	logger   *slog.Logger
	workers  int
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRenderer routes progress through the given renderer. The default
// discards progress output.
func WithRenderer(r ui.Renderer) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.renderer = r
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWorkers caps the chunking concurrency. Zero or negative keeps the
// configured default.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// New builds a Pipeline over the given stores. The stores stay owned by the
// caller; the Pipeline never closes them, so they can be shared with a live
// engine.
func New(root string, cfg *config.Config, docs *store.DocStore, keywords *store.BleveIndex, vectors vector.Index, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ingest: nil config")
	}
	if docs == nil || keywords == nil || vectors == nil {
		return nil, fmt.Errorf("ingest: all stores are required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve root: %w", err)
	}

	size := cfg.Ingest.ChunkSize
	if size <= 0 {
		size = chunk.DefaultSize
	}
	overlap := cfg.Ingest.ChunkOverlap
	if overlap < 0 {
		overlap = chunk.DefaultOverlap
	}
	workers := cfg.Ingest.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	p := &Pipeline{
		root:     absRoot,
		cfg:      cfg,
		docs:     docs,
		keywords: keywords,
		vectors:  vectors,
		files:    scanner.New(),
		renderer: ui.NewPlainRenderer(ui.Config{Output: io.Discard}),
		logger:   slog.Default(),
		workers:  workers,
	}
	p.splitter = chunk.NewSplitter(chunk.WithSize(size), chunk.WithOverlap(overlap))
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// fileWork carries one file through the chunking stage.
type fileWork struct {
	info   *scanner.FileInfo
	record *store.FileRecord
	chunks []*store.Chunk
	syms   []chunk.Symbol

	unchanged bool
	failed    bool
}

// Run performs a full incremental ingest: scan, chunk, embed, index,
// symbols. Per-file failures are reported and skipped; the run itself only
// fails on store-level or context errors.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	if err := p.renderer.Start(); err != nil {
		return nil, fmt.Errorf("ingest: start renderer: %w", err)
	}
	defer p.renderer.Stop()

	sum := &Summary{}
	timings := ui.StageTimings{}
	mark := time.Now()

	// Scan.
	p.renderer.Update(ui.ProgressEvent{Stage: ui.StageScanning, Message: "discovering files"})
	found, err := p.scan(ctx)
	if err != nil {
		return nil, err
	}
	sum.FilesScanned = len(found)
	timings.Scan = time.Since(mark)
	mark = time.Now()

	// Diff against the stored file records.
	known, err := p.knownFiles(ctx)
	if err != nil {
		return nil, err
	}
	removed := removedPaths(known, found)
	for _, path := range removed {
		if err := p.removeFile(ctx, path); err != nil {
			return nil, err
		}
		sum.FilesRemoved++
	}

	// Chunk changed files in parallel.
	work, err := p.chunkStage(ctx, found, known)
	if err != nil {
		return nil, err
	}
	timings.Chunk = time.Since(mark)
	mark = time.Now()

	// Embed and index.
	if err := p.embedStage(ctx, work, sum); err != nil {
		return nil, err
	}
	timings.Embed = time.Since(mark)
	mark = time.Now()

	if err := p.indexStage(ctx, work, sum); err != nil {
		return nil, err
	}
	timings.Index = time.Since(mark)
	mark = time.Now()

	// Symbols and entity graph.
	p.renderer.Update(ui.ProgressEvent{Stage: ui.StageSymbols, Message: "rebuilding symbol cache"})
	total, err := p.mergeSymbols(found, work)
	if err != nil {
		// The cache is advisory; retrieval falls back to a live scan.
		p.renderer.Error(ui.ErrorEvent{Err: err, Warn: true})
		p.logger.Warn("symbol_cache_write_failed", "error", err)
	} else {
		sum.Symbols = total
	}
	p.reloadGraph()
	timings.Symbols = time.Since(mark)

	sum.Duration = time.Since(started)
	p.renderer.Complete(ui.CompletionStats{
		Files:    sum.FilesIndexed,
		Chunks:   sum.Chunks,
		Symbols:  sum.Symbols,
		Duration: sum.Duration,
		Errors:   sum.FilesFailed,
		Warnings: sum.FilesSkipped,
		Stages:   timings,
	})
	p.logger.Info("ingest_complete",
		"scanned", sum.FilesScanned,
		"indexed", sum.FilesIndexed,
		"skipped", sum.FilesSkipped,
		"removed", sum.FilesRemoved,
		"failed", sum.FilesFailed,
		"chunks", sum.Chunks,
		"symbols", sum.Symbols,
		"elapsed", sum.Duration.Round(time.Millisecond))
	return sum, nil
}

// UpdateVectorStore re-ingests documents into the vector and keyword
// indexes. It is the engine's hook for refreshing retrievable content.
func (p *Pipeline) UpdateVectorStore(ctx context.Context) error {
	_, err := p.Run(ctx)
	return err
}

// UpdateLocalKnowledge rebuilds the symbol cache and reloads the entity
// graph without touching the chunk stores.
func (p *Pipeline) UpdateLocalKnowledge(ctx context.Context) error {
	found, err := p.scan(ctx)
	if err != nil {
		return err
	}
	if _, err := p.rebuildSymbols(ctx, found); err != nil {
		return err
	}
	p.reloadGraph()
	return nil
}

// scan walks the project and collects every classifiable file.
func (p *Pipeline) scan(ctx context.Context) ([]*scanner.FileInfo, error) {
	results, err := p.files.Scan(ctx, scanner.Options{
		Root:             p.root,
		Include:          p.cfg.Paths.Include,
		Exclude:          p.cfg.Paths.Exclude,
		RespectGitignore: true,
		MaxFileSize:      int64(p.cfg.Ingest.MaxFileSizeKB) * 1024,
		MaxFiles:         p.cfg.Ingest.MaxFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: scan: %w", err)
	}

	var found []*scanner.FileInfo
	for res := range results {
		if res.Err != nil {
			p.renderer.Error(ui.ErrorEvent{Err: res.Err, Warn: true})
			continue
		}
		found = append(found, res.File)
		if len(found)%progressEvery == 0 {
			p.renderer.Update(ui.ProgressEvent{
				Stage:   ui.StageScanning,
				Current: len(found),
				Message: "discovering files",
			})
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

// knownFiles loads the stored file records keyed by relative path.
func (p *Pipeline) knownFiles(ctx context.Context) (map[string]*store.FileRecord, error) {
	records, err := p.docs.AllFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest: load file records: %w", err)
	}
	known := make(map[string]*store.FileRecord, len(records))
	for _, rec := range records {
		known[rec.Path] = rec
	}
	return known, nil
}

// removedPaths returns the recorded paths no longer present on disk.
func removedPaths(known map[string]*store.FileRecord, found []*scanner.FileInfo) []string {
	present := make(map[string]bool, len(found))
	for _, f := range found {
		present[f.Path] = true
	}
	var removed []string
	for path := range known {
		if !present[path] {
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)
	return removed
}

// removeFile deletes a file's chunks from every store and drops its record.
func (p *Pipeline) removeFile(ctx context.Context, path string) error {
	ids, err := p.docs.DeleteByPath(ctx, path)
	if err != nil {
		return fmt.Errorf("ingest: remove %s: %w", path, err)
	}
	if len(ids) > 0 {
		if err := p.keywords.Delete(ctx, ids); err != nil {
			return fmt.Errorf("ingest: remove %s from keyword index: %w", path, err)
		}
		if err := p.vectors.Delete(ctx, ids); err != nil {
			return fmt.Errorf("ingest: remove %s from vector index: %w", path, err)
		}
	}
	if err := p.docs.DeleteFile(ctx, path); err != nil {
		return fmt.Errorf("ingest: drop record %s: %w", path, err)
	}
	p.logger.Debug("file_removed", "path", path, "chunks", len(ids))
	return nil
}

// chunkStage reads and splits every file whose content changed. Read and
// parse failures mark the file failed without aborting the run.
func (p *Pipeline) chunkStage(ctx context.Context, found []*scanner.FileInfo, known map[string]*store.FileRecord) ([]*fileWork, error) {
	work := make([]*fileWork, len(found))
	p.renderer.Update(ui.ProgressEvent{Stage: ui.StageChunking, Total: len(found)})

	var done atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, f := range found {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			work[i] = p.prepare(ctx, f, known[f.Path])
			p.renderer.Update(ui.ProgressEvent{
				Stage:       ui.StageChunking,
				Current:     int(done.Add(1)),
				Total:       len(found),
				CurrentFile: f.Path,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return work, nil
}

// prepare hashes one file and splits it when the stored record is stale.
func (p *Pipeline) prepare(ctx context.Context, f *scanner.FileInfo, rec *store.FileRecord) *fileWork {
	w := &fileWork{info: f}

	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		p.renderer.Error(ui.ErrorEvent{File: f.Path, Err: err, Warn: true})
		p.logger.Warn("file_read_failed", "path", f.Path, "error", err)
		w.failed = true
		return w
	}
	hash := contentHash(data)
	if rec != nil && rec.ContentHash == hash {
		w.unchanged = true
		return w
	}

	res, err := p.splitter.Split(ctx, chunk.File{
		Path:     f.Path,
		Content:  data,
		Kind:     string(f.Kind),
		Language: f.Language,
	})
	if err != nil {
		p.renderer.Error(ui.ErrorEvent{File: f.Path, Err: err, Warn: true})
		p.logger.Warn("file_chunk_failed", "path", f.Path, "error", err)
		w.failed = true
		return w
	}

	w.chunks = res.Chunks
	w.syms = res.Symbols
	w.record = &store.FileRecord{
		Path:        f.Path,
		ContentHash: hash,
		Size:        f.Size,
		ModTime:     f.ModTime,
		ChunkCount:  len(res.Chunks),
	}
	return w
}

// embedStage replaces each changed file's chunks in the vector, keyword,
// and document stores. Embedding failures degrade per file.
func (p *Pipeline) embedStage(ctx context.Context, work []*fileWork, sum *Summary) error {
	total := 0
	for _, w := range work {
		if w.pending() {
			total += len(w.chunks)
		}
	}
	p.renderer.Update(ui.ProgressEvent{Stage: ui.StageEmbedding, Total: total})

	indexed := 0
	for _, w := range work {
		if w == nil || w.failed {
			if w != nil {
				sum.FilesFailed++
			}
			continue
		}
		if w.unchanged {
			sum.FilesSkipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.replaceChunks(ctx, w); err != nil {
			p.renderer.Error(ui.ErrorEvent{File: w.info.Path, Err: err, Warn: true})
			p.logger.Warn("file_index_failed", "path", w.info.Path, "error", err)
			w.failed = true
			sum.FilesFailed++
			continue
		}
		indexed += len(w.chunks)
		sum.FilesIndexed++
		sum.Chunks += len(w.chunks)
		p.renderer.Update(ui.ProgressEvent{
			Stage:       ui.StageEmbedding,
			Current:     indexed,
			Total:       total,
			CurrentFile: w.info.Path,
		})
	}
	return nil
}

// replaceChunks drops a file's stale chunks and indexes the new ones
// everywhere. The file record is written later, in the index stage, so a
// failure here leaves the file marked stale for the next run.
func (p *Pipeline) replaceChunks(ctx context.Context, w *fileWork) error {
	stale, err := p.docs.DeleteByPath(ctx, w.info.Path)
	if err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}
	if len(stale) > 0 {
		if err := p.keywords.Delete(ctx, stale); err != nil {
			return fmt.Errorf("delete stale keywords: %w", err)
		}
		if err := p.vectors.Delete(ctx, stale); err != nil {
			return fmt.Errorf("delete stale vectors: %w", err)
		}
	}
	if len(w.chunks) == 0 {
		return nil
	}
	if err := p.docs.Put(ctx, w.chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	if err := p.keywords.Index(ctx, w.chunks); err != nil {
		return fmt.Errorf("index keywords: %w", err)
	}
	if err := p.vectors.Add(ctx, w.chunks); err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	return nil
}

// indexStage commits file records for every successfully indexed file and
// reports the final store counts. Records land last so a crash mid-run
// re-ingests rather than silently skips.
func (p *Pipeline) indexStage(ctx context.Context, work []*fileWork, sum *Summary) error {
	p.renderer.Update(ui.ProgressEvent{Stage: ui.StageIndexing, Total: sum.FilesIndexed})
	committed := 0
	for _, w := range work {
		if !w.pending() {
			continue
		}
		w.record.IndexedAt = time.Now()
		if err := p.docs.SaveFile(ctx, w.record); err != nil {
			return fmt.Errorf("ingest: save record %s: %w", w.info.Path, err)
		}
		committed++
		p.renderer.Update(ui.ProgressEvent{
			Stage:       ui.StageIndexing,
			Current:     committed,
			Total:       sum.FilesIndexed,
			CurrentFile: w.info.Path,
		})
	}

	docCount, err := p.docs.Count(ctx)
	if err != nil {
		return fmt.Errorf("ingest: count documents: %w", err)
	}
	p.renderer.Update(ui.ProgressEvent{
		Stage:   ui.StageIndexing,
		Current: committed,
		Total:   sum.FilesIndexed,
		Message: fmt.Sprintf("%d chunks in store", docCount),
	})
	return nil
}

// pending reports whether the file produced chunks that reached the stores.
func (w *fileWork) pending() bool {
	return w != nil && !w.failed && !w.unchanged
}

// reloadGraph re-reads the entity graph so a freshly edited graph file is
// picked up alongside the ingest.
func (p *Pipeline) reloadGraph() {
	g := graph.Load(p.root)
	if g.Available() {
		p.logger.Info("entity_graph_loaded", "entities", g.Size())
	} else {
		p.logger.Debug("entity_graph_missing", "root", p.root)
	}
}

// contentHash is the change-detection hash stored in file records.
func contentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
