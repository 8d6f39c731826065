package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ragweaver/ragweaver/internal/scanner"
	"github.com/ragweaver/ragweaver/internal/symbols"
	"github.com/ragweaver/ragweaver/internal/watcher"
)

// Watch re-ingests files as they change until ctx ends. Changes are
// debounced by the configured watch interval and applied incrementally;
// run a full Run first to bring the stores current.
func (p *Pipeline) Watch(ctx context.Context) error {
	w, err := watcher.New(p.root,
		watcher.WithDebounce(p.cfg.WatchDebounce()),
		watcher.WithIgnore(p.cfg.Paths.Exclude...),
		watcher.WithLogger(p.logger),
	)
	if err != nil {
		return fmt.Errorf("ingest: watch: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("ingest: watch: %w", err)
	}
	defer w.Close()

	p.logger.Info("watch_started", "root", p.root, "debounce", p.cfg.WatchDebounce())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-w.Batches():
			if !ok {
				return nil
			}
			if err := p.applyBatch(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return err
				}
				p.logger.Error("watch_batch_failed", "error", err)
			}
		}
	}
}

// applyBatch indexes the files a change batch names and refreshes the
// symbol cache for the paths it touched.
func (p *Pipeline) applyBatch(ctx context.Context, batch []watcher.Event) error {
	var touched []string
	var added []symbols.Symbol
	indexed, removed := 0, 0

	for _, ev := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch ev.Op {
		case watcher.OpDelete:
			if err := p.removeFile(ctx, ev.Path); err != nil {
				return err
			}
			touched = append(touched, ev.Path)
			removed++
		case watcher.OpCreate, watcher.OpModify:
			w, err := p.ingestOne(ctx, ev.Path)
			if err != nil {
				return err
			}
			if w == nil || w.unchanged {
				continue
			}
			touched = append(touched, ev.Path)
			added = append(added, convertSymbols(ev.Path, w.syms)...)
			indexed++
		}
	}
	if len(touched) == 0 {
		return nil
	}

	stale := make(map[string]bool, len(touched))
	for _, path := range touched {
		stale[path] = true
	}
	total, err := p.updateSymbolCache(func(path string) bool { return !stale[path] }, added)
	if err != nil {
		p.logger.Warn("symbol_cache_write_failed", "error", err)
	}
	p.reloadGraph()
	p.logger.Info("watch_batch_applied",
		"indexed", indexed,
		"removed", removed,
		"symbols", total)
	return nil
}

// ingestOne indexes a single file by root-relative path. Unindexable paths
// and per-file failures return nil; only store-level errors propagate.
func (p *Pipeline) ingestOne(ctx context.Context, rel string) (*fileWork, error) {
	kind, language, ok := scanner.Classify(rel)
	if !ok {
		return nil, nil
	}
	abs := filepath.Join(p.root, filepath.FromSlash(rel))
	st, err := os.Stat(abs)
	if err != nil || st.IsDir() {
		if err != nil {
			p.logger.Warn("file_stat_failed", "path", rel, "error", err)
		}
		return nil, nil
	}
	if max := int64(p.cfg.Ingest.MaxFileSizeKB) * 1024; max > 0 && st.Size() > max {
		p.logger.Debug("file_too_large", "path", rel, "size", st.Size())
		return nil, nil
	}

	rec, err := p.docs.GetFile(ctx, rel)
	if err != nil {
		return nil, fmt.Errorf("ingest: load record %s: %w", rel, err)
	}
	info := &scanner.FileInfo{
		Path:     rel,
		AbsPath:  abs,
		Size:     st.Size(),
		ModTime:  st.ModTime(),
		Kind:     kind,
		Language: language,
	}
	w := p.prepare(ctx, info, rec)
	if w.failed || w.unchanged {
		if w.failed {
			return nil, nil
		}
		return w, nil
	}
	if err := p.replaceChunks(ctx, w); err != nil {
		p.logger.Warn("file_index_failed", "path", rel, "error", err)
		return nil, nil
	}
	w.record.IndexedAt = time.Now()
	if err := p.docs.SaveFile(ctx, w.record); err != nil {
		return nil, fmt.Errorf("ingest: save record %s: %w", rel, err)
	}
	p.logger.Debug("file_indexed", "path", rel, "chunks", len(w.chunks))
	return w, nil
}
