package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragweaver/ragweaver/internal/chunk"
	"github.com/ragweaver/ragweaver/internal/scanner"
	"github.com/ragweaver/ragweaver/internal/symbols"
)

// mergeSymbols folds the symbols produced by this run into the cache. Files
// untouched by the run keep their existing entries; re-chunked files are
// replaced, and entries for paths gone from disk are dropped.
func (p *Pipeline) mergeSymbols(found []*scanner.FileInfo, work []*fileWork) (int, error) {
	present := make(map[string]bool, len(found))
	for _, f := range found {
		present[f.Path] = true
	}
	replaced := make(map[string]bool)
	var fresh []symbols.Symbol
	for _, w := range work {
		if !w.pending() {
			continue
		}
		replaced[w.info.Path] = true
		fresh = append(fresh, convertSymbols(w.info.Path, w.syms)...)
	}
	keep := func(path string) bool { return present[path] && !replaced[path] }
	return p.updateSymbolCache(keep, fresh)
}

// rebuildSymbols regenerates the cache from scratch by re-parsing every
// code file. Unreadable or unparseable files are logged and skipped.
func (p *Pipeline) rebuildSymbols(ctx context.Context, found []*scanner.FileInfo) (int, error) {
	results := make([][]symbols.Symbol, len(found))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, f := range found {
		if f.Kind != scanner.KindCode {
			continue
		}
		g.Go(func() error {
			data, err := os.ReadFile(f.AbsPath)
			if err != nil {
				p.logger.Warn("file_read_failed", "path", f.Path, "error", err)
				return nil
			}
			res, err := p.splitter.Split(ctx, chunk.File{
				Path:     f.Path,
				Content:  data,
				Kind:     string(f.Kind),
				Language: f.Language,
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn("file_parse_failed", "path", f.Path, "error", err)
				return nil
			}
			results[i] = convertSymbols(f.Path, res.Symbols)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var fresh []symbols.Symbol
	for _, syms := range results {
		fresh = append(fresh, syms...)
	}
	return p.updateSymbolCache(nil, fresh)
}

// updateSymbolCache rewrites the cache file with the existing entries that
// pass keep plus the added ones. A nil keep discards everything existing.
func (p *Pipeline) updateSymbolCache(keep func(path string) bool, added []symbols.Symbol) (int, error) {
	var merged []symbols.Symbol
	if keep != nil {
		if existing := p.readSymbolCache(); existing != nil {
			for _, sym := range existing.Symbols {
				if keep(sym.Path) {
					merged = append(merged, sym)
				}
			}
		}
	}
	merged = append(merged, added...)
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Path != merged[j].Path {
			return merged[i].Path < merged[j].Path
		}
		return merged[i].StartLine < merged[j].StartLine
	})

	cache := symbols.Cache{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Root:        p.root,
		Symbols:     merged,
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode symbol cache: %w", err)
	}
	path := symbols.CachePath(p.root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write symbol cache: %w", err)
	}
	p.logger.Debug("symbol_cache_written", "path", path, "symbols", len(merged))
	return len(merged), nil
}

// readSymbolCache loads the current cache, or nil when missing or corrupt.
func (p *Pipeline) readSymbolCache() *symbols.Cache {
	data, err := os.ReadFile(symbols.CachePath(p.root))
	if err != nil {
		return nil
	}
	var cache symbols.Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		p.logger.Warn("symbol_cache_corrupt", "error", err)
		return nil
	}
	return &cache
}

// convertSymbols lifts chunker symbols into cache entries, qualifying
// members by their container.
func convertSymbols(path string, syms []chunk.Symbol) []symbols.Symbol {
	out := make([]symbols.Symbol, 0, len(syms))
	for _, s := range syms {
		qualified := s.Name
		if s.Container != "" {
			qualified = s.Container + "." + s.Name
		}
		out = append(out, symbols.Symbol{
			Name:      s.Name,
			Qualified: qualified,
			Kind:      s.Kind,
			Path:      path,
			StartLine: s.StartLine,
			EndLine:   s.EndLine,
		})
	}
	return out
}
