package ui

import (
	"fmt"
	"io"
)

// StatsInfo is the engine overview shown by the stats command. The command
// layer fills it from the pipeline's component stats and run metrics.
type StatsInfo struct {
	Project       string  `json:"project"`
	VectorChunks  int     `json:"vector_chunks"`
	LexicalDocs   int     `json:"lexical_docs"`
	SymbolEntries int     `json:"symbol_entries"`
	GraphEntities int     `json:"graph_entities"`
	MemoryEnabled bool    `json:"memory_enabled"`
	CacheEnabled  bool    `json:"cache_enabled"`
	CacheEntries  int     `json:"cache_entries"`
	TotalRuns     int     `json:"total_runs"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
	AvgElapsedSec float64 `json:"avg_elapsed_sec"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// StatsRenderer prints the engine overview.
type StatsRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatsRenderer builds a stats renderer.
func NewStatsRenderer(out io.Writer, noColor bool) *StatsRenderer {
	return &StatsRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes the overview as aligned label/value lines.
func (r *StatsRenderer) Render(info StatsInfo) {
	fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Engine status: "+info.Project))

	fmt.Fprintln(r.out, r.styles.Label.Render("Knowledge base"))
	fmt.Fprintf(r.out, "  Vector chunks:   %d\n", info.VectorChunks)
	fmt.Fprintf(r.out, "  Keyword docs:    %d\n", info.LexicalDocs)
	fmt.Fprintf(r.out, "  Symbols:         %d\n", info.SymbolEntries)
	fmt.Fprintf(r.out, "  Graph entities:  %d\n", info.GraphEntities)
	fmt.Fprintf(r.out, "  Memory:          %s\n", onOff(info.MemoryEnabled))
	fmt.Fprintln(r.out)

	fmt.Fprintln(r.out, r.styles.Label.Render("Cache"))
	if info.CacheEnabled {
		fmt.Fprintf(r.out, "  Entries:         %d\n", info.CacheEntries)
	} else {
		fmt.Fprintln(r.out, "  disabled")
	}
	fmt.Fprintln(r.out)

	fmt.Fprintln(r.out, r.styles.Label.Render("Runs"))
	fmt.Fprintf(r.out, "  Total:           %d\n", info.TotalRuns)
	if info.TotalRuns > 0 {
		fmt.Fprintf(r.out, "  Cache hit rate:  %.1f%%\n", info.CacheHitRate*100)
		fmt.Fprintf(r.out, "  Avg latency:     %.2fs\n", info.AvgElapsedSec)
		fmt.Fprintf(r.out, "  Avg confidence:  %.1f\n", info.AvgConfidence)
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
