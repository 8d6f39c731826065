package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragweaver/ragweaver/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base and run statistics",
		Long: `Stats reports the size of each knowledge source (vector chunks, keyword
documents, symbols, graph entities), the cache state, and the rolling run
aggregates collected by the monitor.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runStats(ctx, cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	asm, err := buildEngine(ctx, buildOptions{})
	if err != nil {
		return err
	}
	defer asm.Close()

	stats := asm.engine.Stats(ctx)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	renderer := ui.NewStatsRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	renderer.Render(ui.StatsInfo{
		Project:       stats.Project,
		VectorChunks:  stats.VectorChunks,
		LexicalDocs:   stats.LexicalDocs,
		SymbolEntries: stats.SymbolEntries,
		GraphEntities: stats.GraphEntities,
		MemoryEnabled: stats.MemoryEnabled,
		CacheEnabled:  stats.CacheEnabled,
		CacheEntries:  stats.CacheEntries,
		TotalRuns:     stats.Runs.TotalRuns,
		CacheHitRate:  stats.Runs.CacheHitRate,
		AvgElapsedSec: stats.Runs.AvgElapsedSec,
		AvgConfidence: stats.Runs.AvgConfidence,
	})
	return nil
}
