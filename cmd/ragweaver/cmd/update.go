package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragweaver/ragweaver/internal/output"
)

func newUpdateCmd() *cobra.Command {
	var (
		watch       bool
		symbolsOnly bool
		noTUI       bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Build or refresh the project knowledge base",
		Long: `Update scans the project, chunks changed files, embeds them, and commits
the results to the vector and keyword indexes. Unchanged files are skipped
by content hash; files deleted from disk are removed from every store. The
symbol cache and entity graph are refreshed at the end of each run.

With --watch the command keeps running after the initial pass and
re-ingests files as they change, coalescing bursts of filesystem events.`,
		Example: `  # Full incremental update
  ragweaver update

  # Update, then keep watching for changes
  ragweaver update --watch

  # Rebuild the symbol cache and entity graph only (no re-embedding)
  ragweaver update --symbols-only`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runUpdate(ctx, cmd, watch, symbolsOnly, noTUI)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and re-ingest files as they change")
	cmd.Flags().BoolVar(&symbolsOnly, "symbols-only", false, "Rebuild the symbol cache and entity graph without re-embedding")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")

	return cmd
}

func runUpdate(ctx context.Context, cmd *cobra.Command, watch, symbolsOnly, noTUI bool) error {
	out := output.New(cmd.OutOrStdout())

	opts := buildOptions{}
	if !symbolsOnly {
		opts.progress = cmd.OutOrStdout()
		opts.plainProgress = noTUI
	}
	asm, err := buildEngine(ctx, opts)
	if err != nil {
		return err
	}
	defer asm.Close()

	if symbolsOnly {
		if err := asm.ingest.UpdateLocalKnowledge(ctx); err != nil {
			return fmt.Errorf("symbol rebuild failed: %w", err)
		}
		out.Success("Symbol cache and entity graph refreshed")
		return nil
	}

	if _, err := asm.ingest.Run(ctx); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	if watch {
		out.Newline()
		out.Statusf("👀", "Watching %s for changes (ctrl-c to stop)", asm.root)
		if err := asm.ingest.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watch failed: %w", err)
		}
	}
	return nil
}
