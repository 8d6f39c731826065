package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragweaver/ragweaver/internal/output"
)

func newAskCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ask \"<question>\"",
		Short: "Ask a question against the project knowledge base",
		Long: `Ask runs one question through the answering pipeline: the query is
analyzed, retrieval fans out across the enabled sources, and the merged
results are reranked, compressed, and synthesized into a cited answer.

Repeated questions are served from the answer cache until their TTL
expires.`,
		Example: `  ragweaver ask "how does the retry policy work?"
  ragweaver ask --json "what is the ingestion chunk size?"
  ragweaver --project api ask "status of the migration?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runAsk(ctx, cmd, strings.Join(args, " "), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the full run record as JSON")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, question string, jsonOutput bool) error {
	asm, err := buildEngine(ctx, buildOptions{})
	if err != nil {
		return err
	}
	defer asm.Close()

	rec, err := asm.engine.Ask(ctx, question)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	out := output.New(cmd.OutOrStdout())
	out.Answer(rec.Answer, int(rec.Confidence), rec.FromCache)
	return nil
}
