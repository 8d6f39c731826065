package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragweaver/ragweaver/internal/eval"
	"github.com/ragweaver/ragweaver/internal/output"
)

// defaultSuiteName is where a project keeps its evaluation suite when
// --suite is not given.
const defaultSuiteName = "test_suite.json"

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the answer quality panel",
		Long: `Eval asks every question in a test suite and scores the answers against
their ideal references: token precision, completeness, citation usage, and
hallucination risk, each on a 0-10 scale.

The suite is a JSON file of {question, ideal_answer} pairs. Without
--suite, .ragweaver/test_suite.json under the project root is used. The
full report is written to the logs directory; a summary table is printed.`,
		Example: `  ragweaver eval --suite ./eval/suite.json
  ragweaver eval`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runEval(ctx, cmd)
		},
	}

	return cmd
}

func runEval(ctx context.Context, cmd *cobra.Command) error {
	asm, err := buildEngine(ctx, buildOptions{})
	if err != nil {
		return err
	}
	defer asm.Close()

	suitePath := flagSuite
	if suitePath == "" {
		suitePath = filepath.Join(asm.root, ".ragweaver", defaultSuiteName)
	}
	suite, err := eval.LoadSuite(suitePath)
	if err != nil {
		return fmt.Errorf("load suite: %w", err)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("🧪", "Running suite %q (%d questions)", suite.Name, len(suite.Tests))
	out.Newline()

	runner := eval.NewRunner(asm.engine, asm.cfg.Project)
	rep, err := runner.Run(ctx, suite)
	if err != nil {
		return fmt.Errorf("eval failed: %w", err)
	}

	eval.WriteTable(cmd.OutOrStdout(), rep)

	path, err := runner.WriteReport(logsDir(), rep)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	out.Newline()
	out.Statusf("💾", "Report saved to %s", path)
	return nil
}
