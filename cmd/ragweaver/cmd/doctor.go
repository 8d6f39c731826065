package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragweaver/ragweaver/internal/config"
	"github.com/ragweaver/ragweaver/internal/output"
	"github.com/ragweaver/ragweaver/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the environment before running queries",
		Long: `Doctor checks everything the pipeline depends on: disk space and write
permissions for the data directory, the file descriptor limit, the
configured LLM and embedding providers, and the optional retrieval
components (ripgrep, symbol cache, entity graph, memory agent).

Required failures exit non-zero. Warnings mean a component is missing
but has a fallback, so answers still work at reduced quality.`,
		Example: `  ragweaver doctor
  ragweaver doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runDoctor(ctx, cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output check results as JSON")

	return cmd
}

// doctorReport is the JSON shape of a full diagnostic run.
type doctorReport struct {
	Status string             `json:"status"`
	Checks []preflight.Result `json:"checks"`
}

func runDoctor(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, err := resolveRoot()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	checker := preflight.New()
	results := checker.RunAll(ctx, cfg, root, config.ProjectDir(cfg.Project))

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(doctorReport{
			Status: checker.SummaryStatus(results),
			Checks: results,
		}); err != nil {
			return err
		}
	} else {
		printDoctorResults(cmd, checker, results)
	}

	if checker.HasCriticalFailures(results) {
		return errors.New("environment check failed")
	}
	return nil
}

func printDoctorResults(cmd *cobra.Command, checker *preflight.Checker, results []preflight.Result) {
	out := output.New(cmd.OutOrStdout())
	out.Header("Environment Check")

	for _, r := range results {
		msg := r.Name + ": " + r.Message
		switch {
		case r.IsCritical():
			out.Error(msg)
		case r.Status == preflight.StatusWarn || r.Status == preflight.StatusFail:
			out.Warning(msg)
		default:
			out.Success(msg)
		}
		if r.Details != "" {
			out.Plain("   " + r.Details)
		}
	}

	out.Newline()
	out.KeyValue("Status", checker.SummaryStatus(results))
}
