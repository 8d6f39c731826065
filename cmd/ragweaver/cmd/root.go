// Package cmd provides the CLI commands for ragweaver.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ragweaver/ragweaver/internal/logging"
	"github.com/ragweaver/ragweaver/internal/profiling"
	"github.com/ragweaver/ragweaver/pkg/version"
)

// Global flags shared by every command. The project flags fall back to
// RAG_PROJECT / RAG_PROJECT_ROOT, then to the enclosing project of the
// working directory; the budget flags override the loaded config.
var (
	flagProject      string
	flagProjectRoot  string
	flagSuite        string
	flagContextChars int
	flagTopK         int
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the ragweaver CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragweaver",
		Short: "Retrieval-augmented answering over project knowledge",
		Long: `Ragweaver answers questions from a local knowledge base built out of a
project's documents and code. Retrieval fans out across semantic, keyword,
symbol, and entity-graph indexes in parallel; the merged results are
reranked, compressed, and synthesized into a cited answer.

Typical flow:

  ragweaver init                 # write the project config scaffold
  ragweaver update               # build or refresh the knowledge base
  ragweaver ask "your question"  # query it`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	// Set version template
	cmd.SetVersionTemplate("ragweaver version {{.Version}}\n")

	// Global flags
	cmd.PersistentFlags().StringVar(&flagProject, "project", "", "Project name (default: $RAG_PROJECT or derived from the project root)")
	cmd.PersistentFlags().StringVar(&flagProjectRoot, "project-root", "", "Project root for ingestion and retrieval (default: $RAG_PROJECT_ROOT or the enclosing project)")
	cmd.PersistentFlags().StringVar(&flagSuite, "suite", "", "Evaluation suite path (used by 'eval')")
	cmd.PersistentFlags().IntVar(&flagContextChars, "context-chars", 0, "Context character budget for synthesis (0 = config default)")
	cmd.PersistentFlags().IntVar(&flagTopK, "top-k", 0, "Documents kept after reranking (0 = config default)")

	// Profiling flags
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	// Debug logging flag
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to the data directory")

	// Setup profiling and logging hooks
	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	// Add subcommands
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts CPU/trace profiling and debug logging if flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	// Start debug logging if enabled
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}

	// Start CPU profiling
	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	// Start trace profiling
	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}

	return nil
}

// stopProfilingAndLogging stops profiling and logging, writes memory profile if requested.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	// Stop CPU profiling
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}

	// Stop tracing
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}

	// Write memory profile if requested
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	// Stop debug logging
	if loggingCleanup != nil {
		slog.Info("debug_logging_stopped")
		loggingCleanup()
		loggingCleanup = nil
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
