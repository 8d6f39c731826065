package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragweaver/ragweaver/internal/mcpserver"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the engine over the Model Context Protocol (stdio)",
		Long: `MCP exposes the engine to MCP clients over stdio with two tools:

  rag_query   ask a question, get the answer with confidence and intent
  rag_stats   knowledge base and run statistics

Stdout carries protocol messages exclusively; diagnostics go to the log
file (enable with --debug).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runMCP(ctx)
		},
	}

	return cmd
}

func runMCP(ctx context.Context) error {
	// The MCP transport owns stdout from here on, so nothing is printed.
	asm, err := buildEngine(ctx, buildOptions{})
	if err != nil {
		return err
	}
	defer asm.Close()

	srv, err := mcpserver.New(asm.engine)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
