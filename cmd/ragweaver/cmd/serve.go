package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragweaver/ragweaver/internal/output"
	"github.com/ragweaver/ragweaver/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the answering engine over HTTP",
		Long: `Serve exposes the engine as an HTTP API:

  POST /api/rag/query   ask a question
  GET  /api/rag/stats   knowledge base and run statistics
  GET  /healthz         liveness probe
  GET  /metrics         prometheus metrics

Retrieval budgets are fixed at startup; use the global --top-k and
--context-chars flags to override the configured defaults.`,
		Example: `  ragweaver serve
  ragweaver serve --addr 0.0.0.0:8750
  ragweaver --top-k 20 serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server host:port from config)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, addr string) error {
	asm, err := buildEngine(ctx, buildOptions{})
	if err != nil {
		return err
	}
	defer asm.Close()

	if addr == "" {
		addr = net.JoinHostPort(asm.cfg.Server.Host, strconv.Itoa(asm.cfg.Server.Port))
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("🌐", "Serving %s on http://%s", asm.cfg.Project, addr)

	srv := server.New(asm.engine)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("serve failed: %w", err)
	}
	return nil
}
