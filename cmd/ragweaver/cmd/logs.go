package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ragweaver/ragweaver/internal/output"
	"github.com/ragweaver/ragweaver/internal/trace"
)

func newLogsCmd() *cobra.Command {
	var (
		lines      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent run records",
		Long: `Logs tails the run log: one record per answered question with its intent,
confidence, latency, and cache state. Records from every project share one
log; the PROJECT column tells them apart.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, lines, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of records to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output records as JSON lines")

	return cmd
}

func runLogs(cmd *cobra.Command, lines int, jsonOutput bool) error {
	monitor := trace.NewMonitor(logsDir())
	records, err := monitor.Tail(lines)
	if err != nil {
		return fmt.Errorf("read run log: %w", err)
	}
	if len(records) == 0 {
		output.New(cmd.OutOrStdout()).Info("No runs recorded yet")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPROJECT\tINTENT\tCONF\tELAPSED\tCACHE\tQUERY")
	for _, rec := range records {
		cache := "miss"
		if rec.FromCache {
			cache = "hit"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\t%.2fs\t%s\t%s\n",
			rec.Timestamp, rec.Project, rec.Intent, rec.Confidence,
			rec.ElapsedSec, cache, truncateQuery(rec.Query, 48))
	}
	return w.Flush()
}

func truncateQuery(q string, max int) string {
	runes := []rune(q)
	if len(runes) <= max {
		return q
	}
	return string(runes[:max-3]) + "..."
}
