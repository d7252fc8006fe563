package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/deckgen/pkg/audit"
	"github.com/pario-ai/deckgen/pkg/models"
)

func newCallsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calls",
		Short: "Query and manage the gateway call audit log",
	}

	cmd.AddCommand(
		newCallsSearchCmd(),
		newCallsStatsCmd(),
		newCallsCleanupCmd(),
	)
	return cmd
}

func newCallsSearchCmd() *cobra.Command {
	var (
		configPath string
		runID      string
		model      string
		operation  string
		since      string
		limit      int
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audited gateway calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.CallQueryOpts{
				RunID:     runID,
				Model:     model,
				Operation: operation,
				Limit:     limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Print(formatCallEntries(entries))
			if verbose {
				for _, e := range entries {
					if e.Prompt != "" {
						fmt.Printf("\n--- %s prompt ---\n%s\n", e.ID, e.Prompt)
					}
					if e.Response != "" {
						fmt.Printf("\n--- %s response ---\n%s\n", e.ID, e.Response)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&runID, "run", "", "filter by run ID")
	cmd.Flags().StringVar(&model, "model", "", "filter by model")
	cmd.Flags().StringVar(&operation, "op", "", "filter by operation (generate_cached, generate_uncached)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print stored prompts and responses")

	return cmd
}

func newCallsStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show call counts and tokens by model and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatCallStats(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func newCallsCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete call entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d call entries.\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func openAuditLogger(configPath string) (*audit.Logger, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func formatCallEntries(entries []models.CallEntry) string {
	if len(entries) == 0 {
		return "No call entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-22s %-18s %3s %-6s %-14s %8s %10s %-20s\n",
		"CALL ID", "MODEL", "OPERATION", "TRY", "STATUS", "ERROR", "LATENCY", "TOKENS", "TIME")
	b.WriteString(strings.Repeat("-", 148) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-36s %-22s %-18s %3d %-6s %-14s %6dms %10d %-20s\n",
			e.ID, e.Model, e.Operation, e.Attempt, e.Status, defaultStr(e.ErrorKind, "-"),
			e.LatencyMs, e.InputTokens+e.OutputTokens,
			e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatCallStats(stats []models.CallStat) string {
	if len(stats) == 0 {
		return "No call stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %-8s %8s %12s\n", "MODEL", "STATUS", "COUNT", "TOKENS")
	b.WriteString(strings.Repeat("-", 56) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-25s %-8s %8d %12d\n", s.Model, s.Status, s.Count, s.Tokens)
	}
	return b.String()
}
