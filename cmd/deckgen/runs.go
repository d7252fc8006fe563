package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/deckgen/pkg/budget"
	"github.com/pario-ai/deckgen/pkg/models"
	"github.com/pario-ai/deckgen/pkg/stats"
)

func newRunsCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent generation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			tr, closeTracker, err := openTracker(cfg)
			if err != nil {
				return err
			}
			defer closeTracker()

			runs, err := tr.ListRuns(context.Background(), limit)
			if err != nil {
				return err
			}
			fmt.Print(formatRuns(runs))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			tr, closeTracker, err := openTracker(cfg)
			if err != nil {
				return err
			}
			defer closeTracker()

			ctx := context.Background()
			r, err := tr.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			events, err := tr.Events(ctx, r.ID)
			if err != nil {
				return err
			}

			fmt.Printf("Run:       %s\n", r.ID)
			fmt.Printf("Document:  %s\n", r.Document)
			if r.Focus != "" {
				fmt.Printf("Focus:     %s\n", r.Focus)
			}
			fmt.Printf("Model:     %s\n", r.Model)
			fmt.Printf("Phase:     %s\n", r.Phase)
			if r.Error != "" {
				fmt.Printf("Error:     %s\n", r.Error)
			}
			fmt.Printf("Sections:  %d selected of %d\n", r.Selected, r.Commands)
			fmt.Printf("Cards:     %d (%d retried, %d blocked)\n", r.TotalCards, r.RetriedChunks, r.BlockedChunks)
			fmt.Printf("Duration:  %s (%d cards/min)\n",
				stats.FormatDuration(time.Duration(r.DurationMs)*time.Millisecond), r.CardsPerMinute)
			fmt.Printf("Tokens:    %d in / %d out / %d cached\n", r.Usage.InputTokens, r.Usage.OutputTokens, r.Usage.CachedTokens)
			fmt.Printf("Time:      %s\n", r.CreatedAt.Format(time.RFC3339))

			if len(events) > 0 {
				fmt.Println("\n--- Log ---")
				for _, ev := range events {
					fmt.Printf("%s %-7s %-10s %s\n", ev.Time.Format("15:04:05"), strings.ToUpper(ev.Level), ev.Phase, ev.Message)
				}
			}
			return nil
		},
	}

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Show run totals per model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			tr, closeTracker, err := openTracker(cfg)
			if err != nil {
				return err
			}
			defer closeTracker()

			summaries, err := tr.Summary(context.Background())
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tRUNS\tFAILED\tCARDS\tBLOCKED\tTOKENS")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Model, s.Runs, s.Failed, s.TotalCards, s.Blocked, s.TotalTokens)
			}
			return w.Flush()
		},
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than store.retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			tr, closeTracker, err := openTracker(cfg)
			if err != nil {
				return err
			}
			defer closeTracker()

			n, err := tr.Cleanup(context.Background(), cfg.Store.Retention)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d run(s).\n", n)
			return nil
		},
	}

	budgetCmd := &cobra.Command{
		Use:   "budget",
		Short: "Show token usage against the configured budgets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if len(cfg.Budgets) == 0 {
				fmt.Println("No budgets configured.")
				return nil
			}
			tr, closeTracker, err := openTracker(cfg)
			if err != nil {
				return err
			}
			defer closeTracker()

			statuses, err := budget.New(cfg.Budgets, tr).Status(context.Background())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tPERIOD\tMAX TOKENS\tUSED\tREMAINING")
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
					defaultStr(s.Policy.Model, "*"), s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining)
			}
			return w.Flush()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.AddCommand(showCmd, summaryCmd, pruneCmd, budgetCmd)
	return cmd
}

func formatRuns(runs []models.RunRecord) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-24s %-10s %6s %7s %7s %-20s\n",
		"RUN ID", "DOCUMENT", "PHASE", "CARDS", "BLOCKED", "RETRIED", "TIME")
	b.WriteString(strings.Repeat("-", 116) + "\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-36s %-24s %-10s %6d %7d %7d %-20s\n",
			r.ID, clip(r.Document, 24), r.Phase, r.TotalCards, r.BlockedChunks, r.RetriedChunks,
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}
