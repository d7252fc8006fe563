package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/deckgen/pkg/stats"
)

func newCardsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cards",
		Short: "Manage saved card sets",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved card sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			sets, err := st.ListSets()
			if err != nil {
				return err
			}
			if len(sets) == 0 {
				fmt.Println("No card sets saved.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCHUNKS\tBYTES\tRUN\tUPDATED")
			for _, s := range sets {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
					s.Name, s.Chunks, s.Bytes, defaultStr(s.RunID, "-"), s.UpdatedAt.Format("2006-01-02T15:04:05"))
			}
			return w.Flush()
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <set>",
		Short: "Print a card set and its card count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			set, err := st.LoadChunks(args[0])
			if err != nil {
				return err
			}
			for i, c := range set.Chunks {
				fmt.Printf("# chunk %d\n%s\n\n", i+1, c)
			}
			fmt.Fprintf(os.Stderr, "%d cards in %d chunk(s)\n", stats.CountCards(set.Chunks), len(set.Chunks))
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <set>",
		Short: "Delete a card set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := st.DeleteChunks(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted card set %q.\n", args[0])
			return nil
		},
	}

	var olderThan time.Duration
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all card sets, or only stale ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := st.Clear(olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d card set(s).\n", n)
			return nil
		},
	}
	clearCmd.Flags().DurationVar(&olderThan, "older-than", 0, "only delete sets not updated within this duration")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.AddCommand(listCmd, showCmd, rmCmd, clearCmd)
	return cmd
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
