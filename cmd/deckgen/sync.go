package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/deckgen/pkg/cardfmt"
)

func newSyncCmd() *cobra.Command {
	var (
		configPath string
		file       string
		deck       string
	)

	cmd := &cobra.Command{
		Use:   "sync [set]",
		Short: "Sync a saved card set or a card file to Anki",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if deck != "" {
				cfg.Anki.Deck = deck
			}

			var chunks []string
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				chunks = []string{string(data)}
			case len(args) == 1:
				st, closeStore, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer closeStore()
				set, err := st.LoadChunks(args[0])
				if err != nil {
					return err
				}
				chunks = set.Chunks
			default:
				return errors.New("give a card set name or --file")
			}

			records := cardfmt.ParseChunks(chunks)
			if len(records) == 0 {
				return errors.New("no valid cards to sync")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return syncRecords(ctx, cmd.ErrOrStderr(), cfg, records)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&file, "file", "", "sync cards from a csv or tsv file instead of a saved set")
	cmd.Flags().StringVar(&deck, "deck", "", "target deck (default from config)")
	return cmd
}
