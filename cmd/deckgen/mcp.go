package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/deckgen/pkg/audit"
	"github.com/pario-ai/deckgen/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve run history and saved card sets over MCP on stdio",
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

			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			var calls mcp.CallStatter
			if cfg.Audit.Enabled {
				l, err := audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("open audit db: %w", err)
				}
				defer l.Close()
				calls = l
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return mcp.New(tr, st, calls, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
