package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pario-ai/deckgen/pkg/export"
)

func newExportCmd() *cobra.Command {
	var (
		configPath string
		format     string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "export <set>",
		Short: "Export a saved card set as csv, md, json or tsv",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
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
			if len(set.Chunks) == 0 {
				return errors.New("card set is empty")
			}
			if out == "" {
				out = fmt.Sprintf("%s.%s", set.Name, f.Ext())
			}
			return writeExport(cmd.OutOrStdout(), out, f, set.Chunks)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "export format: csv, md, json or tsv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout (default: <set>.<ext>)")
	return cmd
}
