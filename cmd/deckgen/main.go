package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

const defaultConfigPath = "deckgen.yaml"

func main() {
	root := &cobra.Command{
		Use:           "deckgen",
		Short:         "deckgen turns documents into flashcard decks with Gemini",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newGenerateCmd(),
		newExportCmd(),
		newSyncCmd(),
		newCardsCmd(),
		newRunsCmd(),
		newCallsCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
