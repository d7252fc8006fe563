package main

import (
	"fmt"
	"os"

	"github.com/pario-ai/deckgen/pkg/config"
	"github.com/pario-ai/deckgen/pkg/logging"
	"github.com/pario-ai/deckgen/pkg/pipeline"
	"github.com/pario-ai/deckgen/pkg/store"
	"github.com/pario-ai/deckgen/pkg/tracker"
)

// loadConfig reads the config file (falling back to defaults), validates it
// and configures logging.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	logging.Init(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

// loadPrompts applies prompt overrides from disk on top of the built-in
// prompts.
func loadPrompts(pc config.PipelineConfig) (pipeline.Prompts, error) {
	p := pipeline.DefaultPrompts()
	p.TaskMarker = pc.TaskMarker
	if pc.SystemPromptFile != "" {
		data, err := os.ReadFile(pc.SystemPromptFile)
		if err != nil {
			return p, fmt.Errorf("read system prompt: %w", err)
		}
		p.System = string(data)
	}
	if pc.ExtractorPromptFile != "" {
		data, err := os.ReadFile(pc.ExtractorPromptFile)
		if err != nil {
			return p, fmt.Errorf("read extractor prompt: %w", err)
		}
		p.Extractor = string(data)
	}
	return p, nil
}

func openStore(cfg *config.Config) (*store.Store, func(), error) {
	st, err := store.New(cfg.DBPath, cfg.Store.MaxChunks, cfg.Store.MaxBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}
	return st, func() { _ = st.Close() }, nil
}

func openTracker(cfg *config.Config) (*tracker.SQLiteTracker, func(), error) {
	tr, err := tracker.New(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("init tracker: %w", err)
	}
	return tr, func() { _ = tr.Close() }, nil
}
