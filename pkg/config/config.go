package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pario-ai/deckgen/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all deckgen configuration.
type Config struct {
	APIKey   string                `yaml:"api_key"`
	BaseURL  string                `yaml:"base_url"`
	Model    string                `yaml:"model"`
	DBPath   string                `yaml:"db_path"`
	Cache    CacheConfig           `yaml:"cache"`
	Retry    RetryConfig           `yaml:"retry"`
	Router   RouterConfig          `yaml:"router"`
	Pipeline PipelineConfig        `yaml:"pipeline"`
	Anki     AnkiConfig            `yaml:"anki"`
	Store    StoreConfig           `yaml:"store"`
	Audit    models.AuditConfig    `yaml:"audit"`
	Budgets  []models.BudgetPolicy `yaml:"budgets"`
	Log      LogConfig             `yaml:"log"`
}

// RouterConfig defines model aliases and fallback chains.
type RouterConfig struct {
	Routes []RouteConfig `yaml:"routes"`
}

// RouteConfig maps a model alias to an ordered list of concrete models.
// The first target is the primary model, the second the fallback.
type RouteConfig struct {
	Model   string   `yaml:"model"`
	Targets []string `yaml:"targets"`
}

// CacheConfig controls the server-side content cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// RetryConfig controls transient-error retries in the LLM gateway.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	// FallbackAttempts is how many of the final attempts use the fallback model.
	FallbackAttempts int `yaml:"fallback_attempts"`
}

// PipelineConfig controls the generation pipeline.
type PipelineConfig struct {
	RequestDelay  time.Duration `yaml:"request_delay"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	HistoryWindow int           `yaml:"history_window"`
	TaskMarker    string        `yaml:"task_marker"`
	Review        bool          `yaml:"review"`
	// Optional prompt overrides read from disk.
	SystemPromptFile    string `yaml:"system_prompt_file"`
	ExtractorPromptFile string `yaml:"extractor_prompt_file"`
}

// AnkiConfig points at an AnkiConnect instance.
type AnkiConfig struct {
	URL      string        `yaml:"url"`
	Deck     string        `yaml:"deck"`
	NoteType string        `yaml:"note_type"`
	Tags     []string      `yaml:"tags"`
	Delay    time.Duration `yaml:"delay"`
}

// StoreConfig caps the persisted card list and run history.
type StoreConfig struct {
	MaxChunks int           `yaml:"max_chunks"`
	MaxBytes  int           `yaml:"max_bytes"`
	Retention time.Duration `yaml:"retention"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "gemini-3-flash-preview",
		DBPath:  "deckgen.db",
		Cache: CacheConfig{
			TTL: time.Hour,
		},
		Retry: RetryConfig{
			MaxAttempts:      4,
			InitialDelay:     2 * time.Second,
			MaxDelay:         30 * time.Second,
			BackoffFactor:    2,
			FallbackAttempts: 1,
		},
		Pipeline: PipelineConfig{
			RequestDelay:  time.Second,
			RetryDelay:    2 * time.Second,
			HistoryWindow: 50,
			TaskMarker:    "Phase 2",
		},
		Anki: AnkiConfig{
			URL:      "http://127.0.0.1:8765",
			Deck:     "Default",
			NoteType: "Basic",
			Tags:     []string{"deckgen"},
			Delay:    100 * time.Millisecond,
		},
		Store: StoreConfig{
			MaxChunks: 500,
			MaxBytes:  4 << 20,
			Retention: 30 * 24 * time.Hour,
		},
		Audit: models.AuditConfig{
			Enabled:       false,
			DBPath:        "deckgen-audit.db",
			RetentionDays: 14,
			MaxBodySize:   64 << 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults when the file
// does not exist. GEMINI_API_KEY fills an empty api_key either way.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	return cfg, nil
}

// Validate reports structural problems that would make a run fail later.
func (c *Config) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.FallbackAttempts < 0 || c.Retry.FallbackAttempts > c.Retry.MaxAttempts {
		errs = append(errs, errors.New("retry.fallback_attempts must be between 0 and max_attempts"))
	}
	if c.Pipeline.HistoryWindow < 0 {
		errs = append(errs, errors.New("pipeline.history_window must not be negative"))
	}
	if c.Pipeline.TaskMarker == "" {
		errs = append(errs, errors.New("pipeline.task_marker is required"))
	}
	for i, b := range c.Budgets {
		if b.MaxTokens <= 0 {
			errs = append(errs, fmt.Errorf("budgets[%d]: max_tokens must be positive", i))
		}
		if !b.Period.Valid() {
			errs = append(errs, fmt.Errorf("budgets[%d]: period must be daily or monthly", i))
		}
	}
	for _, r := range c.Router.Routes {
		if r.Model == "" || len(r.Targets) == 0 {
			errs = append(errs, fmt.Errorf("route %q: model and targets are required", r.Model))
		}
	}
	return errors.Join(errs...)
}
