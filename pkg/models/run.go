package models

import "time"

// RunRecord is the persisted outcome of one generation run.
type RunRecord struct {
	ID             string    `json:"id"`
	Document       string    `json:"document"`
	Focus          string    `json:"focus,omitempty"`
	Model          string    `json:"model"`
	Phase          string    `json:"phase"`
	Error          string    `json:"error,omitempty"`
	Commands       int       `json:"commands"`
	Selected       int       `json:"selected"`
	TotalCards     int       `json:"total_cards"`
	BlockedChunks  int       `json:"blocked_chunks"`
	RetriedChunks  int       `json:"retried_chunks"`
	DurationMs     int64     `json:"duration_ms"`
	CardsPerMinute int       `json:"cards_per_minute"`
	Usage          Usage     `json:"usage"`
	CreatedAt      time.Time `json:"created_at"`
}

// RunSummary aggregates runs per model.
type RunSummary struct {
	Model       string `json:"model"`
	Runs        int64  `json:"runs"`
	Failed      int64  `json:"failed"`
	TotalCards  int64  `json:"total_cards"`
	Blocked     int64  `json:"blocked_chunks"`
	TotalTokens int64  `json:"total_tokens"`
}

// Event is a single progress, log or phase-transition notification emitted
// by a pipeline run.
type Event struct {
	RunID   string    `json:"run_id"`
	Time    time.Time `json:"time"`
	Phase   string    `json:"phase"`
	Kind    string    `json:"kind"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Current int       `json:"current,omitempty"`
	Total   int       `json:"total,omitempty"`
}

// Event kinds.
const (
	EventPhase    = "phase"
	EventLog      = "log"
	EventProgress = "progress"
)

// Event levels.
const (
	LevelInfo    = "info"
	LevelWarn    = "warn"
	LevelError   = "error"
	LevelSuccess = "success"
)
