package models

import "time"

// CallEntry is one audited LLM gateway call.
type CallEntry struct {
	ID           string    `json:"id"`
	RunID        string    `json:"run_id"`
	Operation    string    `json:"operation"`
	Model        string    `json:"model"`
	Cached       bool      `json:"cached"`
	Attempt      int       `json:"attempt"`
	Status       string    `json:"status"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Prompt       string    `json:"prompt,omitempty"`
	Response     string    `json:"response,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CachedTokens int       `json:"cached_tokens"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditConfig controls the call audit log.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
	// Include lists optional payloads to store: "prompts", "responses".
	Include     []string `yaml:"include"`
	MaxBodySize int      `yaml:"max_body_size"` // bytes
}

// CallQueryOpts specifies filters for querying audited calls.
type CallQueryOpts struct {
	RunID     string
	Model     string
	Operation string
	Since     time.Time
	Limit     int
}

// CallStat aggregates audited calls by model and status.
type CallStat struct {
	Model  string `json:"model"`
	Status string `json:"status"`
	Count  int    `json:"count"`
	Tokens int    `json:"tokens"`
}
