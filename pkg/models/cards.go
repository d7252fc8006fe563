package models

import "time"

// CardSet is a named, persisted list of chunk outputs.
type CardSet struct {
	Name      string    `json:"name"`
	RunID     string    `json:"run_id,omitempty"`
	Chunks    []string  `json:"chunks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CardSetInfo summarises a stored card set without its payload.
type CardSetInfo struct {
	Name      string    `json:"name"`
	RunID     string    `json:"run_id,omitempty"`
	Chunks    int       `json:"chunks"`
	Bytes     int64     `json:"bytes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoreStats reports card store metrics.
type StoreStats struct {
	Sets      int64 `json:"sets"`
	Truncated int64 `json:"truncated"`
	Loads     int64 `json:"loads"`
	Misses    int64 `json:"misses"`
}
