// Package llm wraps a generative model backend with content caching,
// retries, model fallback and error classification.
package llm

import (
	"context"
	"time"

	"github.com/pario-ai/deckgen/pkg/content"
	"github.com/pario-ai/deckgen/pkg/models"
)

// CacheRequest asks the backend to cache a system instruction and content.
type CacheRequest struct {
	Model             string
	SystemInstruction string
	Parts             []content.Part
	TTL               time.Duration
}

// GenerateRequest is a single generation call. When CachedContent is set the
// backend reads instruction and content from the cache and SystemInstruction
// and Parts are ignored.
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Parts             []content.Part
	Prompt            string
	CachedContent     string
}

// Response is the text and token usage of a generation call.
type Response struct {
	Text  string
	Usage models.Usage
}

// Backend is a generative model API.
type Backend interface {
	// CreateCache stores content server-side and returns its handle.
	CreateCache(ctx context.Context, req CacheRequest) (string, error)
	// Generate runs one generation call.
	Generate(ctx context.Context, req GenerateRequest) (Response, error)
	// DeleteCache removes a cached content handle.
	DeleteCache(ctx context.Context, name string) error
}

// CallLogger receives one entry per backend generation call.
type CallLogger interface {
	Log(ctx context.Context, entry models.CallEntry) error
}
