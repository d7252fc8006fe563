package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pario-ai/deckgen/pkg/content"
	"github.com/pario-ai/deckgen/pkg/models"
)

// Options configures a Gateway.
type Options struct {
	Model         string
	FallbackModel string
	CacheTTL      time.Duration
	Retry         RetryPolicy
	// Calls, when set, receives an entry per generation attempt.
	Calls CallLogger
	// Sleep waits between retries. Defaults to SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Gateway owns the content cache of a single pipeline run and routes
// generation calls through it.
//
// A gateway is in one of three cache states: no cache created, an explicit
// cache handle active, or uncached mode after the backend refused to cache
// content that was too small. Uncached mode sends the stored instruction and
// content inline with every cached-style call.
type Gateway struct {
	backend Backend
	opts    Options

	mu          sync.Mutex
	handle      string
	uncached    bool
	instruction string
	parts       []content.Part
	usage       models.Usage
	runID       string
}

// New creates a Gateway over the given backend.
func New(backend Backend, opts Options) *Gateway {
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	return &Gateway{backend: backend, opts: opts}
}

// Model returns the primary model name.
func (g *Gateway) Model() string {
	return g.opts.Model
}

// SetRunID tags subsequent audited calls with id.
func (g *Gateway) SetRunID(id string) {
	g.mu.Lock()
	g.runID = id
	g.mu.Unlock()
}

// CreateCache stores instruction and parts for the current run and caches
// them on the backend. State from any previous run is discarded. Content too
// small to cache switches the gateway to uncached mode and returns an empty
// handle with a nil error.
func (g *Gateway) CreateCache(ctx context.Context, instruction string, parts []content.Part) (string, error) {
	g.mu.Lock()
	g.handle = ""
	g.uncached = false
	g.instruction = instruction
	g.parts = parts
	g.mu.Unlock()

	return g.createCache(ctx)
}

func (g *Gateway) createCache(ctx context.Context) (string, error) {
	g.mu.Lock()
	req := CacheRequest{
		Model:             g.opts.Model,
		SystemInstruction: g.instruction,
		Parts:             g.parts,
		TTL:               g.opts.CacheTTL,
	}
	g.mu.Unlock()

	name, err := g.backend.CreateCache(ctx, req)
	if err != nil {
		if Classify(err) == KindContentTooSmall {
			g.mu.Lock()
			g.uncached = true
			g.mu.Unlock()
			log.Warn().Str("model", req.Model).Int("bytes", content.Size(req.Parts)).
				Msg("content too small to cache, continuing uncached")
			return "", nil
		}
		return "", Classified(err, "create cache")
	}

	g.mu.Lock()
	g.handle = name
	g.mu.Unlock()
	log.Debug().Str("cache", name).Str("model", req.Model).Dur("ttl", req.TTL).Msg("content cache created")
	return name, nil
}

// GenerateCached runs prompt against the cached content. Without a handle it
// sends the stored instruction and content inline instead. An expired cache
// is recreated and the call retried once.
func (g *Gateway) GenerateCached(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, "generate_cached", prompt, true)
}

// GenerateUncached runs prompt on its own, with no cached or stored content.
func (g *Gateway) GenerateUncached(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, "generate_uncached", prompt, false)
}

func (g *Gateway) generate(ctx context.Context, op, prompt string, withContent bool) (string, error) {
	policy := g.opts.Retry
	recreated := false
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		req := g.request(attempt, prompt, withContent)
		resp, err := g.call(ctx, op, attempt, req)
		if err == nil {
			return resp.Text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		kind := Classify(err)
		if kind == KindCacheExpired && req.CachedContent != "" && !recreated {
			recreated = true
			log.Warn().Str("cache", req.CachedContent).Msg("content cache expired, recreating")
			if _, cerr := g.createCache(ctx); cerr != nil {
				return "", cerr
			}
			attempt-- // the retry after recreation does not use up an attempt
			continue
		}
		if !kind.Retryable() {
			return "", Classified(err, op)
		}

		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}
		delay := policy.Delay(attempt, retryAfterHint(err))
		log.Warn().Err(err).Str("op", op).Str("model", req.Model).
			Int("attempt", attempt).Dur("backoff", delay).Msg("transient backend error, retrying")
		if err := g.opts.Sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("%s: retries exhausted after %d attempts: %w", op, policy.MaxAttempts, Classified(lastErr, op))
}

// request builds the call for attempt. Cached content is bound to the primary
// model, so fallback attempts carry instruction and content inline.
func (g *Gateway) request(attempt int, prompt string, withContent bool) GenerateRequest {
	model := g.opts.Model
	if g.opts.FallbackModel != "" && g.opts.Retry.UsesFallback(attempt) {
		model = g.opts.FallbackModel
	}
	req := GenerateRequest{Model: model, Prompt: prompt}
	if !withContent {
		return req
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.handle != "" && model == g.opts.Model {
		req.CachedContent = g.handle
		return req
	}
	req.SystemInstruction = g.instruction
	req.Parts = g.parts
	return req
}

func (g *Gateway) call(ctx context.Context, op string, attempt int, req GenerateRequest) (Response, error) {
	start := time.Now()
	resp, err := g.backend.Generate(ctx, req)
	latency := time.Since(start)

	if err == nil {
		g.mu.Lock()
		g.usage.Add(resp.Usage)
		g.mu.Unlock()
	}

	if g.opts.Calls != nil {
		g.mu.Lock()
		runID := g.runID
		g.mu.Unlock()
		entry := models.CallEntry{
			ID:           uuid.NewString(),
			RunID:        runID,
			Operation:    op,
			Model:        req.Model,
			Cached:       req.CachedContent != "",
			Attempt:      attempt,
			Status:       "ok",
			Prompt:       req.Prompt,
			Response:     resp.Text,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			CachedTokens: resp.Usage.CachedTokens,
			LatencyMs:    latency.Milliseconds(),
			CreatedAt:    start.UTC(),
		}
		if err != nil {
			entry.Status = "error"
			entry.ErrorKind = Classify(err).String()
		}
		if lerr := g.opts.Calls.Log(context.WithoutCancel(ctx), entry); lerr != nil {
			log.Warn().Err(lerr).Msg("audit call log failed")
		}
	}

	return resp, err
}

// DeleteCache removes the active cache handle, if any. Backend failures are
// logged and otherwise ignored since the cache expires on its own.
func (g *Gateway) DeleteCache(ctx context.Context) {
	g.mu.Lock()
	name := g.handle
	g.handle = ""
	g.uncached = false
	g.mu.Unlock()

	if name == "" {
		return
	}
	if err := g.backend.DeleteCache(ctx, name); err != nil {
		log.Warn().Err(err).Str("cache", name).Msg("delete cache failed")
		return
	}
	log.Debug().Str("cache", name).Msg("content cache deleted")
}

// HasCache reports whether an explicit cache handle is active.
func (g *Gateway) HasCache() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handle != ""
}

// Uncached reports whether the gateway fell back to uncached mode because
// the content was too small to cache.
func (g *Gateway) Uncached() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.uncached
}

// Usage returns token usage accumulated since the last ResetUsage.
func (g *Gateway) Usage() models.Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage
}

// ResetUsage clears accumulated token usage.
func (g *Gateway) ResetUsage() {
	g.mu.Lock()
	g.usage = models.Usage{}
	g.mu.Unlock()
}
