// Package pipeline drives a document through outline, command extraction and
// per-chunk card generation against an LLM gateway.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pario-ai/deckgen/pkg/cardfmt"
	"github.com/pario-ai/deckgen/pkg/content"
	"github.com/pario-ai/deckgen/pkg/llm"
	"github.com/pario-ai/deckgen/pkg/models"
	"github.com/pario-ai/deckgen/pkg/stats"
)

var errEmptyResponse = errors.New("empty response")

// Generator is the LLM gateway surface used by the orchestrator.
// *llm.Gateway implements it.
type Generator interface {
	CreateCache(ctx context.Context, instruction string, parts []content.Part) (string, error)
	GenerateCached(ctx context.Context, prompt string) (string, error)
	GenerateUncached(ctx context.Context, prompt string) (string, error)
	DeleteCache(ctx context.Context)
	HasCache() bool
	Uncached() bool
	Usage() models.Usage
	ResetUsage()
	SetRunID(id string)
}

var _ Generator = (*llm.Gateway)(nil)

// Listener receives every event emitted by an orchestrator.
type Listener func(models.Event)

// Options configures an Orchestrator.
type Options struct {
	// APIKey must be non-empty for a run to start.
	APIKey        string
	Prompts       Prompts
	Review        bool
	RequestDelay  time.Duration
	RetryDelay    time.Duration
	HistoryWindow int
	// Ladder overrides DefaultLadder.
	Ladder []Variant
	Sleep  func(ctx context.Context, d time.Duration) error
	Now    func() time.Time
}

// Request is the input of a run.
type Request struct {
	Source content.Source
	Focus  string
}

// Result is the state of a run when control returns to the caller.
type Result struct {
	RunID    string        `json:"run_id"`
	Phase    Phase         `json:"phase"`
	Document string        `json:"document"`
	Outline  string        `json:"outline"`
	Commands []string      `json:"commands"`
	Selected []int         `json:"selected,omitempty"`
	Chunks   []string      `json:"chunks,omitempty"`
	Stats    stats.Summary `json:"stats"`
	Usage    models.Usage  `json:"usage"`
	Error    string        `json:"error,omitempty"`
}

// Records parses every card of the result.
func (r *Result) Records() []cardfmt.Record {
	return cardfmt.ParseChunks(r.Chunks)
}

// Orchestrator runs one pipeline at a time over a Generator.
type Orchestrator struct {
	gen  Generator
	opts Options

	mu        sync.Mutex
	phase     Phase
	working   bool
	pending   *Result
	listeners []Listener
}

// New creates an Orchestrator.
func New(gen Generator, opts Options) *Orchestrator {
	opts.Prompts = opts.Prompts.withDefaults()
	if len(opts.Ladder) == 0 {
		opts.Ladder = DefaultLadder()
	}
	if opts.Sleep == nil {
		opts.Sleep = llm.SleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{gen: gen, opts: opts, phase: PhaseIdle}
}

// Subscribe registers l for all future events.
func (o *Orchestrator) Subscribe(l Listener) {
	o.mu.Lock()
	o.listeners = append(o.listeners, l)
	o.mu.Unlock()
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Pending returns the run awaiting review, or nil.
func (o *Orchestrator) Pending() *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending
}

// Run validates req, builds the outline and extracts generation commands.
// With review enabled it stops in the reviewing phase and returns the
// commands; call Confirm or Discard next. Otherwise it generates cards for
// every command and returns the completed result.
//
// Validation failures return a *ValidationError and leave the phase unchanged.
// On cancellation the result holds whatever was generated so far.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.end()

	res := &Result{
		RunID:    uuid.NewString(),
		Document: content.DisplayName(req.Source),
	}
	o.gen.SetRunID(res.RunID)
	o.gen.ResetUsage()

	if err := o.prepare(ctx, req, res); err != nil {
		return o.fail(ctx, res, err)
	}

	if o.opts.Review {
		o.mu.Lock()
		o.pending = res
		o.mu.Unlock()
		res.Phase = PhaseReviewing
		o.transition(res, PhaseReviewing, fmt.Sprintf("Select the sections to generate (%d found)", len(res.Commands)))
		return res, nil
	}

	res.Selected = All(len(res.Commands))
	return o.generate(ctx, res)
}

// Confirm starts generation for the selected command indices (0-based) of the
// run awaiting review. An empty or invalid selection is rejected and the run
// stays in review.
func (o *Orchestrator) Confirm(ctx context.Context, selection []int) (*Result, error) {
	o.mu.Lock()
	if o.working {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	res := o.pending
	if o.phase != PhaseReviewing || res == nil {
		o.mu.Unlock()
		return nil, ErrNotReviewing
	}
	sel, err := normalizeSelection(selection, len(res.Commands))
	if err != nil {
		o.mu.Unlock()
		o.emit(res.RunID, models.EventLog, models.LevelWarn, err.Error(), 0, 0)
		return nil, err
	}
	o.pending = nil
	o.working = true
	o.mu.Unlock()
	defer o.end()

	res.Selected = sel
	return o.generate(ctx, res)
}

// Discard abandons the run awaiting review and releases its cache.
func (o *Orchestrator) Discard(ctx context.Context) error {
	o.mu.Lock()
	res := o.pending
	if o.working || o.phase != PhaseReviewing || res == nil {
		o.mu.Unlock()
		return ErrNotReviewing
	}
	o.pending = nil
	o.mu.Unlock()

	o.gen.DeleteCache(context.WithoutCancel(ctx))
	res.Phase = PhaseIdle
	o.transition(res, PhaseIdle, "Run discarded")
	return nil
}

func (o *Orchestrator) validate(req Request) error {
	if strings.TrimSpace(o.opts.APIKey) == "" {
		return &ValidationError{Field: "api_key", Message: "an API key is required"}
	}
	if req.Source.Empty() {
		return &ValidationError{Field: "source", Message: "provide text or at least one file"}
	}
	return nil
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.working || o.phase == PhaseReviewing {
		return ErrBusy
	}
	o.working = true
	return nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.working = false
	o.mu.Unlock()
}

// prepare runs phases 1 and 2: normalization, caching, outline, extraction.
func (o *Orchestrator) prepare(ctx context.Context, req Request, res *Result) error {
	o.transition(res, PhasePreparing, "Preparing "+res.Document)
	parts, err := content.Normalize(ctx, req.Source)
	if err != nil {
		return fmt.Errorf("normalize content: %w", err)
	}
	if _, err := o.gen.CreateCache(ctx, o.opts.Prompts.System, parts); err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	if o.gen.Uncached() {
		o.emit(res.RunID, models.EventLog, models.LevelWarn, "Document is too small to cache, sending it with every request", 0, 0)
	}

	o.transition(res, PhaseOutline, "Analyzing document structure")
	outline, err := o.gen.GenerateCached(ctx, OutlinePrompt(res.Document, req.Focus))
	if err != nil {
		return fmt.Errorf("outline: %w", err)
	}
	res.Outline = outline
	o.emit(res.RunID, models.EventLog, models.LevelSuccess, "Outline generated", 0, 0)

	o.transition(res, PhaseExtracting, "Extracting generation commands")
	extracted, err := o.gen.GenerateUncached(ctx, ExtractionPrompt(o.opts.Prompts.extractor(), outline))
	if err != nil {
		return fmt.Errorf("extract commands: %w", err)
	}
	res.Commands = ExtractCommands(extracted, o.opts.Prompts.TaskMarker)
	if len(res.Commands) == 0 {
		return ErrNoCommands
	}
	o.emit(res.RunID, models.EventLog, models.LevelSuccess, fmt.Sprintf("Found %d command(s) for card generation", len(res.Commands)), 0, 0)
	return nil
}

// generate runs phase 3 over res.Selected and always releases the cache.
func (o *Orchestrator) generate(ctx context.Context, res *Result) (*Result, error) {
	o.transition(res, PhaseGenerating, "Generating cards")
	counters := stats.Counters{Start: o.opts.Now()}
	var history []string
	res.Chunks = nil
	total := len(res.Selected)
	firstCall := true

	for i, idx := range res.Selected {
		if ctx.Err() != nil {
			break
		}
		command := res.Commands[idx]
		o.emit(res.RunID, models.EventProgress, models.LevelInfo,
			fmt.Sprintf("Processing chunk %d/%d: %s", i+1, total, truncate(command, 60)), i+1, total)

		out, retried, err := o.runLadder(ctx, command, history, firstCall)
		firstCall = false
		if retried {
			counters.Retried++
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			counters.Blocked++
			o.emit(res.RunID, models.EventLog, models.LevelError,
				fmt.Sprintf("Chunk %d blocked after %d attempts: %v", i+1, len(o.opts.Ladder), err), i+1, total)
			continue
		}

		cleaned := cardfmt.Clean(out)
		if cleaned == "" {
			o.emit(res.RunID, models.EventLog, models.LevelWarn, fmt.Sprintf("Chunk %d returned no valid cards", i+1), i+1, total)
			continue
		}
		history = append(history, cardfmt.Questions(cleaned)...)
		res.Chunks = append(res.Chunks, cleaned)
	}

	o.gen.DeleteCache(context.WithoutCancel(ctx))
	counters.End = o.opts.Now()
	res.Stats = stats.Compute(res.Chunks, counters)
	res.Usage = o.gen.Usage()

	if err := ctx.Err(); err != nil {
		res.Phase = PhaseCancelled
		res.Error = err.Error()
		o.transition(res, PhaseCancelled, fmt.Sprintf("Run cancelled after %d chunk(s)", len(res.Chunks)))
		return res, err
	}

	res.Phase = PhaseComplete
	o.transition(res, PhaseComplete, fmt.Sprintf("Generated %d cards in %s (%d retried, %d blocked)",
		res.Stats.TotalCards, res.Stats.DurationText, res.Stats.Retried, res.Stats.Blocked))
	return res, nil
}

// runLadder tries each variant in order until one returns a non-empty
// response. retried reports whether any escalation happened.
func (o *Orchestrator) runLadder(ctx context.Context, command string, history []string, firstCall bool) (text string, retried bool, err error) {
	window := recentHistory(history, o.opts.HistoryWindow)
	for step, v := range o.opts.Ladder {
		if step > 0 {
			retried = true
		}
		if d := preDelay(o.opts.RequestDelay, o.opts.RetryDelay, step, firstCall); d > 0 {
			if serr := o.opts.Sleep(ctx, d); serr != nil {
				return "", retried, serr
			}
		}
		if cerr := ctx.Err(); cerr != nil {
			return "", retried, cerr
		}

		text, err = o.gen.GenerateCached(ctx, v.Build(command, window))
		if err == nil && strings.TrimSpace(text) == "" {
			err = errEmptyResponse
		}
		if err == nil {
			return text, retried, nil
		}
		if ctx.Err() != nil {
			return "", retried, ctx.Err()
		}
		log.Warn().Err(err).Str("variant", v.Label).Int("step", step+1).Msg("chunk attempt failed")
	}
	return "", retried, err
}

func (o *Orchestrator) fail(ctx context.Context, res *Result, err error) (*Result, error) {
	o.gen.DeleteCache(context.WithoutCancel(ctx))
	res.Usage = o.gen.Usage()
	res.Error = err.Error()
	if ctx.Err() != nil {
		res.Phase = PhaseCancelled
		o.transition(res, PhaseCancelled, "Run cancelled")
		return res, ctx.Err()
	}
	res.Phase = PhaseError
	o.setPhase(PhaseError)
	o.emit(res.RunID, models.EventPhase, models.LevelError, "Error: "+err.Error(), 0, 0)
	return res, err
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

func (o *Orchestrator) transition(res *Result, p Phase, msg string) {
	o.setPhase(p)
	level := models.LevelInfo
	if p == PhaseComplete {
		level = models.LevelSuccess
	} else if p == PhaseCancelled {
		level = models.LevelWarn
	}
	o.emit(res.RunID, models.EventPhase, level, msg, 0, 0)
}

func (o *Orchestrator) emit(runID, kind, level, msg string, current, total int) {
	o.mu.Lock()
	ev := models.Event{
		RunID:   runID,
		Time:    o.opts.Now(),
		Phase:   string(o.phase),
		Kind:    kind,
		Level:   level,
		Message: msg,
		Current: current,
		Total:   total,
	}
	listeners := append([]Listener(nil), o.listeners...)
	o.mu.Unlock()

	log.WithLevel(zerologLevel(level)).Str("run_id", runID).Str("phase", ev.Phase).Str("kind", kind).Msg(msg)
	for _, l := range listeners {
		l(ev)
	}
}

func zerologLevel(level string) zerolog.Level {
	switch level {
	case models.LevelWarn:
		return zerolog.WarnLevel
	case models.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
