// Package anki syncs parsed cards to a running Anki instance through the
// AnkiConnect HTTP API.
package anki

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/pario-ai/deckgen/pkg/cardfmt"
	"github.com/pario-ai/deckgen/pkg/llm"
)

// DefaultURL is the address AnkiConnect listens on.
const DefaultURL = "http://127.0.0.1:8765"

const apiVersion = 6

// ErrDuplicate is returned by AddNote when the deck already holds the note.
var ErrDuplicate = errors.New("anki: duplicate note")

// Options configures a Client.
type Options struct {
	URL      string
	Deck     string
	NoteType string
	Tags     []string
	// Delay is the pause between consecutive notes during Sync.
	Delay time.Duration
	// Sleep waits between notes; defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client talks to AnkiConnect.
type Client struct {
	opts       Options
	httpClient *http.Client
}

// New creates a Client. A nil httpClient uses one with a 30 second timeout.
func New(opts Options, httpClient *http.Client) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Deck == "" {
		opts.Deck = "Default"
	}
	if opts.NoteType == "" {
		opts.NoteType = "Basic"
	}
	if opts.Sleep == nil {
		opts.Sleep = llm.SleepContext
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{opts: opts, httpClient: httpClient}
}

// Deck returns the target deck name.
func (c *Client) Deck() string {
	return c.opts.Deck
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

type note struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Options   noteOptions       `json:"options"`
	Tags      []string          `json:"tags"`
}

type noteOptions struct {
	AllowDuplicate        bool         `json:"allowDuplicate"`
	DuplicateScope        string       `json:"duplicateScope"`
	DuplicateScopeOptions scopeOptions `json:"duplicateScopeOptions"`
}

type scopeOptions struct {
	DeckName       string `json:"deckName"`
	CheckChildren  bool   `json:"checkChildren"`
	CheckAllModels bool   `json:"checkAllModels"`
}

// invoke performs one AnkiConnect action and decodes its result into out.
func (c *Client) invoke(ctx context.Context, action string, params, out any) error {
	data, err := json.Marshal(request{Action: action, Version: apiVersion, Params: params})
	if err != nil {
		return fmt.Errorf("anki: encode %s: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("anki: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("anki: %s: %w (is Anki running with AnkiConnect installed?)", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("anki: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("anki: %s: HTTP %d: %s", action, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env response
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("anki: decode %s response: %w", action, err)
	}
	if env.Error != nil && *env.Error != "" {
		if strings.Contains(strings.ToLower(*env.Error), "duplicate") {
			return fmt.Errorf("%w: %s", ErrDuplicate, *env.Error)
		}
		return fmt.Errorf("anki: %s: %s", action, *env.Error)
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("anki: decode %s result: %w", action, err)
	}
	return nil
}

// Version returns the AnkiConnect API version, confirming the service is up.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	if err := c.invoke(ctx, "version", nil, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// EnsureDeck creates the target deck if it does not exist.
func (c *Client) EnsureDeck(ctx context.Context) error {
	return c.invoke(ctx, "createDeck", map[string]string{"deck": c.opts.Deck}, nil)
}

// AddNote adds one note with duplicate suppression scoped to the target deck
// and returns its note ID.
func (c *Client) AddNote(ctx context.Context, front, back string, tags ...string) (int64, error) {
	n := note{
		DeckName:  c.opts.Deck,
		ModelName: c.opts.NoteType,
		Fields:    map[string]string{"Front": front, "Back": back},
		Options: noteOptions{
			DuplicateScope: "deck",
			DuplicateScopeOptions: scopeOptions{
				DeckName: c.opts.Deck,
			},
		},
		Tags: mergeTags(c.opts.Tags, tags),
	}
	var id int64
	if err := c.invoke(ctx, "addNote", map[string]any{"note": n}, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// SyncResult reports the outcome of a Sync.
type SyncResult struct {
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
}

// Sync adds one note per record in order, pausing between calls. Duplicates
// are counted and skipped; any other failure aborts the batch and returns the
// counts so far together with the error.
func (c *Client) Sync(ctx context.Context, records []cardfmt.Record) (SyncResult, error) {
	var res SyncResult
	for i, rec := range records {
		if i > 0 && c.opts.Delay > 0 {
			if err := c.opts.Sleep(ctx, c.opts.Delay); err != nil {
				return res, err
			}
		}
		var tags []string
		if rec.Tag != "" {
			tags = append(tags, rec.Tag)
		}
		_, err := c.AddNote(ctx, rec.Question, rec.Answer, tags...)
		if errors.Is(err, ErrDuplicate) {
			res.Duplicates++
			log.Debug().Str("question", rec.Question).Msg("skipping duplicate note")
			continue
		}
		if err != nil {
			return res, fmt.Errorf("sync aborted after %d notes: %w", res.Added, err)
		}
		res.Added++
	}
	return res, nil
}

func mergeTags(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, t := range append(append([]string{}, base...), extra...) {
		t = strings.Join(strings.Fields(t), "_")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
