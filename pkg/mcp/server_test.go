package mcp

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/pario-ai/deckgen/pkg/models"
)

// fakeTracker implements tracker.Tracker for testing.
type fakeTracker struct {
	runs      []models.RunRecord
	events    []models.Event
	summaries []models.RunSummary
}

func (f *fakeTracker) RecordRun(_ context.Context, _ models.RunRecord) error { return nil }
func (f *fakeTracker) GetRun(_ context.Context, id string) (models.RunRecord, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return models.RunRecord{}, errors.New("run " + id + " not found")
}
func (f *fakeTracker) ListRuns(_ context.Context, limit int) ([]models.RunRecord, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}
func (f *fakeTracker) Summary(_ context.Context) ([]models.RunSummary, error) {
	return f.summaries, nil
}
func (f *fakeTracker) TokensSince(_ context.Context, _ string, _ time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeTracker) LogEvent(_ context.Context, _ models.Event) error { return nil }
func (f *fakeTracker) Events(_ context.Context, _ string) ([]models.Event, error) {
	return f.events, nil
}
func (f *fakeTracker) Cleanup(_ context.Context, _ time.Duration) (int64, error) { return 0, nil }
func (f *fakeTracker) Close() error                                              { return nil }

// fakeCards implements CardSource for testing.
type fakeCards struct {
	sets map[string][]string
}

func (f *fakeCards) ListSets() ([]models.CardSetInfo, error) {
	var out []models.CardSetInfo
	for name, chunks := range f.sets {
		out = append(out, models.CardSetInfo{Name: name, Chunks: len(chunks)})
	}
	return out, nil
}

func (f *fakeCards) LoadChunks(name string) (models.CardSet, error) {
	chunks, ok := f.sets[name]
	if !ok {
		return models.CardSet{}, errors.New("card set not found")
	}
	return models.CardSet{Name: name, Chunks: chunks}, nil
}

type fakeCalls struct {
	stats []models.CallStat
}

func (f *fakeCalls) Stats(_ context.Context) ([]models.CallStat, error) { return f.stats, nil }

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`3`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	_ = json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "deckgen" {
		t.Errorf("server name = %s, want deckgen", result.ServerInfo.Name)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	_ = json.Unmarshal(data, &result)

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("tool %s has no handler", tool.Name)
		}
	}
}

func TestToolCallRuns(t *testing.T) {
	tr := &fakeTracker{
		runs: []models.RunRecord{
			{ID: "run-1", Document: "lecture.pdf", Phase: "complete", TotalCards: 42, BlockedChunks: 1},
			{ID: "run-2", Document: "notes.md", Phase: "error"},
		},
	}
	srv := New(tr, nil, nil, "test")

	result := callTool(t, srv, "deckgen_runs", `{"limit":1}`)
	text := result.Content[0].Text
	if !strings.Contains(text, "lecture.pdf") || !strings.Contains(text, "42") {
		t.Errorf("expected run in output, got: %s", text)
	}
	if strings.Contains(text, "notes.md") {
		t.Errorf("expected limit to apply, got: %s", text)
	}
}

func TestToolCallRunDetail(t *testing.T) {
	tr := &fakeTracker{
		runs: []models.RunRecord{{ID: "run-1", Document: "lecture.pdf", Phase: "complete", Focus: "valves"}},
		events: []models.Event{
			{Level: models.LevelWarn, Message: "Chunk 2 returned no valid cards"},
		},
	}
	srv := New(tr, nil, nil, "test")

	text := callTool(t, srv, "deckgen_run_detail", `{"run_id":"run-1"}`).Content[0].Text
	if !strings.Contains(text, "valves") || !strings.Contains(text, "Chunk 2 returned no valid cards") {
		t.Errorf("unexpected detail output: %s", text)
	}

	result := callTool(t, srv, "deckgen_run_detail", `{}`)
	if !result.IsError {
		t.Error("expected isError=true for missing run_id")
	}

	result = callTool(t, srv, "deckgen_run_detail", `{"run_id":"nope"}`)
	if !result.IsError {
		t.Error("expected isError=true for unknown run")
	}
}

func TestToolCallRunSummary(t *testing.T) {
	tr := &fakeTracker{summaries: []models.RunSummary{{Model: "gemini-3-flash-preview", Runs: 3, TotalCards: 120}}}
	srv := New(tr, nil, nil, "test")

	text := callTool(t, srv, "deckgen_run_summary", `{}`).Content[0].Text
	if !strings.Contains(text, "gemini-3-flash-preview") || !strings.Contains(text, "120") {
		t.Errorf("unexpected summary output: %s", text)
	}
}

func TestToolCallCards(t *testing.T) {
	cards := &fakeCards{sets: map[string][]string{
		"cardio": {`"What is preload?","End-diastolic volume"`},
	}}
	srv := New(&fakeTracker{}, cards, nil, "test")

	text := callTool(t, srv, "deckgen_card_sets", `{}`).Content[0].Text
	if !strings.Contains(text, "cardio") {
		t.Errorf("expected set name, got: %s", text)
	}

	text = callTool(t, srv, "deckgen_cards", `{"set":"cardio"}`).Content[0].Text
	if !strings.Contains(text, "**Q:** What is preload?") {
		t.Errorf("expected markdown cards, got: %s", text)
	}

	text = callTool(t, srv, "deckgen_cards", `{"set":"cardio","format":"json"}`).Content[0].Text
	if !strings.Contains(text, `"question": "What is preload?"`) {
		t.Errorf("expected json cards, got: %s", text)
	}

	if r := callTool(t, srv, "deckgen_cards", `{"set":"missing"}`); !r.IsError {
		t.Error("expected isError=true for unknown set")
	}
	if r := callTool(t, srv, "deckgen_cards", `{"set":"cardio","format":"xlsx"}`); !r.IsError {
		t.Error("expected isError=true for unknown format")
	}
}

func TestToolCallNotConfigured(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")

	for _, name := range []string{"deckgen_card_sets", "deckgen_call_stats"} {
		text := callTool(t, srv, name, `{}`).Content[0].Text
		if !strings.Contains(text, "not") {
			t.Errorf("%s: expected not-configured message, got: %s", name, text)
		}
	}
}

func TestToolCallCallStats(t *testing.T) {
	calls := &fakeCalls{stats: []models.CallStat{{Model: "gemini-3-flash-preview", Status: "error", Count: 7, Tokens: 0}}}
	srv := New(&fakeTracker{}, nil, calls, "test")

	text := callTool(t, srv, "deckgen_call_stats", `{}`).Content[0].Text
	if !strings.Contains(text, "error") || !strings.Contains(text, "7") {
		t.Errorf("unexpected call stats output: %s", text)
	}
}

func TestUnknownTool(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")
	if r := callTool(t, srv, "pario_stats", `{}`); !r.IsError {
		t.Error("expected isError=true for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestPing(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`4`), Method: "ping"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.ID) != "4" {
		t.Errorf("id = %s, want 4", resp.ID)
	}
}

func TestInvalidRequests(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")

	resp := sendAndReceive(t, srv, Request{JSONRPC: "1.0", ID: json.RawMessage(`5`), Method: "ping"})
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Errorf("expected invalid request error, got %+v", resp.Error)
	}

	resp = sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`6`), Method: "tools/call",
		Params: json.RawMessage(`{"arguments":{}}`)})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("expected invalid params error, got %+v", resp.Error)
	}
}

func TestParseError(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")

	var out bytes.Buffer
	if err := srv.Run(context.Background(), strings.NewReader("{not json\n"), &out); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp.Error)
	}
}
