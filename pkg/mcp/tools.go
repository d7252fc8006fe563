package mcp

import (
	"bytes"
	"context"

	"github.com/goccy/go-json"

	"github.com/pario-ai/deckgen/pkg/export"
)

// Tool argument structs.

type runsArgs struct {
	Limit int `json:"limit"`
}

type runDetailArgs struct {
	RunID string `json:"run_id"`
}

type cardsArgs struct {
	Set    string `json:"set"`
	Format string `json:"format"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"deckgen_runs":        handleRuns,
	"deckgen_run_detail":  handleRunDetail,
	"deckgen_run_summary": handleRunSummary,
	"deckgen_card_sets":   handleCardSets,
	"deckgen_cards":       handleCards,
	"deckgen_call_stats":  handleCallStats,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "deckgen_runs",
		Description: "List recent flashcard generation runs with card, retry and blocked counts.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum runs to return (optional, default 20)",
				},
			},
		},
	},
	{
		Name:        "deckgen_run_detail",
		Description: "Show one generation run and its progress log.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"run_id"},
			"properties": map[string]any{
				"run_id": map[string]any{
					"type":        "string",
					"description": "The run ID to inspect",
				},
			},
		},
	},
	{
		Name:        "deckgen_run_summary",
		Description: "Show run, card and token totals per model.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "deckgen_card_sets",
		Description: "List saved card sets.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "deckgen_cards",
		Description: "Return the cards of a saved set as csv, md, json or tsv.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"set"},
			"properties": map[string]any{
				"set": map[string]any{
					"type":        "string",
					"description": "Card set name",
				},
				"format": map[string]any{
					"type":        "string",
					"enum":        []string{"csv", "md", "json", "tsv"},
					"description": "Output format (optional, default md)",
				},
			},
		},
	},
	{
		Name:        "deckgen_call_stats",
		Description: "Show audited LLM call counts and tokens by model and status.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleRuns(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args runsArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Limit <= 0 {
		args.Limit = 20
	}
	runs, err := s.tracker.ListRuns(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching runs: " + err.Error())
	}
	return textResult(formatRuns(runs))
}

func handleRunDetail(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args runDetailArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.RunID == "" {
		return errorResult("run_id is required")
	}
	run, err := s.tracker.GetRun(ctx, args.RunID)
	if err != nil {
		return errorResult("Error fetching run: " + err.Error())
	}
	events, err := s.tracker.Events(ctx, args.RunID)
	if err != nil {
		return errorResult("Error fetching run log: " + err.Error())
	}
	return textResult(formatRunDetail(run, events))
}

func handleRunSummary(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	rows, err := s.tracker.Summary(ctx)
	if err != nil {
		return errorResult("Error fetching summary: " + err.Error())
	}
	return textResult(formatRunSummary(rows))
}

func handleCardSets(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cards == nil {
		return textResult("Card store is not configured.")
	}
	sets, err := s.cards.ListSets()
	if err != nil {
		return errorResult("Error listing card sets: " + err.Error())
	}
	return textResult(formatCardSets(sets))
}

func handleCards(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.cards == nil {
		return textResult("Card store is not configured.")
	}
	var args cardsArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Set == "" {
		return errorResult("set is required")
	}
	if args.Format == "" {
		args.Format = "md"
	}
	format, err := export.ParseFormat(args.Format)
	if err != nil {
		return errorResult(err.Error())
	}
	set, err := s.cards.LoadChunks(args.Set)
	if err != nil {
		return errorResult("Error loading card set: " + err.Error())
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, set.Chunks); err != nil {
		return errorResult("Error rendering cards: " + err.Error())
	}
	return textResult(buf.String())
}

func handleCallStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.calls == nil {
		return textResult("Call auditing is not enabled.")
	}
	stats, err := s.calls.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching call stats: " + err.Error())
	}
	return textResult(formatCallStats(stats))
}
