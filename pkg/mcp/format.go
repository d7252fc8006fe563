package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/deckgen/pkg/models"
)

// formatRuns formats run records as a text table.
func formatRuns(runs []models.RunRecord) string {
	if len(runs) == 0 {
		return "No runs found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-24s %-10s %6s %8s %8s %-20s\n",
		"Run ID", "Document", "Phase", "Cards", "Retried", "Blocked", "Time")
	b.WriteString(strings.Repeat("-", 118) + "\n")
	for _, r := range runs {
		doc := r.Document
		if len(doc) > 24 {
			doc = doc[:21] + "..."
		}
		fmt.Fprintf(&b, "%-36s %-24s %-10s %6d %8d %8d %-20s\n",
			r.ID, doc, r.Phase, r.TotalCards, r.RetriedChunks, r.BlockedChunks,
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// formatRunDetail formats a run followed by its event log.
func formatRunDetail(r models.RunRecord, events []models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", r.ID, r.Phase)
	fmt.Fprintf(&b, "  Document: %s\n", r.Document)
	if r.Focus != "" {
		fmt.Fprintf(&b, "  Focus:    %s\n", r.Focus)
	}
	fmt.Fprintf(&b, "  Model:    %s\n", r.Model)
	fmt.Fprintf(&b, "  Sections: %d of %d\n", r.Selected, r.Commands)
	fmt.Fprintf(&b, "  Cards:    %d (%d retried, %d blocked, %d/min)\n",
		r.TotalCards, r.RetriedChunks, r.BlockedChunks, r.CardsPerMinute)
	fmt.Fprintf(&b, "  Tokens:   %d in / %d out\n", r.Usage.InputTokens, r.Usage.OutputTokens)
	if r.Error != "" {
		fmt.Fprintf(&b, "  Error:    %s\n", r.Error)
	}
	if len(events) > 0 {
		b.WriteString("\nLog:\n")
		for _, ev := range events {
			fmt.Fprintf(&b, "  %s [%s] %s\n", ev.Time.Format("15:04:05"), ev.Level, ev.Message)
		}
	}
	return b.String()
}

// formatRunSummary formats per-model run totals as a text table.
func formatRunSummary(rows []models.RunSummary) string {
	if len(rows) == 0 {
		return "No runs recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %6s %6s %8s %8s %12s\n",
		"Model", "Runs", "Failed", "Cards", "Blocked", "Tokens")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-25s %6d %6d %8d %8d %12d\n",
			r.Model, r.Runs, r.Failed, r.TotalCards, r.Blocked, r.TotalTokens)
	}
	return b.String()
}

// formatCardSets formats saved card sets as a text table.
func formatCardSets(sets []models.CardSetInfo) string {
	if len(sets) == 0 {
		return "No card sets saved."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %8s %10s %-20s\n", "Set", "Chunks", "Bytes", "Updated")
	b.WriteString(strings.Repeat("-", 71) + "\n")
	for _, s := range sets {
		fmt.Fprintf(&b, "%-30s %8d %10d %-20s\n",
			s.Name, s.Chunks, s.Bytes, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// formatCallStats formats audited call stats as a text table.
func formatCallStats(stats []models.CallStat) string {
	if len(stats) == 0 {
		return "No calls audited."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %-8s %8s %12s\n", "Model", "Status", "Calls", "Tokens")
	b.WriteString(strings.Repeat("-", 56) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-25s %-8s %8d %12d\n", s.Model, s.Status, s.Count, s.Tokens)
	}
	return b.String()
}
