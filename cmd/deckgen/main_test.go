package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/deckgen/pkg/config"
	"github.com/pario-ai/deckgen/pkg/export"
	"github.com/pario-ai/deckgen/pkg/models"
	"github.com/pario-ai/deckgen/pkg/pipeline"
	"github.com/pario-ai/deckgen/pkg/stats"
	"github.com/pario-ai/deckgen/pkg/store"
)

func TestClip(t *testing.T) {
	if got := clip("lecture.pdf", 24); got != "lecture.pdf" {
		t.Errorf("clip short = %q", got)
	}
	if got := clip("Điện tâm đồ cơ bản.pdf", 8); got != "Điện tâ~" {
		t.Errorf("clip multibyte = %q", got)
	}
}

func TestFormatRuns(t *testing.T) {
	if got := formatRuns(nil); got != "No runs recorded.\n" {
		t.Errorf("empty = %q", got)
	}
	out := formatRuns([]models.RunRecord{{
		ID: "run-1", Document: "cardiology-lecture-notes-week-3.pdf", Phase: "complete",
		TotalCards: 42, CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}})
	if !strings.Contains(out, "run-1") || !strings.Contains(out, "2026-03-01 09:00:00") {
		t.Errorf("missing fields:\n%s", out)
	}
	if strings.Contains(out, "week-3.pdf") {
		t.Errorf("document should be clipped:\n%s", out)
	}
}

func TestRunRecord(t *testing.T) {
	res := &pipeline.Result{
		RunID:    "run-1",
		Phase:    pipeline.PhaseComplete,
		Document: "lecture.pdf",
		Commands: []string{"a", "b", "c"},
		Selected: []int{0, 2},
		Stats:    stats.Summary{TotalCards: 12, Blocked: 1, Retried: 2, Duration: 90 * time.Second, CardsPerMinute: 8},
		Usage:    models.Usage{InputTokens: 100, OutputTokens: 40},
	}
	r := runRecord(res, "gemini-3-flash-preview", "valves")
	if r.ID != "run-1" || r.Phase != "complete" || r.Focus != "valves" || r.Model != "gemini-3-flash-preview" {
		t.Errorf("unexpected identity fields: %+v", r)
	}
	if r.Commands != 3 || r.Selected != 2 || r.TotalCards != 12 || r.BlockedChunks != 1 || r.RetriedChunks != 2 {
		t.Errorf("unexpected counts: %+v", r)
	}
	if r.DurationMs != 90000 || r.Usage.Total() != 140 {
		t.Errorf("unexpected duration or usage: %+v", r)
	}
}

func TestReadTextFile(t *testing.T) {
	got, err := readTextFile(strings.NewReader("from stdin"), "-")
	if err != nil || got != "from stdin" {
		t.Errorf("stdin = %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("from file"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = readTextFile(nil, path)
	if err != nil || got != "from file" {
		t.Errorf("file = %q, %v", got, err)
	}

	if _, err := readTextFile(nil, filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteExport(t *testing.T) {
	chunks := []string{`"Q1","A1"`}

	var stdout bytes.Buffer
	if err := writeExport(&stdout, "-", export.CSV, chunks); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "\"Q1\",\"A1\"\n" {
		t.Errorf("stdout = %q", stdout.String())
	}

	path := filepath.Join(t.TempDir(), "deck.txt")
	if err := writeExport(&stdout, path, export.TSV, chunks); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Q1\tA1\n" {
		t.Errorf("file = %q", data)
	}
}

func TestLoadPrompts(t *testing.T) {
	dir := t.TempDir()
	sys := filepath.Join(dir, "system.txt")
	if err := os.WriteFile(sys, []byte("custom system"), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := loadPrompts(config.PipelineConfig{TaskMarker: "Giai đoạn 2", SystemPromptFile: sys})
	if err != nil {
		t.Fatal(err)
	}
	if p.System != "custom system" || p.TaskMarker != "Giai đoạn 2" {
		t.Errorf("unexpected prompts: system=%q marker=%q", p.System, p.TaskMarker)
	}
	if p.Extractor != pipeline.DefaultPrompts().Extractor {
		t.Error("extractor should keep its default")
	}

	if _, err := loadPrompts(config.PipelineConfig{ExtractorPromptFile: filepath.Join(dir, "missing.txt")}); err == nil {
		t.Error("expected error for missing extractor prompt")
	}
}

func TestSaveCardSetReportsTruncation(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "cards.db"), 2, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	truncated, err := saveCardSet(st, "small", "run-1", []string{`"Q1","A1"`})
	if err != nil {
		t.Fatal(err)
	}
	if truncated {
		t.Error("one chunk should fit")
	}

	truncated, err = saveCardSet(st, "big", "run-2", []string{`"Q1","A1"`, `"Q2","A2"`, `"Q3","A3"`})
	if err != nil {
		t.Fatal(err)
	}
	if !truncated {
		t.Error("expected truncation past max_chunks")
	}

	// An earlier truncated set must not flag later saves that fit.
	truncated, err = saveCardSet(st, "again", "run-3", []string{`"Q4","A4"`})
	if err != nil {
		t.Fatal(err)
	}
	if truncated {
		t.Error("later save should not report truncation")
	}
}
