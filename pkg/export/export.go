// Package export writes generated cards in the supported file formats.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/pario-ai/deckgen/pkg/cardfmt"
)

// Format is an export file format.
type Format string

// Supported formats.
const (
	CSV      Format = "csv"
	Markdown Format = "md"
	JSON     Format = "json"
	TSV      Format = "tsv"
)

// Formats lists every supported format.
var Formats = []Format{CSV, Markdown, JSON, TSV}

// ParseFormat resolves a format name or common alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "":
		return CSV, nil
	case "md", "markdown":
		return Markdown, nil
	case "json":
		return JSON, nil
	case "tsv", "txt", "tab":
		return TSV, nil
	}
	return "", fmt.Errorf("unknown export format %q (want csv, md, json or tsv)", s)
}

// Ext returns the file extension for f, without the dot.
func (f Format) Ext() string {
	if f == TSV {
		return "txt"
	}
	return string(f)
}

type card struct {
	ID       int    `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Write renders chunks in format f. CSV keeps the chunk outputs as generated;
// the other formats are built from the parsed records.
func Write(w io.Writer, f Format, chunks []string) error {
	switch f {
	case CSV:
		return writeString(w, strings.Join(chunks, "\n"))
	case Markdown:
		return writeMarkdown(w, cardfmt.ParseChunks(chunks))
	case JSON:
		return writeJSON(w, cardfmt.ParseChunks(chunks))
	case TSV:
		return writeTSV(w, cardfmt.ParseChunks(chunks))
	}
	return fmt.Errorf("unknown export format %q", f)
}

func writeString(w io.Writer, s string) error {
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeMarkdown(w io.Writer, records []cardfmt.Record) error {
	var b strings.Builder
	b.WriteString("# Flashcards\n")
	for i, r := range records {
		fmt.Fprintf(&b, "\n## Card %d\n\n**Q:** %s\n\n**A:** %s\n", i+1, r.Question, r.Answer)
		if r.Tag != "" {
			fmt.Fprintf(&b, "\n_Tags: %s_\n", r.Tag)
		}
	}
	return writeString(w, b.String())
}

func writeJSON(w io.Writer, records []cardfmt.Record) error {
	cards := make([]card, len(records))
	for i, r := range records {
		cards[i] = card{ID: i + 1, Question: r.Question, Answer: r.Answer}
	}
	data, err := json.MarshalIndent(cards, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cards: %w", err)
	}
	return writeString(w, string(data))
}

func writeTSV(w io.Writer, records []cardfmt.Record) error {
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = cardfmt.FormatTab(cardfmt.Record{Question: r.Question, Answer: r.Answer})
	}
	return writeString(w, strings.Join(lines, "\n"))
}
