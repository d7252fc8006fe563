// Package cardfmt reads and writes the line-oriented card formats produced by
// the generation model: quoted CSV ("Q","A") and tab-delimited Q<TAB>A[<TAB>Tag].
package cardfmt

import (
	"strings"
)

// Record is a single flashcard parsed from one line of model output.
type Record struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Tag      string `json:"tag,omitempty"`
}

// ParseLine parses one line in either supported shape.
// Lines starting with a quote are read as quoted CSV, anything else as
// tab-delimited. A quoted line that is not valid CSV but carries a tab is
// retried as tab-delimited. Blank or malformed lines return false.
func ParseLine(line string) (Record, bool) {
	line = strings.TrimRight(line, "\r")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Record{}, false
	}
	if trimmed[0] == '"' {
		if rec, ok := ParseQuoted(trimmed); ok {
			return rec, true
		}
		if !strings.Contains(line, "\t") {
			return Record{}, false
		}
	}
	return ParseTab(line)
}

// ParseQuoted parses a quoted-CSV line of the form "Question","Answer".
// Doubled quotes inside a quoted field are an escaped quote. The comma
// delimiter is only significant outside quotes and directly after a closing
// quote.
func ParseQuoted(line string) (Record, bool) {
	if len(line) == 0 || line[0] != '"' {
		return Record{}, false
	}

	delim := -1
	inQuotes := true
	for i := 1; i < len(line); i++ {
		switch line[i] {
		case '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				i++ // escaped quote, stay inside
				continue
			}
			inQuotes = !inQuotes
		case ',':
			if !inQuotes && line[i-1] == '"' {
				delim = i
			}
		}
		if delim >= 0 {
			break
		}
	}
	// need at least an opening and a closing quote before the delimiter
	if delim < 2 {
		return Record{}, false
	}

	question := unescape(line[1 : delim-1])
	answer := strings.TrimSpace(line[delim+1:])
	if len(answer) >= 2 && answer[0] == '"' && answer[len(answer)-1] == '"' {
		answer = answer[1 : len(answer)-1]
	}
	answer = unescape(answer)

	if strings.TrimSpace(question) == "" {
		return Record{}, false
	}
	return Record{Question: question, Answer: answer}, true
}

// ParseTab parses a tab-delimited line: Question<TAB>Answer[<TAB>Tag].
func ParseTab(line string) (Record, bool) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, "\t")
	if len(parts) < 2 {
		return Record{}, false
	}
	rec := Record{Question: parts[0], Answer: parts[1]}
	if len(parts) > 2 {
		rec.Tag = strings.TrimSpace(parts[2])
	}
	if strings.TrimSpace(rec.Question) == "" {
		return Record{}, false
	}
	return rec, true
}

// Parse returns every valid record in a multi-line chunk output.
func Parse(text string) []Record {
	var records []Record
	for _, line := range strings.Split(text, "\n") {
		if rec, ok := ParseLine(line); ok {
			records = append(records, rec)
		}
	}
	return records
}

// ParseChunks flattens the records of several chunk outputs in order.
func ParseChunks(chunks []string) []Record {
	var records []Record
	for _, c := range chunks {
		records = append(records, Parse(c)...)
	}
	return records
}

// CountValid returns the number of lines in text that parse as records.
func CountValid(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if _, ok := ParseLine(line); ok {
			n++
		}
	}
	return n
}

// Questions returns the question of every valid record in text.
func Questions(text string) []string {
	var qs []string
	for _, rec := range Parse(text) {
		qs = append(qs, rec.Question)
	}
	return qs
}

// Clean strips Markdown code fences from raw model output and keeps only the
// lines that parse as records. It returns "" when nothing valid remains.
func Clean(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		line = strings.ReplaceAll(line, "```", "")
		line = strings.TrimRight(line, "\r")
		if _, ok := ParseLine(line); ok {
			kept = append(kept, strings.TrimSpace(line))
		}
	}
	return strings.Join(kept, "\n")
}

func unescape(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}
