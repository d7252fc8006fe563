package cardfmt

import "strings"

// Escape doubles embedded quotes so s can sit inside a quoted CSV field.
func Escape(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

// FormatQuoted renders r as a two-field quoted-CSV line. This is the canonical
// format for newly written output. Newlines become <br> so the record stays on
// one line.
func FormatQuoted(r Record) string {
	return `"` + Escape(flatten(r.Question)) + `","` + Escape(flatten(r.Answer)) + `"`
}

// FormatTab renders r as a tab-delimited line, appending the tag when set.
func FormatTab(r Record) string {
	q := strings.ReplaceAll(flatten(r.Question), "\t", " ")
	a := strings.ReplaceAll(flatten(r.Answer), "\t", " ")
	if r.Tag == "" {
		return q + "\t" + a
	}
	return q + "\t" + a + "\t" + r.Tag
}

func flatten(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "<br>")
}
