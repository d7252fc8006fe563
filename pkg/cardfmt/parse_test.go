package cardfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuoted(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Record
		ok   bool
	}{
		{"simple", `"What is ATP?","Energy currency"`, Record{Question: "What is ATP?", Answer: "Energy currency"}, true},
		{"doubled quotes", `"Said ""hi""","ok"`, Record{Question: `Said "hi"`, Answer: "ok"}, true},
		{"comma inside question", `"A, B or C?","B"`, Record{Question: "A, B or C?", Answer: "B"}, true},
		{"comma inside answer", `"Q","one, two, three"`, Record{Question: "Q", Answer: "one, two, three"}, true},
		{"quote before delimiter", `"Ends with quote""","x"`, Record{Question: `Ends with quote"`, Answer: "x"}, true},
		{"escaped quote in answer", `"Q","He said ""no"" twice"`, Record{Question: "Q", Answer: `He said "no" twice`}, true},
		{"html answer", `"Dose?","<b>5mg</b><br>daily"`, Record{Question: "Dose?", Answer: "<b>5mg</b><br>daily"}, true},
		{"no leading quote", `Q,"A"`, Record{}, false},
		{"no delimiter", `"just one field"`, Record{}, false},
		{"unterminated", `"never closes, at all`, Record{}, false},
		{"empty question", `"","A"`, Record{}, false},
		{"empty", ``, Record{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseQuoted(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQuotedRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"plain", "answer"},
		{`has "quotes"`, `and "more"`},
		{`trailing"`, `"leading`},
		{"commas, everywhere,", ",,"},
		{`""`, `x`},
	}
	for _, p := range pairs {
		q, a := p[0], p[1]
		assert.Equal(t, q, unescape(Escape(q)))

		rec, ok := ParseQuoted(FormatQuoted(Record{Question: q, Answer: a}))
		require.True(t, ok, "line for %q should parse", q)
		assert.Equal(t, q, rec.Question)
		assert.Equal(t, a, rec.Answer)
	}
}

func TestParseTab(t *testing.T) {
	rec, ok := ParseTab("Q1\tA1\t Deck::Sub ")
	require.True(t, ok)
	assert.Equal(t, Record{Question: "Q1", Answer: "A1", Tag: "Deck::Sub"}, rec)

	rec, ok = ParseTab("Q2\tA2")
	require.True(t, ok)
	assert.Empty(t, rec.Tag)

	_, ok = ParseTab("no tab here")
	assert.False(t, ok)
}

func TestParseLine(t *testing.T) {
	_, ok := ParseLine("   ")
	assert.False(t, ok)

	rec, ok := ParseLine(`  "Q","A"  `)
	require.True(t, ok)
	assert.Equal(t, "Q", rec.Question)

	rec, ok = ParseLine("\"Quoted\" term\tplain answer")
	require.True(t, ok)
	assert.Equal(t, "plain answer", rec.Answer)

	_, ok = ParseLine(`"broken`)
	assert.False(t, ok)
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{`"`, `""`, `","`, `"a""`, "\t", "\t\t\t", `"a",`, `,"a"`, "\x00\"\x00"}
	for _, in := range inputs {
		assert.NotPanics(t, func() { ParseLine(in) }, in)
	}
}

func TestParseSkipsBlankAndMalformed(t *testing.T) {
	text := "\"Q1\",\"A1\"\n\n\"Q2\",\"A2\"\nnot a card\n\"Q3\",\"A3\"\n"
	records := Parse(text)
	require.Len(t, records, 3)
	assert.Equal(t, "Q3", records[2].Question)
	assert.Equal(t, 3, CountValid(text))
	assert.Equal(t, []string{"Q1", "Q2", "Q3"}, Questions(text))
}

func TestClean(t *testing.T) {
	raw := "```csv\n\"Q1\",\"A1\"\nHere are your cards:\n\"Q2\",\"A2\"```\n```"
	assert.Equal(t, "\"Q1\",\"A1\"\n\"Q2\",\"A2\"", Clean(raw))
	assert.Empty(t, Clean("```\nnothing useful\n```"))
}

func TestParseChunks(t *testing.T) {
	records := ParseChunks([]string{"\"a\",\"1\"", "b\t2\tT::x"})
	require.Len(t, records, 2)
	assert.Equal(t, "T::x", records[1].Tag)
}

func TestFormatTab(t *testing.T) {
	assert.Equal(t, "Q\tA<br>B", FormatTab(Record{Question: "Q", Answer: "A\nB"}))
	assert.Equal(t, "Q\tA\tT", FormatTab(Record{Question: "Q", Answer: "A", Tag: "T"}))
}
