// Package stats derives run statistics from chunk outputs and the counters
// recorded by the pipeline.
package stats

import (
	"fmt"
	"math"
	"time"

	"github.com/pario-ai/deckgen/pkg/cardfmt"
)

// Counters are the raw values recorded during a generation run.
type Counters struct {
	Blocked int
	Retried int
	Start   time.Time
	End     time.Time
}

// Summary is the finalized view of a run.
type Summary struct {
	TotalCards     int           `json:"total_cards"`
	Chunks         int           `json:"chunks"`
	Blocked        int           `json:"blocked_chunks"`
	Retried        int           `json:"retried_chunks"`
	Start          time.Time     `json:"start_time"`
	End            time.Time     `json:"end_time"`
	Duration       time.Duration `json:"duration"`
	DurationText   string        `json:"duration_text"`
	CardsPerMinute int           `json:"cards_per_minute"`
}

// Compute builds a Summary from chunk outputs and counters.
func Compute(chunks []string, c Counters) Summary {
	s := Summary{
		Chunks:  len(chunks),
		Blocked: c.Blocked,
		Retried: c.Retried,
		Start:   c.Start,
		End:     c.End,
	}
	s.TotalCards = CountCards(chunks)

	d := c.End.Sub(c.Start)
	if d < 0 {
		d = 0
	}
	s.Duration = d
	s.DurationText = FormatDuration(d)
	s.CardsPerMinute = Throughput(s.TotalCards, d)
	return s
}

// Recount re-derives the card count from an edited chunk list. Every other
// field is left as computed at the end of the run.
func (s Summary) Recount(chunks []string) Summary {
	s.TotalCards = CountCards(chunks)
	s.Chunks = len(chunks)
	s.CardsPerMinute = Throughput(s.TotalCards, s.Duration)
	return s
}

// CountCards sums the valid record lines over all chunks.
func CountCards(chunks []string) int {
	total := 0
	for _, c := range chunks {
		total += cardfmt.CountValid(c)
	}
	return total
}

// Throughput returns cards per minute rounded to the nearest integer.
// A zero duration yields 0.
func Throughput(cards int, d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(float64(cards) / d.Minutes()))
}

// FormatDuration renders d as "Xm Ys".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
