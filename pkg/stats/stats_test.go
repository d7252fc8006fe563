package stats

import (
	"testing"
	"time"
)

func TestComputeZeroDuration(t *testing.T) {
	now := time.Now()
	s := Compute([]string{"\"Q\",\"A\""}, Counters{Start: now, End: now})
	if s.TotalCards != 1 {
		t.Errorf("expected 1 card, got %d", s.TotalCards)
	}
	if s.CardsPerMinute != 0 {
		t.Errorf("expected 0 cards/min for zero duration, got %d", s.CardsPerMinute)
	}
	if s.DurationText != "0m 0s" {
		t.Errorf("expected 0m 0s, got %s", s.DurationText)
	}
}

func TestCompute(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	chunks := []string{
		"\"Q1\",\"A1\"\n\"Q2\",\"A2\"\ngarbage",
		"Q3\tA3\tTag",
	}
	s := Compute(chunks, Counters{Blocked: 1, Retried: 2, Start: start, End: start.Add(90 * time.Second)})

	if s.TotalCards != 3 {
		t.Errorf("expected 3 cards, got %d", s.TotalCards)
	}
	if s.Chunks != 2 {
		t.Errorf("expected 2 chunks, got %d", s.Chunks)
	}
	if s.Blocked != 1 || s.Retried != 2 {
		t.Errorf("counters not carried: blocked=%d retried=%d", s.Blocked, s.Retried)
	}
	if s.DurationText != "1m 30s" {
		t.Errorf("expected 1m 30s, got %s", s.DurationText)
	}
	// 3 cards / 1.5 min = 2
	if s.CardsPerMinute != 2 {
		t.Errorf("expected 2 cards/min, got %d", s.CardsPerMinute)
	}
}

func TestRecount(t *testing.T) {
	start := time.Now()
	s := Compute([]string{"\"Q1\",\"A1\"\n\"Q2\",\"A2\""}, Counters{Retried: 1, Start: start, End: start.Add(time.Minute)})
	edited := s.Recount([]string{"\"Q1\",\"A1\""})

	if edited.TotalCards != 1 {
		t.Errorf("expected 1 card after recount, got %d", edited.TotalCards)
	}
	if edited.Retried != 1 || edited.Duration != time.Minute {
		t.Error("recount must not change counters or duration")
	}
	if s.TotalCards != 2 {
		t.Error("recount must not mutate the original summary")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                     "0m 0s",
		59 * time.Second:                      "0m 59s",
		61*time.Second + 400*time.Millisecond: "1m 1s",
		10 * time.Minute:                      "10m 0s",
		-time.Second:                          "0m 0s",
	}
	for d, want := range cases {
		if got := FormatDuration(d); got != want {
			t.Errorf("FormatDuration(%v): expected %s, got %s", d, want, got)
		}
	}
}
