package llm

import (
	"context"
	"math"
	"time"
)

// RetryPolicy controls transient-error retries.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// FallbackAttempts is how many of the final attempts switch to the fallback model.
	FallbackAttempts int
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      4,
		InitialDelay:     2 * time.Second,
		MaxDelay:         30 * time.Second,
		BackoffFactor:    2,
		FallbackAttempts: 1,
	}
}

// Delay returns the wait after the given failed attempt (1-based):
// InitialDelay * BackoffFactor^(attempt-1), capped at MaxDelay. A larger
// server hint replaces the computed delay, still subject to the cap.
func (p RetryPolicy) Delay(attempt int, hint time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := time.Duration(float64(p.InitialDelay) * math.Pow(factor, float64(attempt-1)))
	if hint > d {
		d = hint
	}
	if p.MaxDelay > 0 && (d > p.MaxDelay || d < 0) {
		d = p.MaxDelay
	}
	return d
}

// UsesFallback reports whether attempt (1-based) should use the fallback model.
func (p RetryPolicy) UsesFallback(attempt int) bool {
	return p.FallbackAttempts > 0 && attempt > p.MaxAttempts-p.FallbackAttempts
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
