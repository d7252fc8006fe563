// Package budget refuses new generation runs once recorded token usage
// reaches a configured per-period cap.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pario-ai/deckgen/pkg/models"
)

// ErrBudgetExceeded is returned when a run would start over budget.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// UsageSource reports tokens spent by recorded runs.
type UsageSource interface {
	TokensSince(ctx context.Context, model string, since time.Time) (int64, error)
}

// Enforcer checks run token usage against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	usage    UsageSource
	now      func() time.Time
}

// New creates an Enforcer with the given policies and usage source.
func New(policies []models.BudgetPolicy, usage UsageSource) *Enforcer {
	return &Enforcer{policies: policies, usage: usage, now: time.Now}
}

// Check returns an error wrapping ErrBudgetExceeded if any policy that
// applies to model is used up.
func (e *Enforcer) Check(ctx context.Context, model string) error {
	for _, p := range e.policies {
		if p.Model != "" && p.Model != model {
			continue
		}
		used, err := e.usage.TokensSince(ctx, p.Model, p.Period.Start(e.now()))
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if used >= p.MaxTokens {
			return fmt.Errorf("%w: %s budget %s used %d of %d tokens",
				ErrBudgetExceeded, p.Period, scope(p), used, p.MaxTokens)
		}
	}
	return nil
}

// Status returns usage against every configured policy.
func (e *Enforcer) Status(ctx context.Context) ([]models.BudgetStatus, error) {
	statuses := make([]models.BudgetStatus, 0, len(e.policies))
	for _, p := range e.policies {
		used, err := e.usage.TokensSince(ctx, p.Model, p.Period.Start(e.now()))
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Used:      used,
			Remaining: max(p.MaxTokens-used, 0),
		})
	}
	return statuses, nil
}

func scope(p models.BudgetPolicy) string {
	if p.Model == "" {
		return "for all models"
	}
	return "for " + p.Model
}
