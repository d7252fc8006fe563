package models

import "time"

// BudgetPeriod is the window a budget policy resets on.
type BudgetPeriod string

const (
	BudgetDaily   BudgetPeriod = "daily"
	BudgetMonthly BudgetPeriod = "monthly"
)

// Valid reports whether p is a known period.
func (p BudgetPeriod) Valid() bool {
	return p == BudgetDaily || p == BudgetMonthly
}

// Start returns the UTC start of the period containing now.
func (p BudgetPeriod) Start(now time.Time) time.Time {
	now = now.UTC()
	if p == BudgetMonthly {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// BudgetPolicy caps the tokens generation runs may spend per period.
// An empty Model applies the cap across all models.
type BudgetPolicy struct {
	Model     string       `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens int64        `json:"max_tokens" yaml:"max_tokens"`
	Period    BudgetPeriod `json:"period" yaml:"period"`
}

// BudgetStatus is a policy with the tokens used in its current period.
type BudgetStatus struct {
	Policy    BudgetPolicy `json:"policy"`
	Used      int64        `json:"used"`
	Remaining int64        `json:"remaining"`
}
