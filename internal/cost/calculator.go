// Package cost computes the ledger effect of a settled analysis.
package cost

import "github.com/sells-group/lifeline/internal/model"

// Rates holds ledger pricing configuration.
type Rates struct {
	PerAnalysis    int `yaml:"cost_per_analysis" mapstructure:"cost_per_analysis"`
	FreeInitPoints int `yaml:"free_init_points" mapstructure:"free_init_points"`
}

// DefaultRates charges 50 points per analysis and grants 1000 on signup.
func DefaultRates() Rates {
	return Rates{PerAnalysis: 50, FreeInitPoints: 1000}
}

// Calculator computes charges against account balances.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Negative rates
// are treated as zero.
func NewCalculator(rates Rates) *Calculator {
	if rates.PerAnalysis < 0 {
		rates.PerAnalysis = 0
	}
	if rates.FreeInitPoints < 0 {
		rates.FreeInitPoints = 0
	}
	return &Calculator{rates: rates}
}

// PerAnalysis returns the fixed charge for one default-credential analysis.
func (c *Calculator) PerAnalysis() int {
	return c.rates.PerAnalysis
}

// InitialPoints returns the balance granted to new accounts.
func (c *Calculator) InitialPoints() int {
	return c.rates.FreeInitPoints
}

// Affordable reports whether balance covers one analysis.
func (c *Calculator) Affordable(balance int) bool {
	return balance >= c.rates.PerAnalysis
}

// Charge computes the debit of one analysis from balance. The resulting
// balance never goes below zero; CostCharged is always the full rate.
func (c *Calculator) Charge(accountID string, balance int) model.LedgerEffect {
	next := balance - c.rates.PerAnalysis
	if next < 0 {
		next = 0
	}
	id := accountID
	return model.LedgerEffect{
		AccountID:   &id,
		PointsDelta: next - balance,
		CostCharged: c.rates.PerAnalysis,
		Balance:     next,
	}
}

// Free is the ledger effect of a run that is not charged.
func Free() model.LedgerEffect {
	return model.LedgerEffect{}
}
