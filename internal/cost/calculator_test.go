package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		balance   int
		wantNext  int
		wantDelta int
	}{
		{"plenty", 100, 50, -50},
		{"exact", 50, 0, -50},
		{"short floors at zero", 30, 0, -30},
		{"empty", 0, 0, 0},
	}

	c := NewCalculator(DefaultRates())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			eff := c.Charge("acct-1", tt.balance)
			require.NotNil(t, eff.AccountID)
			assert.Equal(t, "acct-1", *eff.AccountID)
			assert.Equal(t, tt.wantNext, eff.Balance)
			assert.Equal(t, tt.wantDelta, eff.PointsDelta)
			assert.Equal(t, 50, eff.CostCharged)
		})
	}
}

func TestAffordable(t *testing.T) {
	t.Parallel()

	c := NewCalculator(Rates{PerAnalysis: 50})
	assert.True(t, c.Affordable(50))
	assert.True(t, c.Affordable(1000))
	assert.False(t, c.Affordable(49))
}

func TestNewCalculator_ClampsNegative(t *testing.T) {
	t.Parallel()

	c := NewCalculator(Rates{PerAnalysis: -5, FreeInitPoints: -1})
	assert.Equal(t, 0, c.PerAnalysis())
	assert.Equal(t, 0, c.InitialPoints())
	assert.True(t, c.Affordable(0))
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()

	c := NewCalculator(DefaultRates())
	assert.Equal(t, 50, c.PerAnalysis())
	assert.Equal(t, 1000, c.InitialPoints())
}

func TestFree(t *testing.T) {
	t.Parallel()

	eff := Free()
	assert.Nil(t, eff.AccountID)
	assert.Zero(t, eff.CostCharged)
	assert.Zero(t, eff.PointsDelta)
}
