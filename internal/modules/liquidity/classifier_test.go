package liquidity

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/whisper/internal/domain"
)

func TestClassify_OITiers(t *testing.T) {
	c := NewClassifier(zerolog.Nop())

	tests := []struct {
		name string
		oi   int
		want domain.LiquidityTier
	}{
		{"five times size", 500, domain.LiquidityExcellent},
		{"just under five times", 499, domain.LiquidityGood},
		{"twice size", 200, domain.LiquidityGood},
		{"between one and two times", 150, domain.LiquidityWarning},
		{"exactly size", 100, domain.LiquidityWarning},
		{"under size", 99, domain.LiquidityReject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := c.Classify("ACME", tt.oi, 0.05, 100)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.OITier)
		})
	}
}

func TestClassify_SpreadTiers(t *testing.T) {
	c := NewClassifier(zerolog.Nop())

	tests := []struct {
		spread float64
		want   domain.LiquidityTier
	}{
		{0.08, domain.LiquidityExcellent},
		{0.081, domain.LiquidityGood},
		{0.12, domain.LiquidityGood},
		{0.13, domain.LiquidityWarning},
		{0.15, domain.LiquidityWarning},
		{0.151, domain.LiquidityReject},
	}
	for _, tt := range tests {
		a, err := c.Classify("ACME", 1000, tt.spread, 100)
		require.NoError(t, err)
		assert.Equal(t, tt.want, a.SpreadTier, "spread %.3f", tt.spread)
	}
}

func TestClassify_OverallIsWorseOfTwo(t *testing.T) {
	c := NewClassifier(zerolog.Nop())

	// OI 1000 vs position 100 is EXCELLENT; 13% spread is WARNING.
	a, err := c.Classify("ACME", 1000, 0.13, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.LiquidityExcellent, a.OITier)
	assert.Equal(t, domain.LiquidityWarning, a.SpreadTier)
	assert.Equal(t, domain.LiquidityWarning, a.Overall)

	// Worse dimension wins regardless of which one it is.
	a, err = c.Classify("ACME", 50, 0.05, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.LiquidityReject, a.Overall)
}

func TestClassify_WorseCombinationExhaustive(t *testing.T) {
	tiers := []domain.LiquidityTier{
		domain.LiquidityExcellent, domain.LiquidityGood,
		domain.LiquidityWarning, domain.LiquidityReject,
	}
	for _, a := range tiers {
		for _, b := range tiers {
			worse := a.Worse(b)
			assert.GreaterOrEqual(t, int(worse), int(a))
			assert.GreaterOrEqual(t, int(worse), int(b))
			assert.True(t, worse == a || worse == b)
		}
	}
}

func TestClassify_PositionSizeRequired(t *testing.T) {
	c := NewClassifier(zerolog.Nop())

	_, err := c.Classify("ACME", 1000, 0.05, 0)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalid))
}
