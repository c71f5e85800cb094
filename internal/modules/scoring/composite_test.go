package scoring

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/whisper/internal/domain"
)

func vrpWith(ratio, consistency float64) *domain.VRPResult {
	return &domain.VRPResult{
		Ticker:      "ACME",
		VRPRatio:    ratio,
		Consistency: consistency,
	}
}

func TestWeights_Validate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())

	bad := Weights{VRP: 0.5, Consistency: 0.2, Skew: 0.2, Liquidity: 0.2}
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrConfiguration))

	negative := Weights{VRP: 1.2, Consistency: -0.2, Skew: 0, Liquidity: 0}
	err = negative.Validate()
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrConfiguration))
}

func TestNewScorer_RejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.VRP = 0.9
	_, err := NewScorer(cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestScore_VRPAnchors(t *testing.T) {
	s, err := NewScorer(DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)

	tests := []struct {
		ratio float64
		want  float64
	}{
		{0, 0},
		{1.5, 40},  // marginal anchor
		{4.0, 70},  // good anchor
		{7.0, 90},  // excellent anchor
		{14.0, 100},
		{50.0, 100},
		{0.75, 20},  // halfway to marginal
		{5.5, 80},   // halfway good -> excellent
		{10.5, 95},  // halfway excellent -> saturation
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, s.vrpScore(tt.ratio), 1e-9, "ratio %.2f", tt.ratio)
	}
}

func TestScore_VRPMonotonic(t *testing.T) {
	s, err := NewScorer(DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)

	prev := -1.0
	for ratio := 0.0; ratio <= 20.0; ratio += 0.25 {
		score := s.vrpScore(ratio)
		assert.GreaterOrEqual(t, score, prev, "ratio %.2f", ratio)
		prev = score
	}
}

func TestScore_ConsistencyRewardsSteadyMovers(t *testing.T) {
	assert.InDelta(t, 100, consistencyScore(0), 1e-9)
	assert.InDelta(t, 80, consistencyScore(0.25), 1e-9)
	assert.InDelta(t, 50, consistencyScore(1), 1e-9)
	assert.InDelta(t, 100, consistencyScore(-0.5), 1e-9, "negative dispersion clamps to perfect")
}

func TestScore_LiquidityMapping(t *testing.T) {
	tests := []struct {
		tier domain.LiquidityTier
		want float64
	}{
		{domain.LiquidityExcellent, 100},
		{domain.LiquidityGood, 75},
		{domain.LiquidityWarning, 50},
		{domain.LiquidityReject, 20},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, liquidityScore(tt.tier), 1e-9, tt.tier.String())
	}
}

func TestScore_SkewScoring(t *testing.T) {
	assert.InDelta(t, 100, skewScore(nil, nil), 1e-9, "missing skew is neutral")

	neutral := &domain.SkewAnalysis{DirectionalBias: domain.Neutral}
	weak := &domain.SkewAnalysis{DirectionalBias: domain.WeakBullish}
	moderate := &domain.SkewAnalysis{DirectionalBias: domain.Bearish}
	strong := &domain.SkewAnalysis{DirectionalBias: domain.StrongBearish}

	assert.InDelta(t, 100, skewScore(neutral, nil), 1e-9)
	assert.InDelta(t, 75, skewScore(weak, nil), 1e-9)
	assert.InDelta(t, 55, skewScore(moderate, nil), 1e-9)
	assert.InDelta(t, 35, skewScore(strong, nil), 1e-9)

	// Aligned sentiment restores 15 points, capped at 100.
	bullish := &domain.Sentiment{Direction: domain.SentimentBullish, Score: 0.5}
	bearish := &domain.Sentiment{Direction: domain.SentimentBearish, Score: -0.5}
	assert.InDelta(t, 90, skewScore(weak, bullish), 1e-9)
	assert.InDelta(t, 50, skewScore(strong, bearish), 1e-9)
	assert.InDelta(t, 75, skewScore(weak, bearish), 1e-9, "opposed sentiment earns no bonus")
}

func TestScore_CompositeUsesWeights(t *testing.T) {
	s, err := NewScorer(DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)

	// VRP 7.0 -> 90, consistency 0.25 -> 80, no skew -> 100, GOOD -> 75.
	c := s.Score(vrpWith(7.0, 0.25), nil, domain.LiquidityGood, nil)

	assert.InDelta(t, 90, c.VRP, 1e-9)
	assert.InDelta(t, 80, c.Consistency, 1e-9)
	assert.InDelta(t, 100, c.Skew, 1e-9)
	assert.InDelta(t, 75, c.Liquidity, 1e-9)

	want := 0.55*90 + 0.15*80 + 0.10*100 + 0.20*75
	assert.InDelta(t, want, c.Composite, 1e-9)
	assert.InDelta(t, c.Composite, c.Final, 1e-9, "no sentiment, no modifier")
}

func TestScore_SentimentModifier(t *testing.T) {
	s, err := NewScorer(DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)

	base := s.Score(vrpWith(4.0, 0), nil, domain.LiquidityExcellent, nil)

	boosted := s.Score(vrpWith(4.0, 0), nil, domain.LiquidityExcellent,
		&domain.Sentiment{Direction: domain.SentimentBullish, Score: 1.0})
	assert.InDelta(t, base.Composite*1.15, boosted.Final, 1e-9)

	dampened := s.Score(vrpWith(4.0, 0), nil, domain.LiquidityExcellent,
		&domain.Sentiment{Direction: domain.SentimentBearish, Score: -1.0})
	assert.InDelta(t, base.Composite*0.85, dampened.Final, 1e-9)

	// Out-of-range scores clamp before the modifier applies.
	overdriven := s.Score(vrpWith(4.0, 0), nil, domain.LiquidityExcellent,
		&domain.Sentiment{Direction: domain.SentimentBullish, Score: 4.0})
	assert.InDelta(t, base.Composite*1.15, overdriven.Final, 1e-9)
}
