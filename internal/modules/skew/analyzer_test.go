package skew

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/whisper/internal/domain"
)

// chainWithSkew builds a chain where putIV - callIV = base + slope*moneyness
// (slope in IV points per unit moneyness, matching the analyzer's scale).
func chainWithSkew(slope float64) *domain.OptionChain {
	c := &domain.OptionChain{
		Ticker:     "ACME",
		Expiration: time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC),
		StockPrice: 100,
		Calls:      map[string]domain.OptionQuote{},
		Puts:       map[string]domain.OptionQuote{},
	}
	for _, strike := range []float64{88, 91, 94, 106, 109, 112} {
		moneyness := (strike - 100) / 100
		callIV := 0.50
		putIV := 0.50 + slope*moneyness/100
		s := domain.NewStrike(strike)
		cIV, pIV := callIV, putIV
		c.Calls[s.Key()] = domain.OptionQuote{
			Strike: s, Type: domain.Call, Bid: 1, Ask: 1.1,
			ImpliedVolatility: &cIV, OpenInterest: 500,
		}
		c.Puts[s.Key()] = domain.OptionQuote{
			Strike: s, Type: domain.Put, Bid: 1, Ask: 1.1,
			ImpliedVolatility: &pIV, OpenInterest: 500,
		}
	}
	return c
}

func TestAnalyze_BiasLadder(t *testing.T) {
	tests := []struct {
		name  string
		slope float64
		want  domain.DirectionalBias
	}{
		{"flat is neutral", 0, domain.Neutral},
		{"inside neutral band", 25, domain.Neutral},
		{"weak bullish", 60, domain.WeakBullish},
		{"weak bearish", -60, domain.WeakBearish},
		{"moderate bullish", 120, domain.Bullish},
		{"moderate bearish", -120, domain.Bearish},
		{"strong bullish", 200, domain.StrongBullish},
		{"strong bearish", -200, domain.StrongBearish},
	}

	analyzer := NewAnalyzer(DefaultConfig(), zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, err := analyzer.Analyze(chainWithSkew(tt.slope))
			require.NoError(t, err)
			assert.Equal(t, tt.want, analysis.DirectionalBias)
			assert.InDelta(t, tt.slope, analysis.SlopeATM, 1.0)
		})
	}
}

func TestAnalyze_ConfidenceIsCleanFitR2(t *testing.T) {
	analyzer := NewAnalyzer(DefaultConfig(), zerolog.Nop())

	analysis, err := analyzer.Analyze(chainWithSkew(100))
	require.NoError(t, err)
	// Perfectly linear synthetic skew fits with R^2 ~ 1.
	assert.InDelta(t, 1.0, analysis.BiasConfidence, 1e-6)
	assert.Equal(t, 6, analysis.NumPoints)
	assert.True(t, analysis.IsBullish())
	assert.Equal(t, 2, analysis.Strength())
}

func TestAnalyze_ATMBandExcluded(t *testing.T) {
	analyzer := NewAnalyzer(DefaultConfig(), zerolog.Nop())

	c := chainWithSkew(100)
	// Add strikes inside the +/-2% exclusion band; they must not count.
	for _, strike := range []float64{99, 100, 101} {
		s := domain.NewStrike(strike)
		iv := 5.0 // absurd IV that would wreck the fit if included
		c.Calls[s.Key()] = domain.OptionQuote{Strike: s, Type: domain.Call, Bid: 1, Ask: 1.1, ImpliedVolatility: &iv}
		c.Puts[s.Key()] = domain.OptionQuote{Strike: s, Type: domain.Put, Bid: 1, Ask: 1.1, ImpliedVolatility: &iv}
	}

	analysis, err := analyzer.Analyze(c)
	require.NoError(t, err)
	assert.Equal(t, 6, analysis.NumPoints)
	assert.Equal(t, domain.Bullish, analysis.DirectionalBias)
}

func TestAnalyze_TooFewPoints(t *testing.T) {
	analyzer := NewAnalyzer(DefaultConfig(), zerolog.Nop())

	c := chainWithSkew(100)
	// Strip down to 4 two-sided strikes with IV.
	for _, strike := range []float64{88, 91} {
		key := domain.NewStrike(strike).Key()
		delete(c.Calls, key)
		delete(c.Puts, key)
	}

	_, err := analyzer.Analyze(c)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrNoData))
}

func TestAnalyze_MissingIVSkipped(t *testing.T) {
	analyzer := NewAnalyzer(DefaultConfig(), zerolog.Nop())

	c := chainWithSkew(100)
	key := domain.NewStrike(88).Key()
	q := c.Calls[key]
	q.ImpliedVolatility = nil
	c.Calls[key] = q

	analysis, err := analyzer.Analyze(c)
	require.NoError(t, err)
	assert.Equal(t, 5, analysis.NumPoints)
}
