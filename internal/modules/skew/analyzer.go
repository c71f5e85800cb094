// Package skew infers directional bias from the slope of the put-call
// implied-volatility difference across moneyness.
package skew

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/whisper/internal/domain"
)

// Config bounds the sample and sets the bias ladder.
type Config struct {
	// Moneyness band: strikes inside the ATM exclusion or outside the
	// outer band carry no skew information worth fitting.
	ATMExclusion  float64 // fraction of spot, default 0.02
	OuterBand     float64 // fraction of spot, default 0.15
	MinPoints     int     // default 5
	NeutralSlope  float64 // |slope| at or below -> NEUTRAL, default 30
	WeakSlope     float64 // default 80
	ModerateSlope float64 // default 150
}

// DefaultConfig returns the standard skew configuration.
func DefaultConfig() Config {
	return Config{
		ATMExclusion:  0.02,
		OuterBand:     0.15,
		MinPoints:     5,
		NeutralSlope:  30,
		WeakSlope:     80,
		ModerateSlope: 150,
	}
}

// Analyzer fits IV skew slopes.
type Analyzer struct {
	cfg Config
	log zerolog.Logger
}

// NewAnalyzer creates a skew analyzer.
func NewAnalyzer(cfg Config, log zerolog.Logger) *Analyzer {
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = 5
	}
	return &Analyzer{cfg: cfg, log: log.With().Str("module", "skew").Logger()}
}

// Analyze fits (putIV - callIV) against moneyness (K-S)/S over strikes
// outside the ATM exclusion band, by ordinary least squares.
// A positive slope means puts get relatively richer to the upside,
// which reads bullish; negative reads bearish.
func (a *Analyzer) Analyze(chain *domain.OptionChain) (*domain.SkewAnalysis, error) {
	if chain == nil || chain.StockPrice <= 0 {
		return nil, domain.Errorf(domain.ErrNoData, "skew", "no chain to analyze")
	}

	var xs, ys []float64
	for key, call := range chain.Calls {
		put, ok := chain.Puts[key]
		if !ok || call.ImpliedVolatility == nil || put.ImpliedVolatility == nil {
			continue
		}
		moneyness := (call.Strike.Float64() - chain.StockPrice) / chain.StockPrice
		if math.Abs(moneyness) <= a.cfg.ATMExclusion || math.Abs(moneyness) > a.cfg.OuterBand {
			continue
		}
		xs = append(xs, moneyness)
		// Scaled to IV points per unit moneyness so thresholds are
		// comparable across tickers.
		ys = append(ys, (*put.ImpliedVolatility-*call.ImpliedVolatility)*100)
	}

	if len(xs) < a.cfg.MinPoints {
		return nil, domain.Errorf(domain.ErrNoData, "skew",
			"%s has %d usable skew points, need %d", chain.Ticker, len(xs), a.cfg.MinPoints)
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return nil, domain.Errorf(domain.ErrCalculation, "skew",
			"%s skew regression degenerate", chain.Ticker)
	}

	confidence := r2
	if math.IsNaN(confidence) || confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	analysis := &domain.SkewAnalysis{
		Ticker:          chain.Ticker,
		StockPrice:      chain.StockPrice,
		SlopeATM:        beta,
		SkewATM:         alpha,
		DirectionalBias: a.classify(beta),
		BiasConfidence:  confidence,
		NumPoints:       len(xs),
	}

	a.log.Debug().
		Str("ticker", chain.Ticker).
		Float64("slope", beta).
		Str("bias", string(analysis.DirectionalBias)).
		Int("points", len(xs)).
		Msg("skew fitted")

	return analysis, nil
}

func (a *Analyzer) classify(slope float64) domain.DirectionalBias {
	magnitude := math.Abs(slope)
	bullish := slope > 0

	switch {
	case magnitude <= a.cfg.NeutralSlope:
		return domain.Neutral
	case magnitude <= a.cfg.WeakSlope:
		if bullish {
			return domain.WeakBullish
		}
		return domain.WeakBearish
	case magnitude <= a.cfg.ModerateSlope:
		if bullish {
			return domain.Bullish
		}
		return domain.Bearish
	default:
		if bullish {
			return domain.StrongBullish
		}
		return domain.StrongBearish
	}
}
