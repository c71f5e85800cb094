// Package liquidity grades whether a position of the intended size can
// get in and out of a chain without eating the edge.
package liquidity

import (
	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
)

// Spread tier cutoffs, quoted spread as a fraction of mid.
const (
	spreadExcellent = 0.08
	spreadGood      = 0.12
	spreadWarning   = 0.15
)

// Classifier assigns liquidity tiers. The intended position size is a
// required input: 1000 contracts of open interest means nothing without
// knowing how many we want to trade.
type Classifier struct {
	log zerolog.Logger
}

// NewClassifier creates a liquidity classifier.
func NewClassifier(log zerolog.Logger) *Classifier {
	return &Classifier{log: log.With().Str("module", "liquidity").Logger()}
}

// Assessment carries the per-dimension tiers and the overall verdict.
type Assessment struct {
	Ticker     string               `json:"ticker"`
	OITier     domain.LiquidityTier `json:"oi_tier"`
	SpreadTier domain.LiquidityTier `json:"spread_tier"`
	Overall    domain.LiquidityTier `json:"overall"`
}

// Classify grades open interest against the intended position size and
// the quoted spread fraction, then takes the worse of the two.
func (c *Classifier) Classify(ticker string, openInterest int, spreadPct float64, positionSize int) (*Assessment, error) {
	if positionSize <= 0 {
		return nil, domain.Errorf(domain.ErrInvalid, "liquidity",
			"%s intended position size must be positive, got %d", ticker, positionSize)
	}

	a := &Assessment{
		Ticker:     ticker,
		OITier:     classifyOI(openInterest, positionSize),
		SpreadTier: classifySpread(spreadPct),
	}
	a.Overall = a.OITier.Worse(a.SpreadTier)

	c.log.Debug().
		Str("ticker", ticker).
		Str("oi_tier", a.OITier.String()).
		Str("spread_tier", a.SpreadTier.String()).
		Str("overall", a.Overall.String()).
		Msg("liquidity classified")

	return a, nil
}

func classifyOI(openInterest, positionSize int) domain.LiquidityTier {
	switch {
	case openInterest >= 5*positionSize:
		return domain.LiquidityExcellent
	case openInterest >= 2*positionSize:
		return domain.LiquidityGood
	case openInterest >= positionSize:
		return domain.LiquidityWarning
	default:
		return domain.LiquidityReject
	}
}

func classifySpread(spreadPct float64) domain.LiquidityTier {
	switch {
	case spreadPct <= spreadExcellent:
		return domain.LiquidityExcellent
	case spreadPct <= spreadGood:
		return domain.LiquidityGood
	case spreadPct <= spreadWarning:
		return domain.LiquidityWarning
	default:
		return domain.LiquidityReject
	}
}
