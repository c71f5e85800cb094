// Package scoring combines the per-signal results into one composite
// score used to rank opportunities across the scan.
package scoring

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
)

// Weights split the composite across the four component scores.
// They must sum to 1.
type Weights struct {
	VRP         float64 `yaml:"vrp"`
	Consistency float64 `yaml:"consistency"`
	Skew        float64 `yaml:"skew"`
	Liquidity   float64 `yaml:"liquidity"`
}

// DefaultWeights returns the standard split.
func DefaultWeights() Weights {
	return Weights{VRP: 0.55, Consistency: 0.15, Skew: 0.10, Liquidity: 0.20}
}

// Validate checks the weights sum to 1 within rounding tolerance.
func (w Weights) Validate() error {
	sum := w.VRP + w.Consistency + w.Skew + w.Liquidity
	if math.Abs(sum-1.0) > 1e-6 {
		return domain.Errorf(domain.ErrConfiguration, "scoring.weights",
			"composite weights sum to %.6f, must sum to 1", sum)
	}
	if w.VRP < 0 || w.Consistency < 0 || w.Skew < 0 || w.Liquidity < 0 {
		return domain.Errorf(domain.ErrConfiguration, "scoring.weights", "weights must be non-negative")
	}
	return nil
}

// Config parameterizes the scorer.
type Config struct {
	Weights        Weights
	VRPExcellent   float64 // ratio where the VRP component saturates toward 100
	VRPGood        float64
	VRPMarginal    float64
	SentimentBoost float64 // modifier slope, default 0.15
}

// DefaultConfig returns standard weights and the standard VRP anchors.
func DefaultConfig() Config {
	return Config{
		Weights:        DefaultWeights(),
		VRPExcellent:   7.0,
		VRPGood:        4.0,
		VRPMarginal:    1.5,
		SentimentBoost: 0.15,
	}
}

// Scorer computes composite scores.
type Scorer struct {
	cfg Config
	log zerolog.Logger
}

// NewScorer validates config and creates a scorer.
func NewScorer(cfg Config, log zerolog.Logger) (*Scorer, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.SentimentBoost == 0 {
		cfg.SentimentBoost = 0.15
	}
	return &Scorer{cfg: cfg, log: log.With().Str("module", "scoring").Logger()}, nil
}

// Components exposes the individual [0,100] scores for explanation output.
type Components struct {
	VRP         float64 `json:"vrp"`
	Consistency float64 `json:"consistency"`
	Skew        float64 `json:"skew"`
	Liquidity   float64 `json:"liquidity"`
	Composite   float64 `json:"composite"`
	Final       float64 `json:"final"`
}

// Score combines the signal results. Skew and sentiment are optional;
// a missing skew scores as neutral, missing sentiment applies no modifier.
func (s *Scorer) Score(vrp *domain.VRPResult, skew *domain.SkewAnalysis, tier domain.LiquidityTier, sentiment *domain.Sentiment) Components {
	c := Components{
		VRP:         s.vrpScore(vrp.VRPRatio),
		Consistency: consistencyScore(vrp.Consistency),
		Skew:        skewScore(skew, sentiment),
		Liquidity:   liquidityScore(tier),
	}

	w := s.cfg.Weights
	c.Composite = w.VRP*c.VRP + w.Consistency*c.Consistency + w.Skew*c.Skew + w.Liquidity*c.Liquidity

	c.Final = c.Composite
	if sentiment != nil {
		clamped := clamp(sentiment.Score, -1, 1)
		c.Final = c.Composite * (1 + s.cfg.SentimentBoost*clamped)
	}

	return c
}

// vrpScore is piecewise linear over the configured ratio anchors:
// 0 at ratio 0, 40 at marginal, 70 at good, 90 at excellent, saturating
// to 100 at twice the excellent anchor.
func (s *Scorer) vrpScore(ratio float64) float64 {
	switch {
	case ratio <= 0:
		return 0
	case ratio < s.cfg.VRPMarginal:
		return lerp(ratio, 0, s.cfg.VRPMarginal, 0, 40)
	case ratio < s.cfg.VRPGood:
		return lerp(ratio, s.cfg.VRPMarginal, s.cfg.VRPGood, 40, 70)
	case ratio < s.cfg.VRPExcellent:
		return lerp(ratio, s.cfg.VRPGood, s.cfg.VRPExcellent, 70, 90)
	case ratio < 2*s.cfg.VRPExcellent:
		return lerp(ratio, s.cfg.VRPExcellent, 2*s.cfg.VRPExcellent, 90, 100)
	default:
		return 100
	}
}

// consistencyScore rewards steady movers: MAD/median of 0 scores 100,
// dispersion equal to the median scores 50.
func consistencyScore(consistency float64) float64 {
	if consistency < 0 {
		consistency = 0
	}
	return 100.0 / (1.0 + consistency)
}

// skewScore favors clean setups: NEUTRAL is the best backdrop for the
// premium-selling structures; a directional lean still trades, just
// through narrower structures, and an aligned sentiment read restores
// some of the penalty.
func skewScore(skew *domain.SkewAnalysis, sentiment *domain.Sentiment) float64 {
	if skew == nil {
		return 100
	}

	var score float64
	switch skew.Strength() {
	case 0:
		score = 100
	case 1:
		score = 75
	case 2:
		score = 55
	default:
		score = 35
	}

	if sentiment != nil && aligned(skew, sentiment) {
		score += 15
		if score > 100 {
			score = 100
		}
	}
	return score
}

func aligned(skew *domain.SkewAnalysis, sentiment *domain.Sentiment) bool {
	return (skew.IsBullish() && sentiment.Direction == domain.SentimentBullish) ||
		(skew.IsBearish() && sentiment.Direction == domain.SentimentBearish)
}

func liquidityScore(tier domain.LiquidityTier) float64 {
	switch tier {
	case domain.LiquidityExcellent:
		return 100
	case domain.LiquidityGood:
		return 75
	case domain.LiquidityWarning:
		return 50
	default:
		return 20
	}
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	return y0 + (x-x0)/(x1-x0)*(y1-y0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
