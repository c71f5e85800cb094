// Package vrp scores the volatility risk premium: how richly the market
// prices an earnings move relative to what the name historically does.
package vrp

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/whisper/internal/domain"
)

// Thresholds classify the vrp_ratio into recommendation tiers.
type Thresholds struct {
	Excellent float64 `yaml:"excellent"`
	Good      float64 `yaml:"good"`
	Marginal  float64 `yaml:"marginal"`
}

// StandardThresholds is the default scoring profile.
func StandardThresholds() Thresholds {
	return Thresholds{Excellent: 7.0, Good: 4.0, Marginal: 1.5}
}

// ConservativeThresholds is the lower-bar profile for names that rarely
// carry extreme premium.
func ConservativeThresholds() Thresholds {
	return Thresholds{Excellent: 2.0, Good: 1.5, Marginal: 1.2}
}

// Config configures the VRP calculator.
type Config struct {
	Thresholds  Thresholds
	Metric      domain.MoveMetric
	MinQuarters int
}

// DefaultConfig returns standard thresholds, the close-to-close metric,
// and a four-quarter data floor.
func DefaultConfig() Config {
	return Config{
		Thresholds:  StandardThresholds(),
		Metric:      domain.MetricClose,
		MinQuarters: 4,
	}
}

// Calculator computes VRP results.
type Calculator struct {
	cfg Config
	log zerolog.Logger
}

// NewCalculator creates a VRP calculator.
func NewCalculator(cfg Config, log zerolog.Logger) *Calculator {
	if cfg.MinQuarters <= 0 {
		cfg.MinQuarters = 4
	}
	if cfg.Metric == "" {
		cfg.Metric = domain.MetricClose
	}
	return &Calculator{cfg: cfg, log: log.With().Str("module", "vrp").Logger()}
}

// Calculate compares an implied move against the historical earnings-day
// move distribution. Moves arrive most-recent first.
func (c *Calculator) Calculate(implied *domain.ImpliedMove, history []domain.HistoricalMove) (*domain.VRPResult, error) {
	if implied == nil {
		return nil, domain.Errorf(domain.ErrNoData, "vrp", "nil implied move")
	}
	if len(history) < c.cfg.MinQuarters {
		return nil, domain.Errorf(domain.ErrNoData, "vrp",
			"%s has %d quarters of history, need %d", implied.Ticker, len(history), c.cfg.MinQuarters)
	}

	pcts := make([]float64, len(history))
	for i, move := range history {
		pcts[i] = math.Abs(c.cfg.Metric.Pct(move))
	}

	mean := stat.Mean(pcts, nil)
	median := medianOf(pcts)
	std := 0.0
	if len(pcts) > 1 {
		std = stat.StdDev(pcts, nil)
	}

	if mean <= 0 || math.IsNaN(mean) || math.IsInf(mean, 0) {
		return nil, domain.Errorf(domain.ErrInvalid, "vrp",
			"%s historical mean move %.4f is unusable", implied.Ticker, mean)
	}

	ratio := implied.ImpliedMovePct / mean
	consistency := consistencyOf(pcts, median)
	edge := ratio / (1 + consistency)

	result := &domain.VRPResult{
		Ticker:            implied.Ticker,
		Expiration:        implied.Expiration,
		ImpliedMovePct:    implied.ImpliedMovePct,
		HistoricalMeanPct: mean,
		HistoricalMedPct:  median,
		HistoricalStdPct:  std,
		VRPRatio:          ratio,
		Consistency:       consistency,
		EdgeScore:         edge,
		Recommendation:    c.classify(ratio),
		QuartersOfData:    len(history),
	}

	c.log.Debug().
		Str("ticker", implied.Ticker).
		Float64("vrp_ratio", ratio).
		Float64("edge_score", edge).
		Str("recommendation", string(result.Recommendation)).
		Msg("vrp computed")

	return result, nil
}

// classify maps a ratio to a tier. Total over positive finite ratios.
func (c *Calculator) classify(ratio float64) domain.Recommendation {
	t := c.cfg.Thresholds
	switch {
	case ratio >= t.Excellent:
		return domain.RecommendExcellent
	case ratio >= t.Good:
		return domain.RecommendGood
	case ratio >= t.Marginal:
		return domain.RecommendMarginal
	default:
		return domain.RecommendSkip
	}
}

// consistencyOf is MAD/median: dispersion of the move history relative
// to its center. Steady movers score near zero.
func consistencyOf(pcts []float64, median float64) float64 {
	if median == 0 {
		return 0
	}
	deviations := make([]float64, len(pcts))
	for i, p := range pcts {
		deviations[i] = math.Abs(p - median)
	}
	return medianOf(deviations) / median
}

func medianOf(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}
