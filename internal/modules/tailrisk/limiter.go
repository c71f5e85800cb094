// Package tailrisk caps position size for names whose worst historical
// earnings move dwarfs their average one.
package tailrisk

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
)

// Tail-risk ratio bands.
const (
	highRatio = 2.5
	lowRatio  = 1.5
)

// Caps per tail-risk level.
type Caps struct {
	MaxContracts int
	MaxNotional  domain.Money
}

// Config carries the position caps. HIGH must cap contracts at no more
// than half the NORMAL cap.
type Config struct {
	Normal Caps
	High   Caps
}

// DefaultConfig returns the standard caps.
func DefaultConfig() Config {
	return Config{
		Normal: Caps{MaxContracts: 100, MaxNotional: domain.NewMoney(50000)},
		High:   Caps{MaxContracts: 50, MaxNotional: domain.NewMoney(25000)},
	}
}

// Limiter derives position limits from historical move dispersion.
type Limiter struct {
	cfg Config
	log zerolog.Logger
}

// NewLimiter creates a tail-risk limiter.
func NewLimiter(cfg Config, log zerolog.Logger) *Limiter {
	if cfg.Normal.MaxContracts == 0 {
		cfg = DefaultConfig()
	}
	if cfg.High.MaxContracts > cfg.Normal.MaxContracts/2 {
		cfg.High.MaxContracts = cfg.Normal.MaxContracts / 2
	}
	return &Limiter{cfg: cfg, log: log.With().Str("module", "tailrisk").Logger()}
}

// Limits computes tail_risk_ratio = max(|move|) / mean(|move|) over the
// selected metric and assigns the corresponding caps.
func (l *Limiter) Limits(ticker string, history []domain.HistoricalMove, metric domain.MoveMetric) (*domain.PositionLimits, error) {
	if len(history) == 0 {
		return nil, domain.Errorf(domain.ErrNoData, "tailrisk", "%s has no historical moves", ticker)
	}

	var sum, max float64
	for _, move := range history {
		pct := math.Abs(metric.Pct(move))
		sum += pct
		if pct > max {
			max = pct
		}
	}
	mean := sum / float64(len(history))
	if mean <= 0 {
		return nil, domain.Errorf(domain.ErrInvalid, "tailrisk",
			"%s mean historical move %.4f is unusable", ticker, mean)
	}

	ratio := max / mean
	level := classify(ratio)

	caps := l.cfg.Normal
	if level == domain.TailRiskHigh {
		caps = l.cfg.High
	}

	limits := &domain.PositionLimits{
		Ticker:        ticker,
		TailRiskRatio: ratio,
		TailRiskLevel: level,
		MaxContracts:  caps.MaxContracts,
		MaxNotional:   caps.MaxNotional,
		AvgMove:       mean,
		MaxMove:       max,
	}

	l.log.Debug().
		Str("ticker", ticker).
		Float64("trr", ratio).
		Str("level", string(level)).
		Int("max_contracts", limits.MaxContracts).
		Msg("tail risk limits set")

	return limits, nil
}

func classify(ratio float64) domain.TailRiskLevel {
	switch {
	case ratio > highRatio:
		return domain.TailRiskHigh
	case ratio >= lowRatio:
		return domain.TailRiskNormal
	default:
		return domain.TailRiskLow
	}
}
