package tailrisk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/whisper/internal/domain"
)

func movesOf(pcts ...float64) []domain.HistoricalMove {
	moves := make([]domain.HistoricalMove, len(pcts))
	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	for i, p := range pcts {
		moves[i] = domain.HistoricalMove{
			Ticker:       "ACME",
			EarningsDate: date.AddDate(0, -3*i, 0),
			CloseMovePct: p,
		}
	}
	return moves
}

func TestLimits_HighTailRisk(t *testing.T) {
	l := NewLimiter(DefaultConfig(), zerolog.Nop())

	// mean 3.68, max 11.21 -> TRR ~ 3.05, HIGH.
	limits, err := l.Limits("ACME", movesOf(2.1, 1.8, 11.21, 2.5, 2.3, 2.17), domain.MetricClose)
	require.NoError(t, err)

	assert.InDelta(t, 3.05, limits.TailRiskRatio, 0.01)
	assert.Equal(t, domain.TailRiskHigh, limits.TailRiskLevel)
	assert.Equal(t, 50, limits.MaxContracts)
	assert.Equal(t, "$25000.00", limits.MaxNotional.String())
	assert.InDelta(t, 11.21, limits.MaxMove, 1e-9)
}

func TestLimits_LevelBands(t *testing.T) {
	l := NewLimiter(DefaultConfig(), zerolog.Nop())

	tests := []struct {
		name  string
		moves []float64
		want  domain.TailRiskLevel
	}{
		{"uniform moves are low", []float64{3, 3, 3, 3}, domain.TailRiskLow},
		{"mild outlier is normal", []float64{3, 3, 3, 6}, domain.TailRiskNormal},
		{"boundary ratio stays normal", []float64{2, 2, 2, 10}, domain.TailRiskNormal},
		{"large outlier is high", []float64{2, 2, 2, 12}, domain.TailRiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits, err := l.Limits("ACME", movesOf(tt.moves...), domain.MetricClose)
			require.NoError(t, err)
			assert.Equal(t, tt.want, limits.TailRiskLevel)
		})
	}
}

func TestLimits_HighCapAtMostHalfNormal(t *testing.T) {
	cfg := Config{
		Normal: Caps{MaxContracts: 100, MaxNotional: domain.NewMoney(50000)},
		High:   Caps{MaxContracts: 80, MaxNotional: domain.NewMoney(25000)},
	}
	l := NewLimiter(cfg, zerolog.Nop())

	limits, err := l.Limits("ACME", movesOf(2, 2, 2, 12), domain.MetricClose)
	require.NoError(t, err)
	assert.Equal(t, domain.TailRiskHigh, limits.TailRiskLevel)
	assert.LessOrEqual(t, limits.MaxContracts, 50, "HIGH cap clamped to half the NORMAL cap")
}

func TestLimits_NoHistory(t *testing.T) {
	l := NewLimiter(DefaultConfig(), zerolog.Nop())

	_, err := l.Limits("ACME", nil, domain.MetricClose)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrNoData))
}

func TestLimits_ZeroMeanInvalid(t *testing.T) {
	l := NewLimiter(DefaultConfig(), zerolog.Nop())

	_, err := l.Limits("ACME", movesOf(0, 0, 0), domain.MetricClose)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalid))
}
