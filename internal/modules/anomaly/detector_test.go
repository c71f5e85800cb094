package anomaly

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/whisper/internal/domain"
)

var detectorNow = time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

func newTestDetector() *Detector {
	d := NewDetector(zerolog.Nop())
	d.now = func() time.Time { return detectorNow }
	return d
}

func cleanInput() Input {
	return Input{
		Ticker:        "ACME",
		EarningsDate:  detectorNow.Add(3 * 24 * time.Hour),
		ChainCacheAge: time.Hour,
		VRP: &domain.VRPResult{
			Ticker:         "ACME",
			VRPRatio:       5.0,
			Recommendation: domain.RecommendGood,
			QuartersOfData: 8,
		},
		LiquidityTier: domain.LiquidityGood,
	}
}

func TestDetect_CleanSignalsTrade(t *testing.T) {
	d := newTestDetector()

	anomalies, action := d.Detect(cleanInput())
	assert.Empty(t, anomalies)
	assert.Equal(t, domain.ActionTrade, action)
}

func TestDetect_ConflictingSignals(t *testing.T) {
	d := newTestDetector()

	// Strong VRP read on an untradeable chain is the classic data trap.
	in := cleanInput()
	in.VRP.VRPRatio = 7.2
	in.VRP.Recommendation = domain.RecommendExcellent
	in.LiquidityTier = domain.LiquidityReject

	anomalies, action := d.Detect(in)
	require.Len(t, anomalies, 1)
	assert.Equal(t, TypeConflictingSignals, anomalies[0].Type)
	assert.Equal(t, domain.SeverityCritical, anomalies[0].Severity)
	assert.Equal(t, domain.ActionDoNotTrade, action)
}

func TestDetect_GoodOnRejectIsWarning(t *testing.T) {
	d := newTestDetector()

	in := cleanInput()
	in.VRP.Recommendation = domain.RecommendGood
	in.LiquidityTier = domain.LiquidityReject

	anomalies, action := d.Detect(in)
	require.Len(t, anomalies, 1)
	assert.Equal(t, TypeConflictingSignals, anomalies[0].Type)
	assert.Equal(t, domain.SeverityWarning, anomalies[0].Severity)
	// REJECT liquidity blocks the trade regardless of severity.
	assert.Equal(t, domain.ActionDoNotTrade, action)
}

func TestDetect_StaleChainNearEarnings(t *testing.T) {
	d := newTestDetector()

	in := cleanInput()
	in.ChainCacheAge = 30 * time.Hour

	anomalies, action := d.Detect(in)
	require.Len(t, anomalies, 1)
	assert.Equal(t, TypeStaleData, anomalies[0].Type)
	assert.Equal(t, domain.SeverityWarning, anomalies[0].Severity)
	assert.Equal(t, domain.ActionReduceSize, action)
}

func TestDetect_StaleChainFarFromEarningsIsFine(t *testing.T) {
	d := newTestDetector()

	in := cleanInput()
	in.EarningsDate = detectorNow.Add(20 * 24 * time.Hour)
	in.ChainCacheAge = 30 * time.Hour

	anomalies, action := d.Detect(in)
	assert.Empty(t, anomalies)
	assert.Equal(t, domain.ActionTrade, action)
}

func TestDetect_ThinHistory(t *testing.T) {
	d := newTestDetector()

	in := cleanInput()
	in.VRP.QuartersOfData = 3

	anomalies, action := d.Detect(in)
	require.Len(t, anomalies, 1)
	assert.Equal(t, TypeMissingData, anomalies[0].Type)
	assert.Equal(t, domain.ActionReduceSize, action)
}

func TestDetect_ExtremeRatio(t *testing.T) {
	d := newTestDetector()

	in := cleanInput()
	in.VRP.VRPRatio = 24.0
	in.VRP.Recommendation = domain.RecommendExcellent

	anomalies, action := d.Detect(in)
	require.Len(t, anomalies, 1)
	assert.Equal(t, TypeExtremeOutlier, anomalies[0].Type)
	assert.Equal(t, domain.ActionReduceSize, action)
}

func TestDetect_MultipleWarningsStillReduceSize(t *testing.T) {
	d := newTestDetector()

	in := cleanInput()
	in.ChainCacheAge = 48 * time.Hour
	in.VRP.QuartersOfData = 2

	anomalies, action := d.Detect(in)
	assert.Len(t, anomalies, 2)
	assert.Equal(t, domain.ActionReduceSize, action)
}

func TestDetect_NilVRPSkipsVRPChecks(t *testing.T) {
	d := newTestDetector()

	in := cleanInput()
	in.VRP = nil
	in.LiquidityTier = domain.LiquidityReject

	anomalies, action := d.Detect(in)
	assert.Empty(t, anomalies)
	assert.Equal(t, domain.ActionDoNotTrade, action)
}
