// Package anomaly cross-checks the assembled signals and downgrades
// opportunities whose signals disagree.
package anomaly

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
)

// Anomaly types.
const (
	TypeStaleData          = "stale_data"
	TypeMissingData        = "missing_data"
	TypeExtremeOutlier     = "extreme_outlier"
	TypeConflictingSignals = "conflicting_signals"
)

const (
	nearEarningsWindow = 7 * 24 * time.Hour
	staleChainAge      = 24 * time.Hour
	minQuarters        = 4
	extremeVRPRatio    = 20.0
)

// Input carries everything the detector inspects.
type Input struct {
	Ticker        string
	EarningsDate  time.Time
	ChainCacheAge time.Duration // zero means freshly fetched
	VRP           *domain.VRPResult
	LiquidityTier domain.LiquidityTier
}

// Detector runs the cross-signal guards.
type Detector struct {
	log zerolog.Logger
	now func() time.Time
}

// NewDetector creates an anomaly detector.
func NewDetector(log zerolog.Logger) *Detector {
	return &Detector{
		log: log.With().Str("module", "anomaly").Logger(),
		now: time.Now,
	}
}

// Detect returns the anomaly list and the final action.
// Any critical anomaly or REJECT liquidity forces DO_NOT_TRADE; any
// warning downgrades to REDUCE_SIZE.
func (d *Detector) Detect(in Input) ([]domain.Anomaly, domain.FinalAction) {
	var anomalies []domain.Anomaly

	if until := in.EarningsDate.Sub(d.now()); until <= nearEarningsWindow && in.ChainCacheAge > staleChainAge {
		anomalies = append(anomalies, domain.Anomaly{
			Type:     TypeStaleData,
			Severity: domain.SeverityWarning,
			Message: fmt.Sprintf("chain data is %.0fh old with earnings %.1f days out",
				in.ChainCacheAge.Hours(), until.Hours()/24),
		})
	}

	if in.VRP != nil {
		if in.VRP.QuartersOfData < minQuarters {
			anomalies = append(anomalies, domain.Anomaly{
				Type:     TypeMissingData,
				Severity: domain.SeverityWarning,
				Message: fmt.Sprintf("only %d quarters of history (want %d)",
					in.VRP.QuartersOfData, minQuarters),
			})
		}

		if in.VRP.VRPRatio > extremeVRPRatio {
			anomalies = append(anomalies, domain.Anomaly{
				Type:     TypeExtremeOutlier,
				Severity: domain.SeverityWarning,
				Message: fmt.Sprintf("vrp ratio %.1f exceeds %.0f, likely a data problem",
					in.VRP.VRPRatio, extremeVRPRatio),
			})
		}

		strong := in.VRP.Recommendation == domain.RecommendExcellent ||
			in.VRP.Recommendation == domain.RecommendGood
		if strong && in.LiquidityTier == domain.LiquidityReject {
			severity := domain.SeverityWarning
			if in.VRP.Recommendation == domain.RecommendExcellent {
				severity = domain.SeverityCritical
			}
			anomalies = append(anomalies, domain.Anomaly{
				Type:     TypeConflictingSignals,
				Severity: severity,
				Message: fmt.Sprintf("%s VRP signal on a REJECT-liquidity chain",
					in.VRP.Recommendation),
			})
		}
	}

	action := d.resolve(in, anomalies)
	if action != domain.ActionTrade {
		d.log.Info().
			Str("ticker", in.Ticker).
			Str("action", string(action)).
			Int("anomalies", len(anomalies)).
			Msg("opportunity downgraded")
	}
	return anomalies, action
}

func (d *Detector) resolve(in Input, anomalies []domain.Anomaly) domain.FinalAction {
	if in.LiquidityTier == domain.LiquidityReject {
		return domain.ActionDoNotTrade
	}
	hasWarning := false
	for _, a := range anomalies {
		if a.Severity == domain.SeverityCritical {
			return domain.ActionDoNotTrade
		}
		hasWarning = true
	}
	if hasWarning {
		return domain.ActionReduceSize
	}
	return domain.ActionTrade
}
