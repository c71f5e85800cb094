package domain

import (
	"encoding/json"
	"time"
)

// AnnouncementTiming is when an earnings announcement lands relative to
// the trading session.
type AnnouncementTiming string

const (
	BeforeMarketOpen  AnnouncementTiming = "BMO"
	AfterMarketClose  AnnouncementTiming = "AMC"
	DuringMarketHours AnnouncementTiming = "DMH"
	TimingUnknown     AnnouncementTiming = "UNKNOWN"
)

// EarningsEvent is one row of the earnings calendar.
type EarningsEvent struct {
	Ticker    string             `json:"ticker"`
	Date      time.Time          `json:"date"`
	Timing    AnnouncementTiming `json:"timing"`
	Confirmed bool               `json:"confirmed"`
}

// HistoricalMove captures how a stock moved around one past earnings
// announcement. Percentages are stored as absolute magnitudes.
type HistoricalMove struct {
	Ticker           string    `json:"ticker"`
	EarningsDate     time.Time `json:"earnings_date"`
	PrevClose        float64   `json:"prev_close"`
	EarningsClose    float64   `json:"earnings_close"`
	CloseMovePct     float64   `json:"close_move_pct"`
	GapMovePct       float64   `json:"gap_move_pct"`
	IntradayMovePct  float64   `json:"intraday_move_pct"`
}

// MoveMetric selects which historical move percentage feeds the VRP mean.
type MoveMetric string

const (
	MetricClose    MoveMetric = "close"
	MetricIntraday MoveMetric = "intraday"
	MetricGap      MoveMetric = "gap"
)

// Pct returns the selected move percentage from a historical move.
func (m MoveMetric) Pct(move HistoricalMove) float64 {
	switch m {
	case MetricIntraday:
		return move.IntradayMovePct
	case MetricGap:
		return move.GapMovePct
	default:
		return move.CloseMovePct
	}
}

// ImpliedMove is the market-priced expected move from the ATM straddle.
type ImpliedMove struct {
	Ticker         string    `json:"ticker"`
	Expiration     time.Time `json:"expiration"`
	StockPrice     float64   `json:"stock_price"`
	ATMStrike      Strike    `json:"atm_strike"`
	StraddleCost   float64   `json:"straddle_cost"`
	ImpliedMovePct float64   `json:"implied_move_pct"`
	UpperBound     float64   `json:"upper_bound"`
	LowerBound     float64   `json:"lower_bound"`
	CallIV         *float64  `json:"call_iv,omitempty"`
	PutIV          *float64  `json:"put_iv,omitempty"`
	AvgIV          *float64  `json:"avg_iv,omitempty"`
}

// Recommendation is the VRP tier assigned from the vrp_ratio thresholds.
type Recommendation string

const (
	RecommendExcellent Recommendation = "EXCELLENT"
	RecommendGood      Recommendation = "GOOD"
	RecommendMarginal  Recommendation = "MARGINAL"
	RecommendSkip      Recommendation = "SKIP"
)

// VRPResult compares the implied move against the historical
// distribution of earnings-day moves.
type VRPResult struct {
	Ticker            string         `json:"ticker"`
	Expiration        time.Time      `json:"expiration"`
	ImpliedMovePct    float64        `json:"implied_move_pct"`
	HistoricalMeanPct float64        `json:"historical_mean_pct"`
	HistoricalMedPct  float64        `json:"historical_median_pct"`
	HistoricalStdPct  float64        `json:"historical_std_pct"`
	VRPRatio          float64        `json:"vrp_ratio"`
	Consistency       float64        `json:"consistency"`
	EdgeScore         float64        `json:"edge_score"`
	Recommendation    Recommendation `json:"recommendation"`
	QuartersOfData    int            `json:"quarters_of_data"`
}

// DirectionalBias is the skew-derived directional tag.
type DirectionalBias string

const (
	StrongBearish DirectionalBias = "STRONG_BEARISH"
	Bearish       DirectionalBias = "BEARISH"
	WeakBearish   DirectionalBias = "WEAK_BEARISH"
	Neutral       DirectionalBias = "NEUTRAL"
	WeakBullish   DirectionalBias = "WEAK_BULLISH"
	Bullish       DirectionalBias = "BULLISH"
	StrongBullish DirectionalBias = "STRONG_BULLISH"
)

// SkewAnalysis is the OLS fit of put-call IV difference over moneyness.
type SkewAnalysis struct {
	Ticker          string          `json:"ticker"`
	StockPrice      float64         `json:"stock_price"`
	SlopeATM        float64         `json:"slope_atm"`
	SkewATM         float64         `json:"skew_atm"`
	DirectionalBias DirectionalBias `json:"directional_bias"`
	BiasConfidence  float64         `json:"bias_confidence"`
	NumPoints       int             `json:"num_points"`
}

// IsBullish reports any bullish lean.
func (s SkewAnalysis) IsBullish() bool {
	return s.DirectionalBias == WeakBullish || s.DirectionalBias == Bullish || s.DirectionalBias == StrongBullish
}

// IsBearish reports any bearish lean.
func (s SkewAnalysis) IsBearish() bool {
	return s.DirectionalBias == WeakBearish || s.DirectionalBias == Bearish || s.DirectionalBias == StrongBearish
}

// IsNeutral reports no directional lean.
func (s SkewAnalysis) IsNeutral() bool { return s.DirectionalBias == Neutral }

// Strength returns 0 for NEUTRAL, 1 for WEAK, 2 for moderate, 3 for STRONG.
func (s SkewAnalysis) Strength() int {
	switch s.DirectionalBias {
	case WeakBullish, WeakBearish:
		return 1
	case Bullish, Bearish:
		return 2
	case StrongBullish, StrongBearish:
		return 3
	default:
		return 0
	}
}

// LiquidityTier orders tradeability from best to worst.
type LiquidityTier int

const (
	LiquidityExcellent LiquidityTier = iota
	LiquidityGood
	LiquidityWarning
	LiquidityReject
)

func (t LiquidityTier) String() string {
	switch t {
	case LiquidityExcellent:
		return "EXCELLENT"
	case LiquidityGood:
		return "GOOD"
	case LiquidityWarning:
		return "WARNING"
	default:
		return "REJECT"
	}
}

// MarshalJSON renders the tier name, not its ordinal.
func (t LiquidityTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts a tier name.
func (t *LiquidityTier) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "EXCELLENT":
		*t = LiquidityExcellent
	case "GOOD":
		*t = LiquidityGood
	case "WARNING":
		*t = LiquidityWarning
	case "REJECT":
		*t = LiquidityReject
	default:
		return Errorf(ErrInvalid, "liquidity.parse", "unknown liquidity tier %q", name)
	}
	return nil
}

// Worse returns the worse of two tiers.
func (t LiquidityTier) Worse(other LiquidityTier) LiquidityTier {
	if other > t {
		return other
	}
	return t
}

// TailRiskLevel classifies the tail-risk ratio.
type TailRiskLevel string

const (
	TailRiskLow    TailRiskLevel = "LOW"
	TailRiskNormal TailRiskLevel = "NORMAL"
	TailRiskHigh   TailRiskLevel = "HIGH"
)

// PositionLimits caps sizing based on the tail-risk ratio.
type PositionLimits struct {
	Ticker        string        `json:"ticker"`
	TailRiskRatio float64       `json:"tail_risk_ratio"`
	TailRiskLevel TailRiskLevel `json:"tail_risk_level"`
	MaxContracts  int           `json:"max_contracts"`
	MaxNotional   Money         `json:"max_notional"`
	AvgMove       float64       `json:"avg_move"`
	MaxMove       float64       `json:"max_move"`
}

// StrategyType is the closed set of generated option structures.
type StrategyType string

const (
	BullPutSpread  StrategyType = "BULL_PUT_SPREAD"
	BearCallSpread StrategyType = "BEAR_CALL_SPREAD"
	IronCondor     StrategyType = "IRON_CONDOR"
	IronButterfly  StrategyType = "IRON_BUTTERFLY"
)

// LegSide is buy or sell.
type LegSide string

const (
	Buy  LegSide = "buy"
	Sell LegSide = "sell"
)

// StrategyLeg is one leg of a multi-leg option structure.
type StrategyLeg struct {
	Side       LegSide    `json:"side"`
	OptionType OptionType `json:"option_type"`
	Strike     Strike     `json:"strike"`
	Quantity   int        `json:"quantity"`
}

// Strategy is a candidate defined-risk structure with its economics.
type Strategy struct {
	Type              StrategyType  `json:"type"`
	Legs              []StrategyLeg `json:"legs"`
	MaxProfit         Money         `json:"max_profit"`
	MaxRisk           Money         `json:"max_risk"`
	POP               float64       `json:"pop"`
	Description       string        `json:"description"`
	RequiredLiquidity LiquidityTier `json:"required_liquidity_floor"`
}

// SentimentDirection is the LLM sentiment call.
type SentimentDirection string

const (
	SentimentBullish SentimentDirection = "bullish"
	SentimentBearish SentimentDirection = "bearish"
	SentimentNeutral SentimentDirection = "neutral"
)

// Sentiment is the budget-gated LLM read on an upcoming announcement.
// Score is clamped to [-1, 1] at consumption.
type Sentiment struct {
	Direction SentimentDirection `json:"direction"`
	Score     float64            `json:"score"`
	Catalysts []string           `json:"catalysts,omitempty"`
	Risks     []string           `json:"risks,omitempty"`
}

// AnomalySeverity grades cross-signal conflicts.
type AnomalySeverity string

const (
	SeverityWarning  AnomalySeverity = "warning"
	SeverityCritical AnomalySeverity = "critical"
)

// Anomaly is one cross-signal guard finding.
type Anomaly struct {
	Type     string          `json:"type"`
	Severity AnomalySeverity `json:"severity"`
	Message  string          `json:"message"`
}

// FinalAction is the aggregated verdict after anomaly checks.
type FinalAction string

const (
	ActionTrade      FinalAction = "TRADE"
	ActionReduceSize FinalAction = "REDUCE_SIZE"
	ActionDoNotTrade FinalAction = "DO_NOT_TRADE"
)

// Opportunity is the assembled per-ticker scan result.
type Opportunity struct {
	Ticker         string          `json:"ticker"`
	EarningsDate   time.Time       `json:"earnings_date"`
	Timing         AnnouncementTiming `json:"timing"`
	Expiration     time.Time       `json:"expiration"`
	ImpliedMove    ImpliedMove     `json:"implied_move"`
	VRP            VRPResult       `json:"vrp"`
	Skew           *SkewAnalysis   `json:"skew,omitempty"`
	LiquidityTier  LiquidityTier   `json:"liquidity_tier"`
	Limits         *PositionLimits `json:"position_limits,omitempty"`
	CompositeScore float64         `json:"composite_score"`
	Sentiment      *Sentiment      `json:"sentiment,omitempty"`
	Anomalies      []Anomaly       `json:"anomalies"`
	Strategies     []Strategy      `json:"strategies"`
	FinalAction    FinalAction     `json:"final_action"`
}

// JobState is the scheduler's per-day job lifecycle.
type JobState string

const (
	JobPending JobState = "pending"
	JobRunning JobState = "running"
	JobSuccess JobState = "success"
	JobFailed  JobState = "failed"
	JobSkipped JobState = "skipped"
)

// Terminal reports whether a job state is immutable for the day.
func (s JobState) Terminal() bool {
	return s == JobSuccess || s == JobFailed || s == JobSkipped
}

// JobStatus is the persisted record of one job's run on one market day.
type JobStatus struct {
	JobName    string     `json:"job_name"`
	Date       string     `json:"date"` // ISO market day, canonical zone
	State      JobState   `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}
