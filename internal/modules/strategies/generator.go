// Package strategies builds defined-risk credit structures around the
// implied move, shaped by the skew-derived directional bias.
package strategies

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
	"github.com/aristath/whisper/internal/modules/liquidity"
)

// Contract multiplier for equity options.
const contractMultiplier = 100

// Config parameterizes strike placement and leg quality.
type Config struct {
	// Safer-side strike shifts in dollars, by bias strength.
	ShiftWeak     float64
	ShiftModerate float64
	ShiftStrong   float64
	// Every leg must individually grade at or better than this tier.
	RequiredLiquidityFloor domain.LiquidityTier
}

// DefaultConfig returns the standard 2/5/10 point shifts and a WARNING
// leg-liquidity floor.
func DefaultConfig() Config {
	return Config{
		ShiftWeak:              2,
		ShiftModerate:          5,
		ShiftStrong:            10,
		RequiredLiquidityFloor: domain.LiquidityWarning,
	}
}

// Input is everything the generator needs for one ticker.
type Input struct {
	Chain   *domain.OptionChain
	Implied *domain.ImpliedMove
	VRP     *domain.VRPResult
	Skew    *domain.SkewAnalysis // nil reads as NEUTRAL
	Limits  *domain.PositionLimits
}

// Generator emits ranked strategy candidates.
type Generator struct {
	cfg Config
	liq *liquidity.Classifier
	log zerolog.Logger
}

// NewGenerator creates a strategy generator.
func NewGenerator(cfg Config, liq *liquidity.Classifier, log zerolog.Logger) *Generator {
	if cfg.ShiftWeak == 0 && cfg.ShiftModerate == 0 && cfg.ShiftStrong == 0 {
		cfg = DefaultConfig()
	}
	return &Generator{
		cfg: cfg,
		liq: liq,
		log: log.With().Str("module", "strategies").Logger(),
	}
}

// Generate builds candidates per the bias:
//   - NEUTRAL with GOOD+ VRP: iron condor and iron butterfly, shorts at
//     roughly one implied move from spot
//   - weak lean with GOOD+ VRP: condor with the threatened side shifted
//     out, plus the matching vertical
//   - directional lean: bull put (bullish) or bear call (bearish) with
//     the short strike shifted safer per strength
//
// Candidates whose legs fail the liquidity floor, or that cannot be
// sized inside the position limits, are dropped.
func (g *Generator) Generate(in Input) ([]domain.Strategy, error) {
	if in.Chain == nil || in.Implied == nil || in.VRP == nil {
		return nil, domain.Errorf(domain.ErrInvalid, "strategies", "incomplete input")
	}
	if in.Limits == nil {
		return nil, domain.Errorf(domain.ErrInvalid, "strategies", "position limits required")
	}

	strength := 0
	bullish := false
	if in.Skew != nil {
		strength = in.Skew.Strength()
		bullish = in.Skew.IsBullish()
	}
	goodVRP := in.VRP.Recommendation == domain.RecommendExcellent ||
		in.VRP.Recommendation == domain.RecommendGood

	var candidates []domain.Strategy

	if strength <= 1 && goodVRP {
		if condor, ok := g.ironCondor(in, strength, bullish); ok {
			candidates = append(candidates, condor)
		}
		if strength == 0 {
			if fly, ok := g.ironButterfly(in); ok {
				candidates = append(candidates, fly)
			}
		}
	}
	if strength >= 1 {
		if vertical, ok := g.vertical(in, strength, bullish); ok {
			candidates = append(candidates, vertical)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].POP != candidates[j].POP {
			return candidates[i].POP > candidates[j].POP
		}
		return candidates[i].Type < candidates[j].Type
	})

	g.log.Debug().
		Str("ticker", in.Chain.Ticker).
		Int("candidates", len(candidates)).
		Msg("strategies generated")

	return candidates, nil
}

func (g *Generator) shift(strength int) float64 {
	switch strength {
	case 1:
		return g.cfg.ShiftWeak
	case 2:
		return g.cfg.ShiftModerate
	case 3:
		return g.cfg.ShiftStrong
	default:
		return 0
	}
}

func (g *Generator) ironCondor(in Input, strength int, bullish bool) (domain.Strategy, bool) {
	spot := in.Chain.StockPrice
	straddle := in.Implied.StraddleCost
	shift := g.shift(strength)

	putTarget := spot - straddle
	callTarget := spot + straddle
	// Push the threatened side further out: a bullish lean threatens
	// the call side, a bearish lean the put side.
	if strength > 0 {
		if bullish {
			callTarget += shift
		} else {
			putTarget -= shift
		}
	}

	putStrikes := in.Chain.SortedStrikes(domain.Put)
	callStrikes := in.Chain.SortedStrikes(domain.Call)

	shortPut, ok := atOrBelow(putStrikes, putTarget)
	if !ok {
		return domain.Strategy{}, false
	}
	longPut, ok := below(putStrikes, shortPut)
	if !ok {
		return domain.Strategy{}, false
	}
	shortCall, ok := atOrAbove(callStrikes, callTarget)
	if !ok {
		return domain.Strategy{}, false
	}
	longCall, ok := above(callStrikes, shortCall)
	if !ok {
		return domain.Strategy{}, false
	}

	sp := in.Chain.Puts[shortPut.Key()]
	lp := in.Chain.Puts[longPut.Key()]
	sc := in.Chain.Calls[shortCall.Key()]
	lc := in.Chain.Calls[longCall.Key()]

	credit := (sp.Mid() - lp.Mid()) + (sc.Mid() - lc.Mid())
	width := math.Max(shortPut.Float64()-longPut.Float64(), longCall.Float64()-shortCall.Float64())
	if credit <= 0 || width <= credit {
		return domain.Strategy{}, false
	}

	pop := condorPOP(sp, sc, spot, shortPut.Float64(), shortCall.Float64(), straddle)
	legs := []domain.StrategyLeg{
		{Side: domain.Buy, OptionType: domain.Put, Strike: longPut},
		{Side: domain.Sell, OptionType: domain.Put, Strike: shortPut},
		{Side: domain.Sell, OptionType: domain.Call, Strike: shortCall},
		{Side: domain.Buy, OptionType: domain.Call, Strike: longCall},
	}
	quotes := []domain.OptionQuote{lp, sp, sc, lc}

	return g.finalize(in, domain.IronCondor, legs, quotes, credit, width, pop,
		fmt.Sprintf("iron condor %s/%s/%s/%s", longPut, shortPut, shortCall, longCall))
}

func (g *Generator) ironButterfly(in Input) (domain.Strategy, bool) {
	spot := in.Chain.StockPrice
	straddle := in.Implied.StraddleCost
	body := in.Implied.ATMStrike

	putStrikes := in.Chain.SortedStrikes(domain.Put)
	callStrikes := in.Chain.SortedStrikes(domain.Call)

	longPut, ok := atOrBelow(putStrikes, spot-straddle)
	if !ok || !longPut.LessThan(body) {
		return domain.Strategy{}, false
	}
	longCall, ok := atOrAbove(callStrikes, spot+straddle)
	if !ok || !body.LessThan(longCall) {
		return domain.Strategy{}, false
	}

	sp, okPut := in.Chain.Puts[body.Key()]
	sc, okCall := in.Chain.Calls[body.Key()]
	if !okPut || !okCall {
		return domain.Strategy{}, false
	}
	lp := in.Chain.Puts[longPut.Key()]
	lc := in.Chain.Calls[longCall.Key()]

	credit := sp.Mid() + sc.Mid() - lp.Mid() - lc.Mid()
	width := math.Max(body.Float64()-longPut.Float64(), longCall.Float64()-body.Float64())
	if credit <= 0 || width <= credit {
		return domain.Strategy{}, false
	}

	// Profit band is body +/- credit; probability from the implied
	// one-sigma move.
	pop := 2*normalCDF(credit/straddle) - 1
	legs := []domain.StrategyLeg{
		{Side: domain.Buy, OptionType: domain.Put, Strike: longPut},
		{Side: domain.Sell, OptionType: domain.Put, Strike: body},
		{Side: domain.Sell, OptionType: domain.Call, Strike: body},
		{Side: domain.Buy, OptionType: domain.Call, Strike: longCall},
	}
	quotes := []domain.OptionQuote{lp, sp, sc, lc}

	return g.finalize(in, domain.IronButterfly, legs, quotes, credit, width, pop,
		fmt.Sprintf("iron butterfly %s/%s/%s", longPut, body, longCall))
}

func (g *Generator) vertical(in Input, strength int, bullish bool) (domain.Strategy, bool) {
	spot := in.Chain.StockPrice
	straddle := in.Implied.StraddleCost
	shift := g.shift(strength)

	if bullish {
		// Bull put spread: short below spot, long further below,
		// shifted safer (lower) with bias strength.
		strikes := in.Chain.SortedStrikes(domain.Put)
		short, ok := atOrBelow(strikes, spot-straddle-shift)
		if !ok {
			return domain.Strategy{}, false
		}
		long, ok := below(strikes, short)
		if !ok {
			return domain.Strategy{}, false
		}
		sq := in.Chain.Puts[short.Key()]
		lq := in.Chain.Puts[long.Key()]

		credit := sq.Mid() - lq.Mid()
		width := short.Float64() - long.Float64()
		if credit <= 0 || width <= credit {
			return domain.Strategy{}, false
		}
		pop := shortLegPOP(sq, (spot-short.Float64())/straddle)
		legs := []domain.StrategyLeg{
			{Side: domain.Buy, OptionType: domain.Put, Strike: long},
			{Side: domain.Sell, OptionType: domain.Put, Strike: short},
		}
		return g.finalize(in, domain.BullPutSpread, legs, []domain.OptionQuote{lq, sq}, credit, width, pop,
			fmt.Sprintf("bull put spread %s/%s", long, short))
	}

	// Bear call spread: short above spot, long further above.
	strikes := in.Chain.SortedStrikes(domain.Call)
	short, ok := atOrAbove(strikes, spot+straddle+shift)
	if !ok {
		return domain.Strategy{}, false
	}
	long, ok := above(strikes, short)
	if !ok {
		return domain.Strategy{}, false
	}
	sq := in.Chain.Calls[short.Key()]
	lq := in.Chain.Calls[long.Key()]

	credit := sq.Mid() - lq.Mid()
	width := long.Float64() - short.Float64()
	if credit <= 0 || width <= credit {
		return domain.Strategy{}, false
	}
	pop := shortLegPOP(sq, (short.Float64()-spot)/straddle)
	legs := []domain.StrategyLeg{
		{Side: domain.Sell, OptionType: domain.Call, Strike: short},
		{Side: domain.Buy, OptionType: domain.Call, Strike: long},
	}
	return g.finalize(in, domain.BearCallSpread, legs, []domain.OptionQuote{sq, lq}, credit, width, pop,
		fmt.Sprintf("bear call spread %s/%s", short, long))
}

// finalize sizes the structure inside the position limits, checks each
// leg against the liquidity floor, and packages the economics.
func (g *Generator) finalize(in Input, typ domain.StrategyType, legs []domain.StrategyLeg,
	quotes []domain.OptionQuote, credit, width, pop float64, desc string) (domain.Strategy, bool) {

	maxRiskPerContract := (width - credit) * contractMultiplier

	quantity := in.Limits.MaxContracts
	if maxRiskPerContract > 0 {
		byNotional := int(in.Limits.MaxNotional.Float64() / maxRiskPerContract)
		if byNotional < quantity {
			quantity = byNotional
		}
	}
	if quantity < 1 {
		return domain.Strategy{}, false
	}

	for i, q := range quotes {
		assessment, err := g.liq.Classify(in.Chain.Ticker, q.OpenInterest, q.SpreadPct(), quantity)
		if err != nil || assessment.Overall > g.cfg.RequiredLiquidityFloor {
			g.log.Debug().
				Str("ticker", in.Chain.Ticker).
				Str("type", string(typ)).
				Str("strike", legs[i].Strike.String()).
				Msg("leg failed liquidity floor, dropping strategy")
			return domain.Strategy{}, false
		}
	}

	for i := range legs {
		legs[i].Quantity = quantity
	}

	return domain.Strategy{
		Type:              typ,
		Legs:              legs,
		MaxProfit:         domain.NewMoney(credit * contractMultiplier),
		MaxRisk:           domain.NewMoney(maxRiskPerContract),
		POP:               clamp01(pop),
		Description:       desc,
		RequiredLiquidity: g.cfg.RequiredLiquidityFloor,
	}, true
}

// condorPOP uses short deltas when both legs carry greeks, otherwise a
// normal model with the straddle cost as one sigma.
func condorPOP(shortPut, shortCall domain.OptionQuote, spot, putStrike, callStrike, sigma float64) float64 {
	if shortPut.Greeks != nil && shortCall.Greeks != nil {
		return 1 - math.Abs(shortPut.Greeks.Delta) - math.Abs(shortCall.Greeks.Delta)
	}
	return normalCDF((callStrike-spot)/sigma) + normalCDF((spot-putStrike)/sigma) - 1
}

func shortLegPOP(short domain.OptionQuote, sigmaDistance float64) float64 {
	if short.Greeks != nil {
		return 1 - math.Abs(short.Greeks.Delta)
	}
	return normalCDF(sigmaDistance)
}

func normalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Strike navigation over an ascending slice.

func atOrBelow(strikes []domain.Strike, target float64) (domain.Strike, bool) {
	for i := len(strikes) - 1; i >= 0; i-- {
		if strikes[i].Float64() <= target {
			return strikes[i], true
		}
	}
	return domain.Strike{}, false
}

func atOrAbove(strikes []domain.Strike, target float64) (domain.Strike, bool) {
	for _, s := range strikes {
		if s.Float64() >= target {
			return s, true
		}
	}
	return domain.Strike{}, false
}

func below(strikes []domain.Strike, ref domain.Strike) (domain.Strike, bool) {
	for i := len(strikes) - 1; i >= 0; i-- {
		if strikes[i].LessThan(ref) {
			return strikes[i], true
		}
	}
	return domain.Strike{}, false
}

func above(strikes []domain.Strike, ref domain.Strike) (domain.Strike, bool) {
	for _, s := range strikes {
		if ref.LessThan(s) {
			return s, true
		}
	}
	return domain.Strike{}, false
}
