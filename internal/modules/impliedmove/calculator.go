// Package impliedmove prices the market's expected earnings move from
// the at-the-money straddle.
package impliedmove

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
)

// Sanity band for an earnings implied move. Values outside are logged
// and kept; a 35% biotech move is unusual, not impossible.
const (
	sanityFloorPct   = 0.5
	sanityCeilingPct = 30.0
)

// Calculator computes implied moves from option chains.
type Calculator struct {
	log zerolog.Logger
	now func() time.Time
}

// NewCalculator creates an implied-move calculator.
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("module", "impliedmove").Logger(),
		now: time.Now,
	}
}

// Calculate prices the implied move for one chain.
// The expiration must not be in the past, the ATM call and put must both
// exist and be liquid, and the stock price must be positive.
func (c *Calculator) Calculate(chain *domain.OptionChain) (*domain.ImpliedMove, error) {
	if chain == nil {
		return nil, domain.Errorf(domain.ErrNoData, "impliedmove", "nil option chain")
	}

	today := c.now().Truncate(24 * time.Hour)
	if chain.Expiration.Before(today) {
		return nil, domain.Errorf(domain.ErrInvalid, "impliedmove",
			"%s expiration %s already passed", chain.Ticker, chain.Expiration.Format("2006-01-02"))
	}
	if chain.StockPrice <= 0 {
		return nil, domain.Errorf(domain.ErrInvalid, "impliedmove",
			"%s has non-positive stock price %.4f", chain.Ticker, chain.StockPrice)
	}

	atm, err := chain.ATMStrike()
	if err != nil {
		return nil, err
	}

	call, put, ok := chain.QuoteAt(atm)
	if !ok {
		return nil, domain.Errorf(domain.ErrNoData, "impliedmove",
			"%s missing ATM quotes at %s", chain.Ticker, atm)
	}
	if !call.IsLiquid() || !put.IsLiquid() {
		return nil, domain.Errorf(domain.ErrInvalid, "impliedmove",
			"%s ATM straddle at %s is not liquid (call=%v put=%v)",
			chain.Ticker, atm, call.IsLiquid(), put.IsLiquid())
	}

	straddle := call.Mid() + put.Mid()
	movePct := 100.0 * straddle / chain.StockPrice

	if movePct < sanityFloorPct || movePct > sanityCeilingPct {
		c.log.Warn().
			Str("ticker", chain.Ticker).
			Float64("implied_move_pct", movePct).
			Msg("implied move outside sanity band")
	}

	move := &domain.ImpliedMove{
		Ticker:         chain.Ticker,
		Expiration:     chain.Expiration,
		StockPrice:     chain.StockPrice,
		ATMStrike:      atm,
		StraddleCost:   straddle,
		ImpliedMovePct: movePct,
		UpperBound:     chain.StockPrice + straddle,
		LowerBound:     chain.StockPrice - straddle,
	}
	if move.LowerBound <= 0 {
		c.log.Warn().
			Str("ticker", chain.Ticker).
			Float64("lower_bound", move.LowerBound).
			Msg("implied lower bound at or below zero")
	}

	if call.ImpliedVolatility != nil {
		iv := *call.ImpliedVolatility
		move.CallIV = &iv
	}
	if put.ImpliedVolatility != nil {
		iv := *put.ImpliedVolatility
		move.PutIV = &iv
	}
	if move.CallIV != nil && move.PutIV != nil {
		avg := (*move.CallIV + *move.PutIV) / 2.0
		move.AvgIV = &avg
	}

	return move, nil
}
