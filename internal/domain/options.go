package domain

import (
	"sort"
	"time"
)

// OptionType is the closed set of option contract types.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Greeks holds the subset of greeks the pipeline consumes.
// Delta drives probability-of-profit estimates for credit spreads.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// OptionQuote is a single option contract quote.
type OptionQuote struct {
	Strike            Strike     `json:"strike"`
	Type              OptionType `json:"type"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	ImpliedVolatility *float64   `json:"implied_volatility,omitempty"`
	OpenInterest      int        `json:"open_interest"`
	Volume            int        `json:"volume"`
	Greeks            *Greeks    `json:"greeks,omitempty"`
}

// Mid returns the bid/ask midpoint.
func (q OptionQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2.0
}

// SpreadPct returns the quoted spread as a fraction of the midpoint.
// Quotes with a non-positive mid report a full-width spread.
func (q OptionQuote) SpreadPct() float64 {
	mid := q.Mid()
	if mid <= 0 {
		return 1.0
	}
	return (q.Ask - q.Bid) / mid
}

// Liquidity floor for a tradeable quote: two-sided market, some open
// interest, and a spread under 25% of mid.
const (
	minLiquidOpenInterest = 10
	maxLiquidSpreadPct    = 0.25
)

// IsLiquid reports whether the quote clears the minimum tradeability bar.
func (q OptionQuote) IsLiquid() bool {
	return q.Bid > 0 && q.Ask > 0 &&
		q.OpenInterest >= minLiquidOpenInterest &&
		q.SpreadPct() <= maxLiquidSpreadPct
}

// OptionChain holds all quotes for one ticker and expiration, indexed
// by strike key.
type OptionChain struct {
	Ticker     string                 `json:"ticker"`
	Expiration time.Time              `json:"expiration"`
	StockPrice float64                `json:"stock_price"`
	Calls      map[string]OptionQuote `json:"calls"`
	Puts       map[string]OptionQuote `json:"puts"`
}

// ATMStrike returns the strike minimizing |strike - stock price|.
// Only strikes present on both sides are considered; ties break to the
// lower strike so the result is deterministic.
func (c *OptionChain) ATMStrike() (Strike, error) {
	if len(c.Calls) == 0 || len(c.Puts) == 0 {
		return Strike{}, Errorf(ErrNoData, "chain.atm",
			"chain for %s has no two-sided strikes (calls=%d puts=%d)",
			c.Ticker, len(c.Calls), len(c.Puts))
	}

	var candidates []Strike
	for key, call := range c.Calls {
		put, ok := c.Puts[key]
		if !ok {
			continue
		}
		if call.Mid() <= 0 || put.Mid() <= 0 {
			continue
		}
		candidates = append(candidates, call.Strike)
	}
	if len(candidates) == 0 {
		return Strike{}, Errorf(ErrNoData, "chain.atm",
			"chain for %s has no strike with positive call and put mids", c.Ticker)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LessThan(candidates[j])
	})

	best := candidates[0]
	bestDist := best.DistanceFrom(c.StockPrice)
	for _, s := range candidates[1:] {
		if d := s.DistanceFrom(c.StockPrice); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, nil
}

// QuoteAt returns the call and put at the given strike.
func (c *OptionChain) QuoteAt(strike Strike) (call, put OptionQuote, ok bool) {
	call, callOK := c.Calls[strike.Key()]
	put, putOK := c.Puts[strike.Key()]
	return call, put, callOK && putOK
}

// SortedStrikes returns all strikes quoted on the given side, ascending.
func (c *OptionChain) SortedStrikes(side OptionType) []Strike {
	var src map[string]OptionQuote
	if side == Call {
		src = c.Calls
	} else {
		src = c.Puts
	}
	strikes := make([]Strike, 0, len(src))
	for _, q := range src {
		strikes = append(strikes, q.Strike)
	}
	sort.Slice(strikes, func(i, j int) bool { return strikes[i].LessThan(strikes[j]) })
	return strikes
}
