package impliedmove

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/whisper/internal/domain"
)

var fixedNow = time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

func testCalculator() *Calculator {
	c := NewCalculator(zerolog.Nop())
	c.now = func() time.Time { return fixedNow }
	return c
}

func buildChain(stockPrice, callBid, callAsk, putBid, putAsk float64) *domain.OptionChain {
	strike := domain.NewStrike(stockPrice)
	callIV, putIV := 0.62, 0.58
	return &domain.OptionChain{
		Ticker:     "ACME",
		Expiration: fixedNow.AddDate(0, 0, 4),
		StockPrice: stockPrice,
		Calls: map[string]domain.OptionQuote{
			strike.Key(): {
				Strike: strike, Type: domain.Call,
				Bid: callBid, Ask: callAsk,
				ImpliedVolatility: &callIV, OpenInterest: 800, Volume: 300,
			},
		},
		Puts: map[string]domain.OptionQuote{
			strike.Key(): {
				Strike: strike, Type: domain.Put,
				Bid: putBid, Ask: putAsk,
				ImpliedVolatility: &putIV, OpenInterest: 700, Volume: 250,
			},
		},
	}
}

func TestCalculate_StraddleArithmetic(t *testing.T) {
	// S=100, ATM call mid 3.10, put mid 2.90:
	// straddle 6.00, move 6%, bounds 106/94.
	chain := buildChain(100.00, 3.00, 3.20, 2.80, 3.00)

	move, err := testCalculator().Calculate(chain)
	require.NoError(t, err)

	assert.InDelta(t, 6.00, move.StraddleCost, 1e-9)
	assert.InDelta(t, 6.00, move.ImpliedMovePct, 1e-9)
	assert.InDelta(t, 106.00, move.UpperBound, 1e-9)
	assert.InDelta(t, 94.00, move.LowerBound, 1e-9)

	// Bounds are symmetric around spot by exactly the straddle cost.
	assert.InDelta(t, 2*move.StraddleCost, move.UpperBound-move.LowerBound, 1e-9)

	require.NotNil(t, move.AvgIV)
	assert.InDelta(t, 0.60, *move.AvgIV, 1e-9)
}

func TestCalculate_PastExpirationInvalid(t *testing.T) {
	chain := buildChain(100, 3.00, 3.20, 2.80, 3.00)
	chain.Expiration = fixedNow.AddDate(0, 0, -2)

	_, err := testCalculator().Calculate(chain)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalid))
}

func TestCalculate_IlliquidATMRejected(t *testing.T) {
	chain := buildChain(100, 1.00, 3.00, 2.80, 3.00) // call spread 100% of mid

	_, err := testCalculator().Calculate(chain)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalid))
}

func TestCalculate_NonPositiveStockPrice(t *testing.T) {
	chain := buildChain(100, 3.00, 3.20, 2.80, 3.00)
	chain.StockPrice = 0

	_, err := testCalculator().Calculate(chain)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalid))
}

func TestCalculate_EmptyChainNoData(t *testing.T) {
	chain := &domain.OptionChain{
		Ticker:     "EMPTY",
		Expiration: fixedNow.AddDate(0, 0, 4),
		StockPrice: 50,
		Calls:      map[string]domain.OptionQuote{},
		Puts:       map[string]domain.OptionQuote{},
	}
	_, err := testCalculator().Calculate(chain)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrNoData))
}

func TestCalculate_ExtremeMoveLoggedNotRejected(t *testing.T) {
	// Straddle 40 on a 100 stock: 40% implied move, outside the sanity
	// band but still a valid result.
	chain := buildChain(100, 19.50, 20.50, 19.50, 20.50)

	move, err := testCalculator().Calculate(chain)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, move.ImpliedMovePct, 1e-9)
}
