package budget

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/whisper/internal/database"
	"github.com/aristath/whisper/internal/domain"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "budget.db"),
		Profile: database.ProfileLedger,
		Name:    "budget",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return NewSQLiteStore(db)
}

func testTracker(t *testing.T, store Store, limits Limits) *Tracker {
	t.Helper()
	tr := NewTracker(store, DefaultPriceTable(),
		map[string]Limits{"perplexity": limits}, time.UTC, zerolog.Nop())
	tr.now = func() time.Time { return time.Date(2026, 8, 14, 15, 0, 0, 0, time.UTC) }
	return tr
}

func TestPriceTable_Cost(t *testing.T) {
	prices := DefaultPriceTable()

	// 1M output tokens at $1/M plus 2 searches at $0.005.
	cost := prices.Cost("perplexity", "sonar", Usage{OutputTokens: 1_000_000, SearchRequests: 2})
	assert.Equal(t, "$1.01", cost.String())

	// Unknown model prices at zero rather than guessing a rate.
	cost = prices.Cost("perplexity", "sonar-huge", Usage{OutputTokens: 1_000_000})
	assert.True(t, cost.IsZero())
	assert.False(t, prices.Known("perplexity", "sonar-huge"))
}

func TestUsage_Validate(t *testing.T) {
	assert.NoError(t, Usage{OutputTokens: 500, SearchRequests: 1}.Validate())

	err := Usage{OutputTokens: -1}.Validate()
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalid))

	err = Usage{ReasoningTokens: 10_000_001}.Validate()
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalid))
}

func TestTracker_RecordAndSummary(t *testing.T) {
	ctx := context.Background()
	tr := testTracker(t, testStore(t), Limits{DailyCalls: 10, MonthlyBudget: domain.NewMoney(5)})

	cost, err := tr.Record(ctx, "perplexity", "sonar", Usage{OutputTokens: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, "$1.00", cost.String())

	_, err = tr.Record(ctx, "perplexity", "sonar", Usage{OutputTokens: 500_000})
	require.NoError(t, err)

	s, err := tr.Summary(ctx, "perplexity")
	require.NoError(t, err)
	assert.Equal(t, 2, s.TodayCalls)
	assert.Equal(t, 10, s.DailyLimit)
	assert.Equal(t, "$1.50", s.MonthCost.String())
	assert.True(t, s.CanCall)
}

func TestTracker_CheckThresholds(t *testing.T) {
	ctx := context.Background()
	tr := testTracker(t, testStore(t), Limits{DailyCalls: 10, MonthlyBudget: domain.NewMoney(10)})

	status, err := tr.Check(ctx, "perplexity", domain.NewMoney(0.10))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)

	// Spend to 80% of the monthly budget.
	for i := 0; i < 8; i++ {
		_, err := tr.Record(ctx, "perplexity", "sonar", Usage{OutputTokens: 1_000_000})
		require.NoError(t, err)
	}
	status, err = tr.Check(ctx, "perplexity", domain.NewMoney(0.10))
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, status)

	// A projected cost crossing the cap exhausts the budget.
	status, err = tr.Check(ctx, "perplexity", domain.NewMoney(2))
	require.Error(t, err)
	assert.Equal(t, StatusExhausted, status)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestTracker_DailyCallCap(t *testing.T) {
	ctx := context.Background()
	tr := testTracker(t, testStore(t), Limits{DailyCalls: 2, MonthlyBudget: domain.NewMoney(100)})

	for i := 0; i < 2; i++ {
		_, err := tr.Record(ctx, "perplexity", "sonar", Usage{SearchRequests: 1})
		require.NoError(t, err)
	}

	status, err := tr.Check(ctx, "perplexity", domain.NewMoney(0.01))
	require.Error(t, err)
	assert.Equal(t, StatusExhausted, status)
	assert.ErrorIs(t, err, ErrExhausted)

	s, err := tr.Summary(ctx, "perplexity")
	require.NoError(t, err)
	assert.False(t, s.CanCall)
}

func TestTracker_UnknownServiceFailsClosed(t *testing.T) {
	tr := testTracker(t, testStore(t), Limits{DailyCalls: 10, MonthlyBudget: domain.NewMoney(10)})

	status, err := tr.Check(context.Background(), "finnhub", domain.NewMoney(0))
	require.Error(t, err)
	assert.Equal(t, StatusExhausted, status)
	assert.True(t, domain.IsKind(err, domain.ErrConfiguration))
}

type failingStore struct{}

func (failingStore) Usage(context.Context, string, string) (int, int64, error) {
	return 0, 0, errors.New("disk gone")
}
func (failingStore) MonthCost(context.Context, string, string) (int64, error) {
	return 0, errors.New("disk gone")
}
func (failingStore) RecordCall(context.Context, string, string, int64) error {
	return errors.New("disk gone")
}

func TestTracker_UnreadableCountersFailClosed(t *testing.T) {
	tr := testTracker(t, failingStore{}, Limits{DailyCalls: 10, MonthlyBudget: domain.NewMoney(10)})

	status, err := tr.Check(context.Background(), "perplexity", domain.NewMoney(0))
	require.Error(t, err)
	assert.Equal(t, StatusExhausted, status)
	assert.ErrorIs(t, err, ErrExhausted)
}
