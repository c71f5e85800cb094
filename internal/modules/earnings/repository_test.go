package earnings

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/whisper/internal/database"
	"github.com/aristath/whisper/internal/domain"
)

func scannerDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "scanner.db"),
		Name: "scanner",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func date(t *testing.T, iso string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", iso)
	require.NoError(t, err)
	return d
}

func TestCalendar_UpsertRefreshesRow(t *testing.T) {
	ctx := context.Background()
	repo := NewCalendarRepository(scannerDB(t).Conn(), zerolog.Nop())

	require.NoError(t, repo.Upsert(ctx, domain.EarningsEvent{
		Ticker: "acme", Date: date(t, "2026-09-03"),
		Timing: domain.TimingUnknown, Confirmed: false,
	}))
	// Provider later confirms the same date with timing.
	require.NoError(t, repo.Upsert(ctx, domain.EarningsEvent{
		Ticker: "ACME", Date: date(t, "2026-09-03"),
		Timing: domain.AfterMarketClose, Confirmed: true,
	}))

	events, err := repo.Between(ctx, date(t, "2026-09-01"), date(t, "2026-09-30"))
	require.NoError(t, err)
	require.Len(t, events, 1, "upsert must not duplicate the row")
	assert.Equal(t, "ACME", events[0].Ticker)
	assert.Equal(t, domain.AfterMarketClose, events[0].Timing)
	assert.True(t, events[0].Confirmed)
}

func TestCalendar_BetweenOrdersByDateThenTicker(t *testing.T) {
	ctx := context.Background()
	repo := NewCalendarRepository(scannerDB(t).Conn(), zerolog.Nop())

	for _, e := range []domain.EarningsEvent{
		{Ticker: "ZZZZ", Date: date(t, "2026-09-03"), Timing: domain.BeforeMarketOpen},
		{Ticker: "AAAA", Date: date(t, "2026-09-03"), Timing: domain.AfterMarketClose},
		{Ticker: "MMMM", Date: date(t, "2026-09-01"), Timing: domain.AfterMarketClose},
		{Ticker: "EARLY", Date: date(t, "2026-08-20"), Timing: domain.AfterMarketClose},
	} {
		require.NoError(t, repo.Upsert(ctx, e))
	}

	events, err := repo.Between(ctx, date(t, "2026-09-01"), date(t, "2026-09-30"))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "MMMM", events[0].Ticker)
	assert.Equal(t, "AAAA", events[1].Ticker)
	assert.Equal(t, "ZZZZ", events[2].Ticker)
}

func TestCalendar_NextFor(t *testing.T) {
	ctx := context.Background()
	repo := NewCalendarRepository(scannerDB(t).Conn(), zerolog.Nop())

	require.NoError(t, repo.Upsert(ctx, domain.EarningsEvent{
		Ticker: "ACME", Date: date(t, "2026-06-03"), Timing: domain.AfterMarketClose,
	}))
	require.NoError(t, repo.Upsert(ctx, domain.EarningsEvent{
		Ticker: "ACME", Date: date(t, "2026-09-03"), Timing: domain.AfterMarketClose,
	}))

	next, err := repo.NextFor(ctx, "ACME", date(t, "2026-08-24"))
	require.NoError(t, err)
	assert.Equal(t, "2026-09-03", next.Date.Format("2006-01-02"))

	_, err = repo.NextFor(ctx, "GHOST", date(t, "2026-08-24"))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrNoData))
}

func TestMoves_AppendOnlyFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := NewMovesRepository(scannerDB(t).Conn(), zerolog.Nop())

	require.NoError(t, repo.Record(ctx, domain.HistoricalMove{
		Ticker: "ACME", EarningsDate: date(t, "2026-05-05"),
		PrevClose: 100, EarningsClose: 104, CloseMovePct: 4.0,
	}))
	// Re-recording the same quarter must not overwrite the first write.
	require.NoError(t, repo.Record(ctx, domain.HistoricalMove{
		Ticker: "ACME", EarningsDate: date(t, "2026-05-05"),
		PrevClose: 100, EarningsClose: 109, CloseMovePct: 9.0,
	}))

	moves, err := repo.Recent(ctx, "ACME", 10)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.InDelta(t, 4.0, moves[0].CloseMovePct, 1e-9)
}

func TestMoves_RecentNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewMovesRepository(scannerDB(t).Conn(), zerolog.Nop())

	quarters := []string{"2025-05-05", "2025-08-05", "2025-11-04", "2026-02-03", "2026-05-05"}
	for i, q := range quarters {
		require.NoError(t, repo.Record(ctx, domain.HistoricalMove{
			Ticker: "acme", EarningsDate: date(t, q),
			PrevClose: 100, EarningsClose: 102, CloseMovePct: float64(i + 1),
		}))
	}

	moves, err := repo.Recent(ctx, "ACME", 3)
	require.NoError(t, err)
	require.Len(t, moves, 3)
	assert.Equal(t, "2026-05-05", moves[0].EarningsDate.Format("2006-01-02"))
	assert.Equal(t, "2026-02-03", moves[1].EarningsDate.Format("2006-01-02"))
	assert.Equal(t, "2025-11-04", moves[2].EarningsDate.Format("2006-01-02"))
}

func TestMoves_ValidatesInput(t *testing.T) {
	repo := NewMovesRepository(scannerDB(t).Conn(), zerolog.Nop())

	err := repo.Record(context.Background(), domain.HistoricalMove{Ticker: "ACME"})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalid))
}
