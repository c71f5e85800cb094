// Package earnings persists the earnings calendar and the realized
// post-earnings move history in the scanner database.
package earnings

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
)

const isoDate = "2006-01-02"

// CalendarRepository handles the earnings_calendar table. Calendar rows
// are upserted by (ticker, date); providers re-confirm dates as the
// announcement approaches.
type CalendarRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCalendarRepository creates a calendar repository.
func NewCalendarRepository(db *sql.DB, log zerolog.Logger) *CalendarRepository {
	return &CalendarRepository{db: db, log: log.With().Str("repo", "earnings_calendar").Logger()}
}

// Upsert inserts or refreshes one calendar row.
func (r *CalendarRepository) Upsert(ctx context.Context, event domain.EarningsEvent) error {
	if event.Ticker == "" || event.Date.IsZero() {
		return domain.Errorf(domain.ErrInvalid, "calendar.upsert", "event needs ticker and date")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO earnings_calendar (ticker, earnings_date, timing, confirmed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ticker, earnings_date) DO UPDATE SET
			timing = excluded.timing,
			confirmed = excluded.confirmed,
			updated_at = datetime('now')`,
		strings.ToUpper(event.Ticker), event.Date.Format(isoDate),
		string(event.Timing), boolToInt(event.Confirmed),
	)
	if err != nil {
		return domain.NewError(domain.ErrDB, "calendar.upsert", err).WithTicker(event.Ticker)
	}
	return nil
}

// Between returns calendar rows with start <= date <= end, ordered by
// date then ticker.
func (r *CalendarRepository) Between(ctx context.Context, start, end time.Time) ([]domain.EarningsEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ticker, earnings_date, timing, confirmed
		FROM earnings_calendar
		WHERE earnings_date >= ? AND earnings_date <= ?
		ORDER BY earnings_date, ticker`,
		start.Format(isoDate), end.Format(isoDate),
	)
	if err != nil {
		return nil, domain.NewError(domain.ErrDB, "calendar.between", err)
	}
	defer rows.Close()

	var events []domain.EarningsEvent
	for rows.Next() {
		var e domain.EarningsEvent
		var date, timing string
		var confirmed int
		if err := rows.Scan(&e.Ticker, &date, &timing, &confirmed); err != nil {
			return nil, domain.NewError(domain.ErrDB, "calendar.between", err)
		}
		e.Date, err = time.Parse(isoDate, date)
		if err != nil {
			return nil, domain.NewError(domain.ErrDB, "calendar.between",
				fmt.Errorf("bad date %q for %s: %w", date, e.Ticker, err))
		}
		e.Timing = domain.AnnouncementTiming(timing)
		e.Confirmed = confirmed != 0
		events = append(events, e)
	}
	return events, rows.Err()
}

// NextFor returns the next calendar row for a ticker at or after the
// given date, or a NODATA error when none is known.
func (r *CalendarRepository) NextFor(ctx context.Context, ticker string, after time.Time) (domain.EarningsEvent, error) {
	var e domain.EarningsEvent
	var date, timing string
	var confirmed int
	err := r.db.QueryRowContext(ctx, `
		SELECT ticker, earnings_date, timing, confirmed
		FROM earnings_calendar
		WHERE ticker = ? AND earnings_date >= ?
		ORDER BY earnings_date
		LIMIT 1`,
		strings.ToUpper(ticker), after.Format(isoDate),
	).Scan(&e.Ticker, &date, &timing, &confirmed)
	if err == sql.ErrNoRows {
		return domain.EarningsEvent{}, domain.Errorf(domain.ErrNoData, "calendar.next",
			"no upcoming earnings for %s", ticker).WithTicker(ticker)
	}
	if err != nil {
		return domain.EarningsEvent{}, domain.NewError(domain.ErrDB, "calendar.next", err).WithTicker(ticker)
	}
	e.Date, err = time.Parse(isoDate, date)
	if err != nil {
		return domain.EarningsEvent{}, domain.NewError(domain.ErrDB, "calendar.next", err).WithTicker(ticker)
	}
	e.Timing = domain.AnnouncementTiming(timing)
	e.Confirmed = confirmed != 0
	return e, nil
}

// MovesRepository handles the append-only historical_moves table.
type MovesRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMovesRepository creates a historical moves repository.
func NewMovesRepository(db *sql.DB, log zerolog.Logger) *MovesRepository {
	return &MovesRepository{db: db, log: log.With().Str("repo", "historical_moves").Logger()}
}

// Record appends one realized move. A second record for the same
// (ticker, earnings date) is ignored: the table is append-only and the
// first write wins.
func (r *MovesRepository) Record(ctx context.Context, move domain.HistoricalMove) error {
	if move.Ticker == "" || move.EarningsDate.IsZero() {
		return domain.Errorf(domain.ErrInvalid, "moves.record", "move needs ticker and date")
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO historical_moves
			(ticker, earnings_date, prev_close, earnings_close,
			 close_move_pct, gap_move_pct, intraday_move_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, earnings_date) DO NOTHING`,
		strings.ToUpper(move.Ticker), move.EarningsDate.Format(isoDate),
		move.PrevClose, move.EarningsClose,
		move.CloseMovePct, move.GapMovePct, move.IntradayMovePct,
	)
	if err != nil {
		return domain.NewError(domain.ErrDB, "moves.record", err).WithTicker(move.Ticker)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		r.log.Debug().Str("ticker", move.Ticker).
			Str("earnings_date", move.EarningsDate.Format(isoDate)).
			Msg("move already recorded, keeping the first write")
	}
	return nil
}

// Recent returns up to limit moves for a ticker, newest first.
func (r *MovesRepository) Recent(ctx context.Context, ticker string, limit int) ([]domain.HistoricalMove, error) {
	if limit <= 0 {
		limit = 12
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ticker, earnings_date, prev_close, earnings_close,
		       close_move_pct, gap_move_pct, intraday_move_pct
		FROM historical_moves
		WHERE ticker = ?
		ORDER BY earnings_date DESC
		LIMIT ?`,
		strings.ToUpper(ticker), limit,
	)
	if err != nil {
		return nil, domain.NewError(domain.ErrDB, "moves.recent", err).WithTicker(ticker)
	}
	defer rows.Close()

	var moves []domain.HistoricalMove
	for rows.Next() {
		var m domain.HistoricalMove
		var date string
		if err := rows.Scan(&m.Ticker, &date, &m.PrevClose, &m.EarningsClose,
			&m.CloseMovePct, &m.GapMovePct, &m.IntradayMovePct); err != nil {
			return nil, domain.NewError(domain.ErrDB, "moves.recent", err).WithTicker(ticker)
		}
		m.EarningsDate, err = time.Parse(isoDate, date)
		if err != nil {
			return nil, domain.NewError(domain.ErrDB, "moves.recent", err).WithTicker(ticker)
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
