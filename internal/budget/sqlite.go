package budget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/whisper/internal/database"
)

// SQLiteStore persists usage counters in the budget database.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore wraps an opened budget database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Usage returns the counters for one (service, day). A missing row reads
// as zero usage.
func (s *SQLiteStore) Usage(ctx context.Context, service, day string) (int, int64, error) {
	var calls int
	var costCents int64
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT calls, cost_cents FROM budget_usage WHERE service = ? AND day = ?`,
		service, day,
	).Scan(&calls, &costCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("read budget usage: %w", err)
	}
	return calls, costCents, nil
}

// MonthCost sums the month's spend in cents. month is "YYYY-MM".
func (s *SQLiteStore) MonthCost(ctx context.Context, service, month string) (int64, error) {
	var cents int64
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_cents), 0) FROM budget_usage
		 WHERE service = ? AND day LIKE ? || '-%'`,
		service, month,
	).Scan(&cents)
	if err != nil {
		return 0, fmt.Errorf("sum month cost: %w", err)
	}
	return cents, nil
}

// Rows dumps all counters for snapshot replication.
func (s *SQLiteStore) Rows(ctx context.Context) ([]UsageRow, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT service, day, calls, cost_cents FROM budget_usage ORDER BY service, day`)
	if err != nil {
		return nil, fmt.Errorf("dump budget rows: %w", err)
	}
	defer rows.Close()

	var out []UsageRow
	for rows.Next() {
		var r UsageRow
		if err := rows.Scan(&r.Service, &r.Day, &r.Calls, &r.CostCents); err != nil {
			return nil, fmt.Errorf("scan budget row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Merge folds snapshot rows into the local counters, keeping the max of
// each pair so replaying a snapshot never undercounts spend.
func (s *SQLiteStore) Merge(ctx context.Context, snapshot []UsageRow) error {
	return database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		for _, r := range snapshot {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO budget_usage (service, day, calls, cost_cents)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT(service, day) DO UPDATE SET
				     calls = MAX(calls, excluded.calls),
				     cost_cents = MAX(cost_cents, excluded.cost_cents),
				     updated_at = datetime('now')`,
				r.Service, r.Day, r.Calls, r.CostCents,
			)
			if err != nil {
				return fmt.Errorf("merge budget row %s/%s: %w", r.Service, r.Day, err)
			}
		}
		return nil
	})
}

// RecordCall upserts one call and its cost into the day's row.
func (s *SQLiteStore) RecordCall(ctx context.Context, service, day string, costCents int64) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO budget_usage (service, day, calls, cost_cents)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(service, day) DO UPDATE SET
		     calls = calls + 1,
		     cost_cents = cost_cents + excluded.cost_cents,
		     updated_at = datetime('now')`,
		service, day, costCents,
	)
	if err != nil {
		return fmt.Errorf("record budget call: %w", err)
	}
	return nil
}
