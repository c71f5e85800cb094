package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
)

const sqlTime = "2006-01-02 15:04:05"

// StatusRepository persists one row per (job, market day) in the
// scanner database. Terminal rows are never overwritten by Upsert.
type StatusRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStatusRepository creates a job status repository.
func NewStatusRepository(db *sql.DB, log zerolog.Logger) *StatusRepository {
	return &StatusRepository{db: db, log: log.With().Str("repo", "job_status").Logger()}
}

// Get returns the status row for one job on one market day.
func (r *StatusRepository) Get(ctx context.Context, job, day string) (domain.JobStatus, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT job_name, market_day, status, started_at, finished_at, COALESCE(error, '')
		FROM job_status WHERE job_name = ? AND market_day = ?`, job, day)

	var st domain.JobStatus
	var state string
	var startedAt, finished sql.NullString
	err := row.Scan(&st.JobName, &st.Date, &state, &startedAt, &finished, &st.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.JobStatus{}, domain.Errorf(domain.ErrNoData, "jobstatus.get",
			"no status for %s on %s", job, day)
	}
	if err != nil {
		return domain.JobStatus{}, domain.NewError(domain.ErrDB, "jobstatus.get", err)
	}
	st.State = domain.JobState(state)
	st.StartedAt = parseNullTime(startedAt)
	st.FinishedAt = parseNullTime(finished)
	return st, nil
}

// Upsert writes one status row. An existing terminal row stays as is
// unless overwrite is set; the dispatcher overwrites only on force.
func (r *StatusRepository) Upsert(ctx context.Context, st domain.JobStatus, overwrite bool) error {
	if st.JobName == "" || st.Date == "" {
		return domain.Errorf(domain.ErrInvalid, "jobstatus.upsert", "job name and day are required")
	}

	if !overwrite {
		existing, err := r.Get(ctx, st.JobName, st.Date)
		if err == nil && existing.State.Terminal() {
			return domain.Errorf(domain.ErrInvalid, "jobstatus.upsert",
				"%s already terminal (%s) on %s", st.JobName, existing.State, st.Date)
		}
		if err != nil && !domain.IsKind(err, domain.ErrNoData) {
			return err
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_status (job_name, market_day, status, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_name, market_day) DO UPDATE SET
			status      = excluded.status,
			started_at  = COALESCE(excluded.started_at, job_status.started_at),
			finished_at = excluded.finished_at,
			error       = excluded.error`,
		st.JobName, st.Date, string(st.State),
		formatNullTime(st.StartedAt), formatNullTime(st.FinishedAt), st.Error)
	if err != nil {
		return domain.NewError(domain.ErrDB, "jobstatus.upsert", err)
	}
	return nil
}

// Day returns every status row for one market day, ordered by job name.
func (r *StatusRepository) Day(ctx context.Context, day string) ([]domain.JobStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_name, market_day, status, started_at, finished_at, COALESCE(error, '')
		FROM job_status WHERE market_day = ? ORDER BY job_name`, day)
	if err != nil {
		return nil, domain.NewError(domain.ErrDB, "jobstatus.day", err)
	}
	defer rows.Close()

	var out []domain.JobStatus
	for rows.Next() {
		var st domain.JobStatus
		var state string
		var startedAt, finished sql.NullString
		if err := rows.Scan(&st.JobName, &st.Date, &state, &startedAt, &finished, &st.Error); err != nil {
			return nil, domain.NewError(domain.ErrDB, "jobstatus.day", err)
		}
		st.State = domain.JobState(state)
		st.StartedAt = parseNullTime(startedAt)
		st.FinishedAt = parseNullTime(finished)
		out = append(out, st)
	}
	return out, rows.Err()
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.ParseInLocation(sqlTime, v.String, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(sqlTime)
}
