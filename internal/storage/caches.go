// Package storage holds the persistent analysis caches. Rows carry their
// age; TTL policy lives with the consumer, not the store.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
)

const isoDate = "2006-01-02"
const sqliteTime = "2006-01-02 15:04:05"

// VRPCacheRepository persists VRPResult snapshots keyed by
// (ticker, expiration).
type VRPCacheRepository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewVRPCacheRepository creates a VRP cache repository.
func NewVRPCacheRepository(db *sql.DB, log zerolog.Logger) *VRPCacheRepository {
	return &VRPCacheRepository{
		db:  db,
		log: log.With().Str("repo", "vrp_cache").Logger(),
		now: time.Now,
	}
}

// Put upserts one snapshot, resetting its age.
func (r *VRPCacheRepository) Put(ctx context.Context, result domain.VRPResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return domain.NewError(domain.ErrInvalid, "vrp_cache.put", err).WithTicker(result.Ticker)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO vrp_cache (ticker, expiration, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ticker, expiration) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at`,
		strings.ToUpper(result.Ticker), result.Expiration.Format(isoDate),
		string(payload), r.now().UTC().Format(sqliteTime),
	)
	if err != nil {
		return domain.NewError(domain.ErrDB, "vrp_cache.put", err).WithTicker(result.Ticker)
	}
	return nil
}

// Get returns the cached snapshot and its age. Missing rows are NODATA.
func (r *VRPCacheRepository) Get(ctx context.Context, ticker string, expiration time.Time) (domain.VRPResult, time.Duration, error) {
	var payload, createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT payload, created_at FROM vrp_cache
		WHERE ticker = ? AND expiration = ?`,
		strings.ToUpper(ticker), expiration.Format(isoDate),
	).Scan(&payload, &createdAt)
	if err == sql.ErrNoRows {
		return domain.VRPResult{}, 0, domain.Errorf(domain.ErrNoData, "vrp_cache.get",
			"no cached vrp for %s %s", ticker, expiration.Format(isoDate)).WithTicker(ticker)
	}
	if err != nil {
		return domain.VRPResult{}, 0, domain.NewError(domain.ErrDB, "vrp_cache.get", err).WithTicker(ticker)
	}

	var result domain.VRPResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return domain.VRPResult{}, 0, domain.NewError(domain.ErrDB, "vrp_cache.get", err).WithTicker(ticker)
	}
	return result, r.ageOf(createdAt), nil
}

func (r *VRPCacheRepository) ageOf(createdAt string) time.Duration {
	created, err := time.ParseInLocation(sqliteTime, createdAt, time.UTC)
	if err != nil {
		// Unparseable timestamp reads as infinitely stale.
		return time.Duration(1<<62 - 1)
	}
	return r.now().UTC().Sub(created)
}

// SentimentCacheRepository persists sentiment reads keyed by
// (ticker, earnings date). Sentiment calls are paid, so every hit here
// is budget saved.
type SentimentCacheRepository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewSentimentCacheRepository creates a sentiment cache repository.
func NewSentimentCacheRepository(db *sql.DB, log zerolog.Logger) *SentimentCacheRepository {
	return &SentimentCacheRepository{
		db:  db,
		log: log.With().Str("repo", "sentiment_cache").Logger(),
		now: time.Now,
	}
}

// Put upserts one sentiment read.
func (r *SentimentCacheRepository) Put(ctx context.Context, ticker string, earningsDate time.Time, s domain.Sentiment) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return domain.NewError(domain.ErrInvalid, "sentiment_cache.put", err).WithTicker(ticker)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sentiment_cache (ticker, earnings_date, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ticker, earnings_date) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at`,
		strings.ToUpper(ticker), earningsDate.Format(isoDate),
		string(payload), r.now().UTC().Format(sqliteTime),
	)
	if err != nil {
		return domain.NewError(domain.ErrDB, "sentiment_cache.put", err).WithTicker(ticker)
	}
	return nil
}

// Get returns the cached sentiment and its age. Missing rows are NODATA.
func (r *SentimentCacheRepository) Get(ctx context.Context, ticker string, earningsDate time.Time) (domain.Sentiment, time.Duration, error) {
	var payload, createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT payload, created_at FROM sentiment_cache
		WHERE ticker = ? AND earnings_date = ?`,
		strings.ToUpper(ticker), earningsDate.Format(isoDate),
	).Scan(&payload, &createdAt)
	if err == sql.ErrNoRows {
		return domain.Sentiment{}, 0, domain.Errorf(domain.ErrNoData, "sentiment_cache.get",
			"no cached sentiment for %s %s", ticker, earningsDate.Format(isoDate)).WithTicker(ticker)
	}
	if err != nil {
		return domain.Sentiment{}, 0, domain.NewError(domain.ErrDB, "sentiment_cache.get", err).WithTicker(ticker)
	}

	var s domain.Sentiment
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return domain.Sentiment{}, 0, domain.NewError(domain.ErrDB, "sentiment_cache.get", err).WithTicker(ticker)
	}

	created, perr := time.ParseInLocation(sqliteTime, createdAt, time.UTC)
	age := time.Duration(1<<62 - 1)
	if perr == nil {
		age = r.now().UTC().Sub(created)
	}
	return s, age, nil
}
