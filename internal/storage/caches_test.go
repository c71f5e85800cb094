package storage

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

func testCacheDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestVRPCache_RoundTripReportsAge(t *testing.T) {
	db := testCacheDB(t)
	repo := NewVRPCacheRepository(db.Conn(), zerolog.Nop())

	t0 := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return t0 }

	expiration := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	result := domain.VRPResult{
		Ticker:            "ACME",
		Expiration:        expiration,
		ImpliedMovePct:    6.0,
		HistoricalMeanPct: 1.5,
		VRPRatio:          4.0,
		Recommendation:    domain.RecommendGood,
		QuartersOfData:    8,
	}
	require.NoError(t, repo.Put(context.Background(), result))

	repo.now = func() time.Time { return t0.Add(10 * time.Minute) }
	got, age, err := repo.Get(context.Background(), "acme", expiration)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, age)
	assert.Equal(t, result.VRPRatio, got.VRPRatio)
	assert.Equal(t, result.Recommendation, got.Recommendation)
	assert.Equal(t, result.QuartersOfData, got.QuartersOfData)
}

func TestVRPCache_UpsertResetsAge(t *testing.T) {
	db := testCacheDB(t)
	repo := NewVRPCacheRepository(db.Conn(), zerolog.Nop())

	t0 := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	expiration := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	result := domain.VRPResult{Ticker: "ACME", Expiration: expiration, VRPRatio: 4.0}

	repo.now = func() time.Time { return t0 }
	require.NoError(t, repo.Put(context.Background(), result))

	result.VRPRatio = 5.5
	repo.now = func() time.Time { return t0.Add(time.Hour) }
	require.NoError(t, repo.Put(context.Background(), result))

	got, age, err := repo.Get(context.Background(), "ACME", expiration)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), age)
	assert.Equal(t, 5.5, got.VRPRatio)
}

func TestVRPCache_MissIsNoData(t *testing.T) {
	db := testCacheDB(t)
	repo := NewVRPCacheRepository(db.Conn(), zerolog.Nop())

	_, _, err := repo.Get(context.Background(), "NONE", time.Now())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrNoData))
}

func TestSentimentCache_RoundTrip(t *testing.T) {
	db := testCacheDB(t)
	repo := NewSentimentCacheRepository(db.Conn(), zerolog.Nop())

	t0 := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return t0 }

	earnings := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	sentiment := domain.Sentiment{
		Direction: domain.SentimentBullish,
		Score:     0.6,
		Catalysts: []string{"guidance raise"},
		Risks:     []string{"fx headwind"},
	}
	require.NoError(t, repo.Put(context.Background(), "acme", earnings, sentiment))

	repo.now = func() time.Time { return t0.Add(3 * time.Hour) }
	got, age, err := repo.Get(context.Background(), "ACME", earnings)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, age)
	assert.Equal(t, sentiment, got)
}

func TestSentimentCache_MissIsNoData(t *testing.T) {
	db := testCacheDB(t)
	repo := NewSentimentCacheRepository(db.Conn(), zerolog.Nop())

	_, _, err := repo.Get(context.Background(), "NONE", time.Now())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrNoData))
}
