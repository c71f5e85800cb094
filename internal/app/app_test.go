package app

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/whisper/internal/config"
	"github.com/aristath/whisper/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.TradierAPIKey = "test-key"
	return cfg
}

func TestNew_WiresEverything(t *testing.T) {
	a, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Scanner)
	assert.NotNil(t, a.Dispatcher)
	assert.NotNil(t, a.JobStatus)
	assert.NotNil(t, a.Budget)
	assert.Len(t, a.Databases(), 3)
	// No replication credentials, no replicator.
	assert.Nil(t, a.Replicator)
}

func TestNew_WithoutSentimentKeyStillScans(t *testing.T) {
	cfg := testConfig(t)
	cfg.PerplexityAPIKey = ""

	a, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.Scanner)
}

func TestNew_ConfiguredWeightsReachTheScorer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scoring.VRP = 0.9 // sum is now 1.35

	_, err := New(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrConfiguration))
}

func TestNew_RequiresMarketProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.TradierAPIKey = ""

	_, err := New(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrConfiguration))
}
