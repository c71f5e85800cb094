package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/whisper/internal/budget"
	"github.com/aristath/whisper/internal/domain"
	"github.com/aristath/whisper/internal/reliability"
)

type fakeGate struct {
	checkStatus budget.Status
	checkErr    error
	recorded    []budget.Usage
}

func (g *fakeGate) Check(_ context.Context, _ string, _ domain.Money) (budget.Status, error) {
	return g.checkStatus, g.checkErr
}

func (g *fakeGate) Record(_ context.Context, _, _ string, u budget.Usage) (domain.Money, error) {
	g.recorded = append(g.recorded, u)
	return domain.NewMoney(0.01), nil
}

func newTestClient(t *testing.T, gate *fakeGate, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	guard := reliability.NewProviderGuard(reliability.GuardConfig{
		Name: "llm", RateCapacity: 10, RefillPerSecond: 100,
		FailureThreshold: 5, RecoveryTimeout: time.Second,
	}, zerolog.Nop())

	return New(Config{APIKey: "k", BaseURL: srv.URL}, guard, gate, zerolog.Nop())
}

func earningsDate(t *testing.T) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", "2026-09-03")
	require.NoError(t, err)
	return d
}

func TestSentiment_ParsesVerdictAndRecordsUsage(t *testing.T) {
	gate := &fakeGate{checkStatus: budget.StatusOK}
	c := newTestClient(t, gate, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Write([]byte(`{
			"choices":[{"message":{"content":"` + "```json\\n" +
			`{\"direction\":\"bullish\",\"score\":0.6,\"catalysts\":[\"guidance raise\"],\"risks\":[\"china exposure\"]}` +
			"\\n```" + `"}}],
			"usage":{"completion_tokens":420,"reasoning_tokens":0,"num_search_queries":3}
		}`))
	}))

	s, err := c.Sentiment(context.Background(), "acme", earningsDate(t))
	require.NoError(t, err)
	assert.Equal(t, domain.SentimentBullish, s.Direction)
	assert.InDelta(t, 0.6, s.Score, 1e-9)
	assert.Equal(t, []string{"guidance raise"}, s.Catalysts)

	require.Len(t, gate.recorded, 1)
	assert.Equal(t, 420, gate.recorded[0].OutputTokens)
	assert.Equal(t, 3, gate.recorded[0].SearchRequests)
}

func TestSentiment_ExhaustedBudgetNeverCallsNetwork(t *testing.T) {
	gate := &fakeGate{checkStatus: budget.StatusExhausted, checkErr: budget.ErrExhausted}
	called := false
	c := newTestClient(t, gate, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := c.Sentiment(context.Background(), "ACME", earningsDate(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, budget.ErrExhausted)
	assert.False(t, called, "exhausted budget must short-circuit before the request")
	assert.Empty(t, gate.recorded)
}

func TestSentiment_UnknownDirectionFallsBackToNeutral(t *testing.T) {
	gate := &fakeGate{checkStatus: budget.StatusOK}
	c := newTestClient(t, gate, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices":[{"message":{"content":"{\"direction\":\"sideways\",\"score\":0.1}"}}],
			"usage":{"completion_tokens":10}
		}`))
	}))

	s, err := c.Sentiment(context.Background(), "ACME", earningsDate(t))
	require.NoError(t, err)
	assert.Equal(t, domain.SentimentNeutral, s.Direction)
}

func TestSentiment_UnparseableVerdict(t *testing.T) {
	gate := &fakeGate{checkStatus: budget.StatusOK}
	c := newTestClient(t, gate, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices":[{"message":{"content":"I think it looks pretty good overall."}}],
			"usage":{"completion_tokens":12}
		}`))
	}))

	_, err := c.Sentiment(context.Background(), "ACME", earningsDate(t))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrExternal))
	assert.Len(t, gate.recorded, 1, "usage is metered even when the verdict is garbage")
}
