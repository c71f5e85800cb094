// Package yahoo is the free fallback provider for the earnings calendar
// and realized post-earnings moves. It is slower and less precise than
// the paid feeds, so it backs them up rather than replacing them.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
	"github.com/aristath/whisper/internal/reliability"
)

const (
	defaultBaseURL   = "https://query2.finance.yahoo.com"
	maxResponseBytes = 10 << 20
	candleLookback   = 3 * 365 * 24 * time.Hour
)

// Config holds client settings.
type Config struct {
	BaseURL  string   // override for tests
	Universe []string // tickers covered by EarningsCalendar
	Timeout  time.Duration
	Retry    reliability.RetryConfig // zero fields fall back to defaults
}

// Client reads the public Yahoo Finance endpoints.
type Client struct {
	cfg     Config
	httpc   *http.Client
	guard   *reliability.ProviderGuard
	retry   reliability.RetryConfig
	baseURL string
	log     zerolog.Logger
	now     func() time.Time
}

// New creates a Yahoo client.
func New(cfg Config, guard *reliability.ProviderGuard, log zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = reliability.DefaultRetryConfig().MaxRetries
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = reliability.DefaultRetryConfig().BaseDelay
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: timeout},
		guard:   guard,
		retry:   retry,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With().Str("provider", "yahoo").Logger(),
		now:     time.Now,
	}
}

// Name implements the provider interfaces.
func (c *Client) Name() string { return "yahoo" }

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			CalendarEvents *struct {
				Earnings struct {
					EarningsDate []epochValue `json:"earningsDate"`
				} `json:"earnings"`
			} `json:"calendarEvents"`
			EarningsHistory *struct {
				History []struct {
					Quarter epochValue `json:"quarter"`
				} `json:"history"`
			} `json:"earningsHistory"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

type epochValue struct {
	Raw int64 `json:"raw"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open  []float64 `json:"open"`
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// EarningsCalendar walks the configured universe and collects upcoming
// announcement dates inside [start, end]. Timing is unknown here; the
// primary feed refines it later.
func (c *Client) EarningsCalendar(ctx context.Context, start, end time.Time) ([]domain.EarningsEvent, error) {
	if len(c.cfg.Universe) == 0 {
		return nil, domain.Errorf(domain.ErrConfiguration, "yahoo.calendar", "empty scan universe")
	}

	var events []domain.EarningsEvent
	for _, ticker := range c.cfg.Universe {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dates, err := c.upcomingEarnings(ctx, ticker)
		if err != nil {
			if domain.IsKind(err, domain.ErrNoData) {
				continue
			}
			return nil, err
		}
		for _, d := range dates {
			if d.Before(start) || d.After(end) {
				continue
			}
			events = append(events, domain.EarningsEvent{
				Ticker: strings.ToUpper(ticker),
				Date:   d,
				Timing: domain.TimingUnknown,
			})
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].Ticker < events[j].Ticker
	})
	return events, nil
}

func (c *Client) upcomingEarnings(ctx context.Context, ticker string) ([]time.Time, error) {
	var out quoteSummaryResponse
	path := "/v10/finance/quoteSummary/" + url.PathEscape(strings.ToUpper(ticker))
	params := url.Values{"modules": {"calendarEvents"}}
	if err := c.get(ctx, path, params, &out); err != nil {
		return nil, err
	}
	if len(out.QuoteSummary.Result) == 0 || out.QuoteSummary.Result[0].CalendarEvents == nil {
		return nil, domain.Errorf(domain.ErrNoData, "yahoo.calendar",
			"no calendar events for %s", ticker).WithTicker(ticker)
	}

	var dates []time.Time
	for _, e := range out.QuoteSummary.Result[0].CalendarEvents.Earnings.EarningsDate {
		if e.Raw > 0 {
			dates = append(dates, time.Unix(e.Raw, 0).UTC().Truncate(24*time.Hour))
		}
	}
	return dates, nil
}

// HistoricalMoves reconstructs realized earnings moves from past
// announcement quarters and daily candles. Percentages are absolute
// magnitudes.
func (c *Client) HistoricalMoves(ctx context.Context, ticker string, quarters int) ([]domain.HistoricalMove, error) {
	if quarters <= 0 {
		quarters = 12
	}

	earningsDates, err := c.pastEarnings(ctx, ticker)
	if err != nil {
		return nil, err
	}
	candles, err := c.dailyCandles(ctx, ticker)
	if err != nil {
		return nil, err
	}

	// Newest first, cap at the requested quarter count.
	sort.Slice(earningsDates, func(i, j int) bool { return earningsDates[i].After(earningsDates[j]) })
	if len(earningsDates) > quarters {
		earningsDates = earningsDates[:quarters]
	}

	var moves []domain.HistoricalMove
	for _, date := range earningsDates {
		move, ok := moveAround(ticker, date, candles)
		if !ok {
			c.log.Debug().Str("ticker", ticker).
				Str("earnings_date", date.Format("2006-01-02")).
				Msg("no candles around earnings date, skipping quarter")
			continue
		}
		moves = append(moves, move)
	}
	if len(moves) == 0 {
		return nil, domain.Errorf(domain.ErrNoData, "yahoo.moves",
			"no reconstructable moves for %s", ticker).WithTicker(ticker)
	}
	return moves, nil
}

func (c *Client) pastEarnings(ctx context.Context, ticker string) ([]time.Time, error) {
	var out quoteSummaryResponse
	path := "/v10/finance/quoteSummary/" + url.PathEscape(strings.ToUpper(ticker))
	params := url.Values{"modules": {"earningsHistory"}}
	if err := c.get(ctx, path, params, &out); err != nil {
		return nil, err
	}
	if len(out.QuoteSummary.Result) == 0 || out.QuoteSummary.Result[0].EarningsHistory == nil {
		return nil, domain.Errorf(domain.ErrNoData, "yahoo.moves",
			"no earnings history for %s", ticker).WithTicker(ticker)
	}

	var dates []time.Time
	for _, h := range out.QuoteSummary.Result[0].EarningsHistory.History {
		if h.Quarter.Raw > 0 {
			dates = append(dates, time.Unix(h.Quarter.Raw, 0).UTC().Truncate(24*time.Hour))
		}
	}
	return dates, nil
}

// candle is one daily bar.
type candle struct {
	day   string
	open  float64
	close float64
}

func (c *Client) dailyCandles(ctx context.Context, ticker string) ([]candle, error) {
	var out chartResponse
	end := c.now()
	path := "/v8/finance/chart/" + url.PathEscape(strings.ToUpper(ticker))
	params := url.Values{
		"period1":  {fmt.Sprintf("%d", end.Add(-candleLookback).Unix())},
		"period2":  {fmt.Sprintf("%d", end.Unix())},
		"interval": {"1d"},
	}
	if err := c.get(ctx, path, params, &out); err != nil {
		return nil, err
	}
	if len(out.Chart.Result) == 0 || len(out.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, domain.Errorf(domain.ErrNoData, "yahoo.candles",
			"no candles for %s", ticker).WithTicker(ticker)
	}

	result := out.Chart.Result[0]
	bars := result.Indicators.Quote[0]
	candles := make([]candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(bars.Close) || i >= len(bars.Open) {
			break
		}
		if bars.Close[i] <= 0 {
			continue
		}
		candles = append(candles, candle{
			day:   time.Unix(ts, 0).UTC().Format("2006-01-02"),
			open:  bars.Open[i],
			close: bars.Close[i],
		})
	}
	return candles, nil
}

// moveAround finds the session on or after the announcement date and
// the session before it, then derives the close, gap, and intraday
// magnitudes.
func moveAround(ticker string, earningsDate time.Time, candles []candle) (domain.HistoricalMove, bool) {
	day := earningsDate.Format("2006-01-02")

	idx := -1
	for i, c := range candles {
		if c.day >= day {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return domain.HistoricalMove{}, false
	}

	prev := candles[idx-1]
	reaction := candles[idx]
	if prev.close <= 0 || reaction.open <= 0 {
		return domain.HistoricalMove{}, false
	}

	return domain.HistoricalMove{
		Ticker:          strings.ToUpper(ticker),
		EarningsDate:    earningsDate,
		PrevClose:       prev.close,
		EarningsClose:   reaction.close,
		CloseMovePct:    math.Abs(reaction.close-prev.close) / prev.close * 100,
		GapMovePct:      math.Abs(reaction.open-prev.close) / prev.close * 100,
		IntradayMovePct: math.Abs(reaction.close-reaction.open) / reaction.open * 100,
	}, true
}

func (c *Client) get(ctx context.Context, path string, params url.Values, response any) error {
	op := "yahoo" + strings.ReplaceAll(path[:min(len(path), 30)], "/", ".")
	return reliability.Retry(ctx, c.retry, c.log, op, func(ctx context.Context) error {
		return c.guard.Do(ctx, func() error {
			return c.doGet(ctx, path, params, response)
		})
	})
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values, response any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return domain.NewError(domain.ErrInvalid, "yahoo.request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; whisper/1.0)")

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NewError(domain.ErrTimeout, "yahoo.request", err)
		}
		return domain.NewError(domain.ErrExternal, "yahoo.request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return domain.NewError(domain.ErrExternal, "yahoo.read", err)
	}
	if len(body) > maxResponseBytes {
		return domain.Errorf(domain.ErrInvalid, "yahoo.read",
			"response exceeds %d bytes", maxResponseBytes)
	}

	if resp.StatusCode != http.StatusOK {
		kind := reliability.KindFromStatus(resp.StatusCode)
		return domain.Errorf(kind, "yahoo.request", "status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, response); err != nil {
		return domain.NewError(domain.ErrExternal, "yahoo.decode", err)
	}
	return nil
}
