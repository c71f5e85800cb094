// Package tradier is the primary market-data provider: underlying
// quotes, option expirations, and full option chains with greeks.
package tradier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
	"github.com/aristath/whisper/internal/providers"
	"github.com/aristath/whisper/internal/reliability"
)

const (
	productionBaseURL = "https://api.tradier.com/v1"
	sandboxBaseURL    = "https://sandbox.tradier.com/v1"

	// Anything larger than this is not a chain, it is a problem.
	maxResponseBytes = 10 << 20
)

// Config holds client settings.
type Config struct {
	APIKey  string
	Sandbox bool
	BaseURL string // override for tests
	Timeout time.Duration
	Retry   reliability.RetryConfig // zero fields fall back to defaults
}

// Client talks to the Tradier market-data REST API. All calls go
// through the shared guard and retry policy.
type Client struct {
	cfg     Config
	httpc   *http.Client
	guard   *reliability.ProviderGuard
	retry   reliability.RetryConfig
	baseURL string
	log     zerolog.Logger
}

// New creates a Tradier client.
func New(cfg Config, guard *reliability.ProviderGuard, log zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Sandbox {
			baseURL = sandboxBaseURL
		} else {
			baseURL = productionBaseURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
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
		log:     log.With().Str("provider", "tradier").Logger(),
	}
}

// Name implements the provider interfaces.
func (c *Client) Name() string { return "tradier" }

// Tradier returns a bare object instead of an array when a list has one
// element.
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`"null"`)) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[quoteItem] `json:"quote"`
	} `json:"quotes"`
}

type quoteItem struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	PrevClose float64 `json:"prevclose"`
	Volume    int64   `json:"volume"`
}

type expirationsResponse struct {
	Expirations struct {
		Date singleOrArray[string] `json:"date"`
	} `json:"expirations"`
}

type chainResponse struct {
	Options struct {
		Option singleOrArray[optionItem] `json:"option"`
	} `json:"options"`
}

type optionItem struct {
	Symbol       string        `json:"symbol"`
	OptionType   string        `json:"option_type"`
	Strike       float64       `json:"strike"`
	Bid          float64       `json:"bid"`
	Ask          float64       `json:"ask"`
	Volume       int           `json:"volume"`
	OpenInterest int           `json:"open_interest"`
	Greeks       *optionGreeks `json:"greeks,omitempty"`
}

type optionGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	MidIV float64 `json:"mid_iv"`
}

// Quote returns the underlying quote.
func (c *Client) Quote(ctx context.Context, ticker string) (providers.StockQuote, error) {
	var out quotesResponse
	params := url.Values{"symbols": {strings.ToUpper(ticker)}}
	if err := c.get(ctx, "/markets/quotes", params, &out); err != nil {
		return providers.StockQuote{}, err
	}
	if len(out.Quotes.Quote) == 0 {
		return providers.StockQuote{}, domain.Errorf(domain.ErrNoData, "tradier.quote",
			"no quote for %s", ticker).WithTicker(ticker)
	}
	q := out.Quotes.Quote[0]
	return providers.StockQuote{
		Ticker:    q.Symbol,
		Last:      q.Last,
		PrevClose: q.PrevClose,
		Volume:    q.Volume,
	}, nil
}

// Expirations returns the listed option expirations, ascending.
func (c *Client) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	var out expirationsResponse
	params := url.Values{
		"symbol":          {strings.ToUpper(ticker)},
		"includeAllRoots": {"true"},
	}
	if err := c.get(ctx, "/markets/options/expirations", params, &out); err != nil {
		return nil, err
	}
	if len(out.Expirations.Date) == 0 {
		return nil, domain.Errorf(domain.ErrNoData, "tradier.expirations",
			"no expirations for %s", ticker).WithTicker(ticker)
	}

	dates := make([]time.Time, 0, len(out.Expirations.Date))
	for _, d := range out.Expirations.Date {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			c.log.Warn().Str("ticker", ticker).Str("date", d).Msg("skipping unparseable expiration")
			continue
		}
		dates = append(dates, parsed)
	}
	return dates, nil
}

// OptionChain returns the full chain for one expiration, indexed by
// strike. Quotes with a malformed side marker are skipped, not fatal.
func (c *Client) OptionChain(ctx context.Context, ticker string, expiration time.Time) (*domain.OptionChain, error) {
	quote, err := c.Quote(ctx, ticker)
	if err != nil {
		return nil, err
	}

	var out chainResponse
	params := url.Values{
		"symbol":     {strings.ToUpper(ticker)},
		"expiration": {expiration.Format("2006-01-02")},
		"greeks":     {"true"},
	}
	if err := c.get(ctx, "/markets/options/chains", params, &out); err != nil {
		return nil, err
	}
	if len(out.Options.Option) == 0 {
		return nil, domain.Errorf(domain.ErrNoData, "tradier.chain",
			"empty chain for %s %s", ticker, expiration.Format("2006-01-02")).WithTicker(ticker)
	}

	chain := &domain.OptionChain{
		Ticker:     strings.ToUpper(ticker),
		Expiration: expiration,
		StockPrice: quote.Last,
		Calls:      make(map[string]domain.OptionQuote),
		Puts:       make(map[string]domain.OptionQuote),
	}
	for _, opt := range out.Options.Option {
		q := domain.OptionQuote{
			Strike:       domain.NewStrike(opt.Strike),
			Bid:          opt.Bid,
			Ask:          opt.Ask,
			Volume:       opt.Volume,
			OpenInterest: opt.OpenInterest,
		}
		if opt.Greeks != nil {
			q.Greeks = &domain.Greeks{
				Delta: opt.Greeks.Delta,
				Gamma: opt.Greeks.Gamma,
				Theta: opt.Greeks.Theta,
				Vega:  opt.Greeks.Vega,
			}
			if opt.Greeks.MidIV > 0 {
				iv := opt.Greeks.MidIV
				q.ImpliedVolatility = &iv
			}
		}
		switch opt.OptionType {
		case "call":
			q.Type = domain.Call
			chain.Calls[q.Strike.Key()] = q
		case "put":
			q.Type = domain.Put
			chain.Puts[q.Strike.Key()] = q
		default:
			c.log.Debug().Str("symbol", opt.Symbol).
				Str("option_type", opt.OptionType).Msg("skipping quote with unknown side")
		}
	}
	return chain, nil
}

// get runs one guarded, retried GET and decodes the JSON body.
func (c *Client) get(ctx context.Context, path string, params url.Values, response any) error {
	op := "tradier" + strings.ReplaceAll(path, "/", ".")
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
		return domain.NewError(domain.ErrInvalid, "tradier.request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NewError(domain.ErrTimeout, "tradier.request", err)
		}
		return domain.NewError(domain.ErrExternal, "tradier.request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return domain.NewError(domain.ErrExternal, "tradier.read", err)
	}
	if len(body) > maxResponseBytes {
		return domain.Errorf(domain.ErrInvalid, "tradier.read",
			"response exceeds %d bytes", maxResponseBytes)
	}

	if resp.StatusCode != http.StatusOK {
		kind := reliability.KindFromStatus(resp.StatusCode)
		return domain.Errorf(kind, "tradier.request", "status %d: %s",
			resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, response); err != nil {
		return domain.NewError(domain.ErrExternal, "tradier.decode",
			fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
