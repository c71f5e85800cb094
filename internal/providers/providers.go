// Package providers defines the capability surface the pipeline needs
// from external market-data vendors, and a registry to select between
// interchangeable implementations by configuration.
package providers

import (
	"context"
	"sort"
	"time"

	"github.com/aristath/whisper/internal/domain"
)

// StockQuote is the underlying quote slice the pipeline consumes.
type StockQuote struct {
	Ticker    string  `json:"ticker"`
	Last      float64 `json:"last"`
	PrevClose float64 `json:"prev_close"`
	Volume    int64   `json:"volume"`
}

// MarketDataProvider serves quotes and option chains.
type MarketDataProvider interface {
	Name() string
	Quote(ctx context.Context, ticker string) (StockQuote, error)
	Expirations(ctx context.Context, ticker string) ([]time.Time, error)
	OptionChain(ctx context.Context, ticker string, expiration time.Time) (*domain.OptionChain, error)
}

// CalendarProvider serves the earnings calendar and realized moves.
type CalendarProvider interface {
	Name() string
	EarningsCalendar(ctx context.Context, start, end time.Time) ([]domain.EarningsEvent, error)
	HistoricalMoves(ctx context.Context, ticker string, quarters int) ([]domain.HistoricalMove, error)
}

// SentimentProvider serves the paid pre-earnings sentiment read.
type SentimentProvider interface {
	Name() string
	Sentiment(ctx context.Context, ticker string, earningsDate time.Time) (domain.Sentiment, error)
}

// Registry holds the configured provider implementations.
type Registry struct {
	market    map[string]MarketDataProvider
	calendar  map[string]CalendarProvider
	sentiment map[string]SentimentProvider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		market:    make(map[string]MarketDataProvider),
		calendar:  make(map[string]CalendarProvider),
		sentiment: make(map[string]SentimentProvider),
	}
}

// RegisterMarketData adds a market-data implementation.
func (r *Registry) RegisterMarketData(p MarketDataProvider) { r.market[p.Name()] = p }

// RegisterCalendar adds a calendar implementation.
func (r *Registry) RegisterCalendar(p CalendarProvider) { r.calendar[p.Name()] = p }

// RegisterSentiment adds a sentiment implementation.
func (r *Registry) RegisterSentiment(p SentimentProvider) { r.sentiment[p.Name()] = p }

// MarketData resolves the configured market-data provider.
func (r *Registry) MarketData(name string) (MarketDataProvider, error) {
	p, ok := r.market[name]
	if !ok {
		return nil, domain.Errorf(domain.ErrConfiguration, "providers.market",
			"no market data provider %q (registered: %v)", name, keysOf(r.market))
	}
	return p, nil
}

// Calendar resolves the configured calendar provider.
func (r *Registry) Calendar(name string) (CalendarProvider, error) {
	p, ok := r.calendar[name]
	if !ok {
		return nil, domain.Errorf(domain.ErrConfiguration, "providers.calendar",
			"no calendar provider %q (registered: %v)", name, keysOf(r.calendar))
	}
	return p, nil
}

// Sentiment resolves the configured sentiment provider.
func (r *Registry) Sentiment(name string) (SentimentProvider, error) {
	p, ok := r.sentiment[name]
	if !ok {
		return nil, domain.Errorf(domain.ErrConfiguration, "providers.sentiment",
			"no sentiment provider %q (registered: %v)", name, keysOf(r.sentiment))
	}
	return p, nil
}

func keysOf[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
