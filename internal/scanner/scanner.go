// Package scanner orchestrates the per-ticker analysis pipeline across
// an earnings window: chain fetch, implied move, VRP, skew, liquidity,
// tail risk, scoring, anomaly checks, and strategy generation.
package scanner

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/aristath/whisper/internal/cache"
	"github.com/aristath/whisper/internal/domain"
	"github.com/aristath/whisper/internal/modules/anomaly"
	"github.com/aristath/whisper/internal/modules/earnings"
	"github.com/aristath/whisper/internal/modules/impliedmove"
	"github.com/aristath/whisper/internal/modules/liquidity"
	"github.com/aristath/whisper/internal/modules/scoring"
	"github.com/aristath/whisper/internal/modules/skew"
	"github.com/aristath/whisper/internal/modules/strategies"
	"github.com/aristath/whisper/internal/modules/tailrisk"
	"github.com/aristath/whisper/internal/modules/vrp"
	"github.com/aristath/whisper/internal/providers"
	"github.com/aristath/whisper/internal/storage"
)

const isoDate = "2006-01-02"

// Config tunes the scan orchestration.
type Config struct {
	Concurrency  int64             // parallel ticker pipelines
	PositionSize int               // intended contracts, drives liquidity grading
	Quarters     int               // historical quarters fed to VRP and tail risk
	Metric       domain.MoveMetric // historical move metric for tail risk
	ChainTTL     time.Duration     // option chain cache lifetime
	SentimentTTL time.Duration     // cached sentiment max age before a refetch
}

// DefaultConfig returns the standard scan settings.
func DefaultConfig() Config {
	return Config{
		Concurrency:  10,
		PositionSize: 100,
		Quarters:     12,
		Metric:       domain.MetricClose,
		ChainTTL:     15 * time.Minute,
		SentimentTTL: 24 * time.Hour,
	}
}

// Deps are the collaborators one scanner drives. Sentiment is optional;
// everything else is required.
type Deps struct {
	Market   providers.MarketDataProvider
	Calendar providers.CalendarProvider

	CalendarRepo *earnings.CalendarRepository
	MovesRepo    *earnings.MovesRepository

	Implied   *impliedmove.Calculator
	VRP       *vrp.Calculator
	Skew      *skew.Analyzer
	Liquidity *liquidity.Classifier
	TailRisk  *tailrisk.Limiter
	Scorer    *scoring.Scorer
	Anomaly   *anomaly.Detector
	Generator *strategies.Generator

	// Optional paid sentiment path with its persistent cache.
	Sentiment      providers.SentimentProvider
	SentimentCache *storage.SentimentCacheRepository

	// Optional VRP result persistence.
	VRPCache *storage.VRPCacheRepository
}

// Scanner runs the pipeline over a calendar window with bounded
// concurrency. One failing ticker never aborts the scan.
type Scanner struct {
	cfg    Config
	deps   Deps
	chains *cache.Cache[*domain.OptionChain]
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a scanner.
func New(cfg Config, deps Deps, log zerolog.Logger) (*Scanner, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.PositionSize <= 0 {
		cfg.PositionSize = DefaultConfig().PositionSize
	}
	if cfg.Quarters <= 0 {
		cfg.Quarters = DefaultConfig().Quarters
	}
	if cfg.Metric == "" {
		cfg.Metric = domain.MetricClose
	}
	if cfg.ChainTTL <= 0 {
		cfg.ChainTTL = DefaultConfig().ChainTTL
	}
	if cfg.SentimentTTL <= 0 {
		cfg.SentimentTTL = DefaultConfig().SentimentTTL
	}

	switch {
	case deps.Market == nil:
		return nil, domain.Errorf(domain.ErrConfiguration, "scanner", "market data provider is required")
	case deps.Calendar == nil:
		return nil, domain.Errorf(domain.ErrConfiguration, "scanner", "calendar provider is required")
	case deps.CalendarRepo == nil || deps.MovesRepo == nil:
		return nil, domain.Errorf(domain.ErrConfiguration, "scanner", "earnings repositories are required")
	case deps.Implied == nil || deps.VRP == nil || deps.Skew == nil ||
		deps.Liquidity == nil || deps.TailRisk == nil || deps.Scorer == nil ||
		deps.Anomaly == nil || deps.Generator == nil:
		return nil, domain.Errorf(domain.ErrConfiguration, "scanner", "all signal modules are required")
	}

	return &Scanner{
		cfg:  cfg,
		deps: deps,
		chains: cache.New(cfg.ChainTTL, 256, func(c *domain.OptionChain) *domain.OptionChain {
			// Chains are read-only after the fetch.
			return c
		}),
		log: log.With().Str("module", "scanner").Logger(),
		now: time.Now,
	}, nil
}

// Result is one scan's outcome. Opportunities are sorted by final score
// descending, then ticker; Failures map ticker to its pipeline error.
type Result struct {
	RunID         string               `json:"run_id"`
	Start         time.Time            `json:"start"`
	End           time.Time            `json:"end"`
	Scanned       int                  `json:"scanned"`
	Opportunities []domain.Opportunity `json:"opportunities"`
	Failures      map[string]string    `json:"failures,omitempty"`
}

// Scan refreshes the calendar for [start, end] and analyzes every event
// in the window.
func (s *Scanner) Scan(ctx context.Context, start, end time.Time) (*Result, error) {
	runID := uuid.NewString()
	events, err := s.refreshCalendar(ctx, start, end)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("run_id", runID).
		Str("start", start.Format(isoDate)).
		Str("end", end.Format(isoDate)).
		Int("events", len(events)).
		Msg("scan window resolved")

	sem := semaphore.NewWeighted(s.cfg.Concurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		opps     []domain.Opportunity
		failures = make(map[string]string)
	)

	for _, event := range events {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(ev domain.EarningsEvent) {
			defer wg.Done()
			defer sem.Release(1)

			opp, err := s.analyzeEvent(ctx, ev)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[ev.Ticker] = err.Error()
				return
			}
			opps = append(opps, *opp)
		}(event)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(opps, func(i, j int) bool {
		if opps[i].CompositeScore != opps[j].CompositeScore {
			return opps[i].CompositeScore > opps[j].CompositeScore
		}
		return opps[i].Ticker < opps[j].Ticker
	})

	s.log.Info().
		Str("run_id", runID).
		Int("scanned", len(events)).
		Int("opportunities", len(opps)).
		Int("failures", len(failures)).
		Msg("scan complete")

	return &Result{
		RunID:         runID,
		Start:         start,
		End:           end,
		Scanned:       len(events),
		Opportunities: opps,
		Failures:      failures,
	}, nil
}

// Analyze runs the pipeline for one ticker. A zero earningsDate resolves
// to the next announcement on or after today.
func (s *Scanner) Analyze(ctx context.Context, ticker string, earningsDate time.Time) (*domain.Opportunity, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, domain.Errorf(domain.ErrInvalid, "scanner.analyze", "ticker is required")
	}

	event := domain.EarningsEvent{Ticker: ticker, Date: earningsDate, Timing: domain.TimingUnknown}
	if earningsDate.IsZero() {
		found, err := s.deps.CalendarRepo.NextFor(ctx, ticker, s.now())
		if err != nil {
			return nil, err
		}
		event = found
	}
	return s.analyzeEvent(ctx, event)
}

// Prime warms the persistent sentiment cache for every announcement in
// the window without running the full pipeline. Returns the number of
// tickers with a sentiment read afterwards.
func (s *Scanner) Prime(ctx context.Context, start, end time.Time) (int, error) {
	if s.deps.Sentiment == nil {
		return 0, domain.Errorf(domain.ErrConfiguration, "scanner.prime",
			"no sentiment provider configured")
	}

	events, err := s.refreshCalendar(ctx, start, end)
	if err != nil {
		return 0, err
	}

	primed := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return primed, err
		}
		if s.sentimentFor(ctx, event) != nil {
			primed++
		}
	}
	s.log.Info().Int("events", len(events)).Int("primed", primed).Msg("sentiment primed")
	return primed, nil
}

// refreshCalendar pulls the window from the provider and persists it,
// falling back to the stored calendar when the provider is down.
func (s *Scanner) refreshCalendar(ctx context.Context, start, end time.Time) ([]domain.EarningsEvent, error) {
	events, err := s.deps.Calendar.EarningsCalendar(ctx, start, end)
	if err != nil {
		s.log.Warn().Err(err).Msg("calendar provider failed, serving stored calendar")
		return s.deps.CalendarRepo.Between(ctx, start, end)
	}
	for _, event := range events {
		if err := s.deps.CalendarRepo.Upsert(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("ticker", event.Ticker).Msg("calendar upsert failed")
		}
	}
	return events, nil
}

// analyzeEvent is the per-ticker pipeline. Hard signals (chain, implied
// move, VRP, liquidity, tail risk) fail the ticker; skew and sentiment
// degrade to nil.
func (s *Scanner) analyzeEvent(ctx context.Context, event domain.EarningsEvent) (*domain.Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chain, chainAge, err := s.chainFor(ctx, event)
	if err != nil {
		return nil, err
	}

	implied, err := s.deps.Implied.Calculate(chain)
	if err != nil {
		return nil, err
	}

	history, err := s.historyFor(ctx, event.Ticker)
	if err != nil {
		return nil, err
	}

	vrpResult, err := s.deps.VRP.Calculate(implied, history)
	if err != nil {
		return nil, err
	}
	if s.deps.VRPCache != nil {
		if err := s.deps.VRPCache.Put(ctx, *vrpResult); err != nil {
			s.log.Warn().Err(err).Str("ticker", event.Ticker).Msg("vrp cache write failed")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	skewResult, err := s.deps.Skew.Analyze(chain)
	if err != nil {
		s.log.Debug().Err(err).Str("ticker", event.Ticker).Msg("skew unavailable")
		skewResult = nil
	}

	oi, spreadPct := atmLiquidity(chain, implied.ATMStrike)
	assessment, err := s.deps.Liquidity.Classify(event.Ticker, oi, spreadPct, s.cfg.PositionSize)
	if err != nil {
		return nil, err
	}

	limits, err := s.deps.TailRisk.Limits(event.Ticker, history, s.cfg.Metric)
	if err != nil {
		return nil, err
	}

	sentiment := s.sentimentFor(ctx, event)

	components := s.deps.Scorer.Score(vrpResult, skewResult, assessment.Overall, sentiment)

	anomalies, action := s.deps.Anomaly.Detect(anomaly.Input{
		Ticker:        event.Ticker,
		EarningsDate:  event.Date,
		ChainCacheAge: chainAge,
		VRP:           vrpResult,
		LiquidityTier: assessment.Overall,
	})

	var strats []domain.Strategy
	if action != domain.ActionDoNotTrade {
		strats, err = s.deps.Generator.Generate(strategies.Input{
			Chain:   chain,
			Implied: implied,
			VRP:     vrpResult,
			Skew:    skewResult,
			Limits:  limits,
		})
		if err != nil {
			return nil, err
		}
	}

	return &domain.Opportunity{
		Ticker:         event.Ticker,
		EarningsDate:   event.Date,
		Timing:         event.Timing,
		Expiration:     chain.Expiration,
		ImpliedMove:    *implied,
		VRP:            *vrpResult,
		Skew:           skewResult,
		LiquidityTier:  assessment.Overall,
		Limits:         limits,
		CompositeScore: components.Final,
		Sentiment:      sentiment,
		Anomalies:      anomalies,
		Strategies:     strats,
		FinalAction:    action,
	}, nil
}

// chainFor picks the first expiration on or after the announcement and
// serves the chain from cache when fresh. The reported age feeds the
// stale-data anomaly check.
func (s *Scanner) chainFor(ctx context.Context, event domain.EarningsEvent) (*domain.OptionChain, time.Duration, error) {
	expirations, err := s.deps.Market.Expirations(ctx, event.Ticker)
	if err != nil {
		return nil, 0, err
	}

	var expiration time.Time
	earningsDay := event.Date.Truncate(24 * time.Hour)
	for _, exp := range expirations {
		if !exp.Before(earningsDay) {
			expiration = exp
			break
		}
	}
	if expiration.IsZero() {
		return nil, 0, domain.Errorf(domain.ErrNoData, "scanner.chain",
			"%s has no expiration on or after %s", event.Ticker, earningsDay.Format(isoDate)).
			WithTicker(event.Ticker)
	}

	key := event.Ticker + "|" + expiration.Format(isoDate)
	if chain, ok := s.chains.Get(key); ok {
		age, _ := s.chains.Age(key)
		return chain, age, nil
	}

	chain, err := s.deps.Market.OptionChain(ctx, event.Ticker, expiration)
	if err != nil {
		return nil, 0, err
	}
	s.chains.Set(key, chain)
	return chain, 0, nil
}

// historyFor reads stored moves and backfills from the provider when
// the store is empty. Backfilled rows are persisted append-only.
func (s *Scanner) historyFor(ctx context.Context, ticker string) ([]domain.HistoricalMove, error) {
	history, err := s.deps.MovesRepo.Recent(ctx, ticker, s.cfg.Quarters)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		return history, nil
	}

	fetched, err := s.deps.Calendar.HistoricalMoves(ctx, ticker, s.cfg.Quarters)
	if err != nil {
		return nil, err
	}
	for _, move := range fetched {
		if err := s.deps.MovesRepo.Record(ctx, move); err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("move backfill write failed")
		}
	}
	return fetched, nil
}

// sentimentFor serves the persistent cache first and only then spends
// budget on the provider. Sentiment is best-effort: every failure here
// degrades to a nil read, never a failed ticker.
func (s *Scanner) sentimentFor(ctx context.Context, event domain.EarningsEvent) *domain.Sentiment {
	if s.deps.Sentiment == nil {
		return nil
	}

	if s.deps.SentimentCache != nil {
		cached, age, err := s.deps.SentimentCache.Get(ctx, event.Ticker, event.Date)
		if err == nil && age <= s.cfg.SentimentTTL {
			return &cached
		}
	}

	fresh, err := s.deps.Sentiment.Sentiment(ctx, event.Ticker, event.Date)
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", event.Ticker).Msg("sentiment unavailable")
		return nil
	}
	if s.deps.SentimentCache != nil {
		if err := s.deps.SentimentCache.Put(ctx, event.Ticker, event.Date, fresh); err != nil {
			s.log.Warn().Err(err).Str("ticker", event.Ticker).Msg("sentiment cache write failed")
		}
	}
	return &fresh
}

// atmLiquidity grades the ATM straddle pair: the thinner open interest
// and the wider spread of the two sides.
func atmLiquidity(chain *domain.OptionChain, atm domain.Strike) (int, float64) {
	call, put, ok := chain.QuoteAt(atm)
	if !ok {
		return 0, 1.0
	}
	oi := call.OpenInterest
	if put.OpenInterest < oi {
		oi = put.OpenInterest
	}
	spread := call.SpreadPct()
	if put.SpreadPct() > spread {
		spread = put.SpreadPct()
	}
	return oi, spread
}
