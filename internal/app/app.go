// Package app is the composition root: it builds the database handles,
// provider clients, signal modules, scanner, budget tracker, and
// scheduler out of one Config.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/budget"
	"github.com/aristath/whisper/internal/clients/llm"
	"github.com/aristath/whisper/internal/clients/tradier"
	"github.com/aristath/whisper/internal/clients/yahoo"
	"github.com/aristath/whisper/internal/config"
	"github.com/aristath/whisper/internal/database"
	"github.com/aristath/whisper/internal/domain"
	"github.com/aristath/whisper/internal/modules/anomaly"
	"github.com/aristath/whisper/internal/modules/earnings"
	"github.com/aristath/whisper/internal/modules/impliedmove"
	"github.com/aristath/whisper/internal/modules/liquidity"
	"github.com/aristath/whisper/internal/modules/markethours"
	"github.com/aristath/whisper/internal/modules/scoring"
	"github.com/aristath/whisper/internal/modules/skew"
	"github.com/aristath/whisper/internal/modules/strategies"
	"github.com/aristath/whisper/internal/modules/tailrisk"
	"github.com/aristath/whisper/internal/modules/vrp"
	"github.com/aristath/whisper/internal/providers"
	"github.com/aristath/whisper/internal/reliability"
	"github.com/aristath/whisper/internal/scanner"
	"github.com/aristath/whisper/internal/scheduler"
	"github.com/aristath/whisper/internal/storage"
	"github.com/aristath/whisper/internal/storage/s3blob"
)

// App owns every long-lived component of one whisper process.
type App struct {
	Cfg   *config.Config
	Log   zerolog.Logger
	Clock *markethours.Clock

	ScannerDB *database.DB
	CacheDB   *database.DB
	BudgetDB  *database.DB

	Registry    *providers.Registry
	Budget      *budget.Tracker
	BudgetStore *budget.SQLiteStore
	Replicator  *budget.Replicator
	Scanner     *scanner.Scanner
	JobStatus   *scheduler.StatusRepository
	Dispatcher  *scheduler.Dispatcher
}

// New wires the application. Close the returned app when done.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	clock, err := markethours.NewClock()
	if err != nil {
		return nil, err
	}

	a := &App{Cfg: cfg, Log: log, Clock: clock}
	if err := a.openDatabases(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildBudget(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildProviders(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildScanner(); err != nil {
		a.Close()
		return nil, err
	}
	a.buildScheduler()
	return a, nil
}

// Close releases the database handles.
func (a *App) Close() {
	for _, db := range a.Databases() {
		_ = db.Close()
	}
}

// Databases returns the open database handles.
func (a *App) Databases() []*database.DB {
	var out []*database.DB
	for _, db := range []*database.DB{a.ScannerDB, a.CacheDB, a.BudgetDB} {
		if db != nil {
			out = append(out, db)
		}
	}
	return out
}

func (a *App) openDatabases() error {
	specs := []struct {
		name    string
		profile database.Profile
		target  **database.DB
	}{
		{"scanner", database.ProfileStandard, &a.ScannerDB},
		{"cache", database.ProfileCache, &a.CacheDB},
		{"budget", database.ProfileLedger, &a.BudgetDB},
	}
	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    a.Cfg.DatabasePath(spec.name),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			return err
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return err
		}
		*spec.target = db
	}
	return nil
}

func (a *App) buildBudget() error {
	a.BudgetStore = budget.NewSQLiteStore(a.BudgetDB)
	a.Budget = budget.NewTracker(a.BudgetStore, budget.DefaultPriceTable(),
		a.Cfg.Budget, a.Clock.Location(), a.Log)

	if a.Cfg.Replication.Configured() {
		blob, err := s3blob.New(context.Background(), a.Cfg.Replication, a.Log)
		if err != nil {
			return err
		}
		a.Replicator = budget.NewReplicator(blob, "", a.Log)
	}
	return nil
}

func (a *App) guard(name string) *reliability.ProviderGuard {
	r := a.Cfg.Reliability
	return reliability.NewProviderGuard(reliability.GuardConfig{
		Name:             name,
		RateCapacity:     r.RateCapacity,
		RefillPerSecond:  r.RefillPerSecond,
		FailureThreshold: r.FailureThreshold,
		RecoveryTimeout:  r.RecoveryTimeout,
	}, a.Log)
}

func (a *App) retryConfig() reliability.RetryConfig {
	return reliability.RetryConfig{
		MaxRetries: a.Cfg.Reliability.MaxRetries,
		BaseDelay:  a.Cfg.Reliability.BaseDelay,
	}
}

func (a *App) buildProviders() error {
	a.Registry = providers.NewRegistry()

	if a.Cfg.TradierAPIKey != "" {
		a.Registry.RegisterMarketData(tradier.New(tradier.Config{
			APIKey:  a.Cfg.TradierAPIKey,
			Sandbox: a.Cfg.TradierSandbox,
			Retry:   a.retryConfig(),
		}, a.guard("tradier"), a.Log))
	}

	a.Registry.RegisterCalendar(yahoo.New(yahoo.Config{
		Universe: a.Cfg.Providers.Universe,
		Retry:    a.retryConfig(),
	}, a.guard("yahoo"), a.Log))

	if a.Cfg.PerplexityAPIKey != "" {
		a.Registry.RegisterSentiment(llm.New(llm.Config{
			APIKey: a.Cfg.PerplexityAPIKey,
		}, a.guard("llm"), a.Budget, a.Log))
	}
	return nil
}

func (a *App) buildScanner() error {
	market, err := a.Registry.MarketData(a.Cfg.Providers.Market)
	if err != nil {
		return err
	}
	calendar, err := a.Registry.Calendar(a.Cfg.Providers.Calendar)
	if err != nil {
		return err
	}

	// Sentiment is optional: no provider name or no API key disables it.
	var sentiment providers.SentimentProvider
	if a.Cfg.Providers.Sentiment != "" {
		if p, err := a.Registry.Sentiment(a.Cfg.Providers.Sentiment); err == nil {
			sentiment = p
		} else {
			a.Log.Warn().Str("provider", a.Cfg.Providers.Sentiment).
				Msg("sentiment provider unavailable, scanning without sentiment")
		}
	}

	scorerCfg := scoring.DefaultConfig()
	scorerCfg.Weights = a.Cfg.Scoring
	scorer, err := scoring.NewScorer(scorerCfg, a.Log)
	if err != nil {
		return err
	}

	a.Scanner, err = scanner.New(scanner.Config{
		Concurrency:  a.Cfg.Scan.Concurrency,
		PositionSize: a.Cfg.Scan.PositionSize,
		Metric:       a.Cfg.MoveMetric(),
	}, scanner.Deps{
		Market:         market,
		Calendar:       calendar,
		CalendarRepo:   earnings.NewCalendarRepository(a.ScannerDB.Conn(), a.Log),
		MovesRepo:      earnings.NewMovesRepository(a.ScannerDB.Conn(), a.Log),
		Implied:        impliedmove.NewCalculator(a.Log),
		VRP:            a.vrpCalculator(),
		Skew:           skew.NewAnalyzer(skew.DefaultConfig(), a.Log),
		Liquidity:      liquidity.NewClassifier(a.Log),
		TailRisk:       tailrisk.NewLimiter(tailrisk.DefaultConfig(), a.Log),
		Scorer:         scorer,
		Anomaly:        anomaly.NewDetector(a.Log),
		Generator:      strategies.NewGenerator(strategies.DefaultConfig(), liquidity.NewClassifier(a.Log), a.Log),
		Sentiment:      sentiment,
		SentimentCache: storage.NewSentimentCacheRepository(a.CacheDB.Conn(), a.Log),
		VRPCache:       storage.NewVRPCacheRepository(a.CacheDB.Conn(), a.Log),
	}, a.Log)
	return err
}

func (a *App) vrpCalculator() *vrp.Calculator {
	return vrp.NewCalculator(vrp.Config{
		Thresholds:  a.Cfg.Thresholds(),
		Metric:      a.Cfg.MoveMetric(),
		MinQuarters: a.Cfg.Signals.MinQuarters,
	}, a.Log)
}

func (a *App) buildScheduler() {
	a.JobStatus = scheduler.NewStatusRepository(a.ScannerDB.Conn(), a.Log)
	a.Dispatcher = scheduler.NewDispatcher(a.JobStatus, a.Clock, a.Log).
		WithTimeout(a.Cfg.Scheduler.JobTimeout)

	window := func(now time.Time) (time.Time, time.Time) {
		start := now.In(a.Clock.Location()).Truncate(24 * time.Hour)
		return start, start.AddDate(0, 0, a.Cfg.Scan.WindowDays)
	}

	a.Dispatcher.Register(scheduler.JobPreMarketPrep, func(ctx context.Context) error {
		start, end := window(time.Now())
		result, err := a.Scanner.Scan(ctx, start, end)
		if err != nil {
			return err
		}
		a.Log.Info().Int("opportunities", len(result.Opportunities)).
			Int("failures", len(result.Failures)).Msg("pre-market prep complete")
		return nil
	})

	a.Dispatcher.Register(scheduler.JobSentimentScan, func(ctx context.Context) error {
		start, end := window(time.Now())
		primed, err := a.Scanner.Prime(ctx, start, end)
		if err != nil {
			return err
		}
		a.Log.Info().Int("primed", primed).Msg("sentiment scan complete")
		return nil
	}, scheduler.JobPreMarketPrep)

	a.Dispatcher.Register(scheduler.JobDigest, func(ctx context.Context) error {
		start, end := window(time.Now())
		result, err := a.Scanner.Scan(ctx, start, end)
		if err != nil {
			return err
		}
		for i, opp := range result.Opportunities {
			if i >= a.Cfg.Scan.TopN {
				break
			}
			a.Log.Info().
				Str("ticker", opp.Ticker).
				Float64("score", opp.CompositeScore).
				Str("action", string(opp.FinalAction)).
				Msg("digest entry")
		}
		return nil
	}, scheduler.JobPreMarketPrep)

	a.Dispatcher.Register(scheduler.JobWeeklyBackfill, func(ctx context.Context) error {
		return a.weeklyBackfill(ctx)
	})
}

// weeklyBackfill refreshes realized move history for the universe and
// pushes the budget snapshot to the replicated store.
func (a *App) weeklyBackfill(ctx context.Context) error {
	calendar, err := a.Registry.Calendar(a.Cfg.Providers.Calendar)
	if err != nil {
		return err
	}
	movesRepo := earnings.NewMovesRepository(a.ScannerDB.Conn(), a.Log)

	var failed int
	for _, ticker := range a.Cfg.Providers.Universe {
		if err := ctx.Err(); err != nil {
			return err
		}
		moves, err := calendar.HistoricalMoves(ctx, ticker, a.Cfg.Signals.MinQuarters*3)
		if err != nil {
			if domain.IsKind(err, domain.ErrNoData) {
				continue
			}
			failed++
			a.Log.Warn().Err(err).Str("ticker", ticker).Msg("backfill fetch failed")
			continue
		}
		for _, move := range moves {
			if err := movesRepo.Record(ctx, move); err != nil {
				a.Log.Warn().Err(err).Str("ticker", ticker).Msg("backfill write failed")
			}
		}
	}

	if a.Replicator != nil {
		if err := a.Replicator.Push(ctx, a.BudgetStore); err != nil {
			a.Log.Warn().Err(err).Msg("budget snapshot push failed")
		}
	}

	if failed > 0 {
		return fmt.Errorf("backfill failed for %d of %d tickers", failed, len(a.Cfg.Providers.Universe))
	}
	return nil
}
