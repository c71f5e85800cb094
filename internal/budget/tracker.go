// Package budget enforces daily call counts and monthly dollar spend
// against external paid APIs. The tracker fails closed: if the counters
// cannot be read, the budget reads as exhausted.
package budget

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
)

// ErrExhausted is returned by Check when a cap is hit, so callers can
// route to a free fallback instead of treating it as a provider outage.
var ErrExhausted = errors.New("budget exhausted")

// Status is the budget headroom signal.
type Status string

const (
	StatusOK        Status = "OK"
	StatusWarning   Status = "WARNING"
	StatusExhausted Status = "EXHAUSTED"
)

const warningFraction = 0.80

// Limits caps one service.
type Limits struct {
	DailyCalls    int          `yaml:"daily_calls"`
	MonthlyBudget domain.Money `yaml:"monthly_budget"`
}

// Store persists the usage counters.
type Store interface {
	// Usage returns the call count and cost for one (service, day).
	Usage(ctx context.Context, service, day string) (calls int, costCents int64, err error)
	// MonthCost sums cost_cents over days with the given "YYYY-MM" prefix.
	MonthCost(ctx context.Context, service, month string) (int64, error)
	// RecordCall atomically adds one call and costCents to (service, day).
	RecordCall(ctx context.Context, service, day string, costCents int64) error
}

// Summary is the per-service budget snapshot.
type Summary struct {
	Service       string       `json:"service"`
	TodayCalls    int          `json:"today_calls"`
	DailyLimit    int          `json:"daily_limit"`
	MonthCost     domain.Money `json:"month_cost"`
	MonthlyBudget domain.Money `json:"monthly_budget"`
	CanCall       bool         `json:"can_call"`
}

// Tracker meters paid API usage. Day boundaries follow the configured
// zone (the service's canonical billing zone), not the host clock.
type Tracker struct {
	store    Store
	prices   PriceTable
	services map[string]Limits
	zone     *time.Location
	log      zerolog.Logger
	now      func() time.Time
}

// NewTracker creates a budget tracker.
func NewTracker(store Store, prices PriceTable, services map[string]Limits, zone *time.Location, log zerolog.Logger) *Tracker {
	if zone == nil {
		zone = time.UTC
	}
	return &Tracker{
		store:    store,
		prices:   prices,
		services: services,
		zone:     zone,
		log:      log.With().Str("module", "budget").Logger(),
		now:      time.Now,
	}
}

func (t *Tracker) day() string   { return t.now().In(t.zone).Format("2006-01-02") }
func (t *Tracker) month() string { return t.now().In(t.zone).Format("2006-01") }

// Check reports whether a call with the estimated cost fits the budget.
// EXHAUSTED comes with ErrExhausted; a store read failure also reads as
// exhausted.
func (t *Tracker) Check(ctx context.Context, service string, estimated domain.Money) (Status, error) {
	limits, ok := t.services[service]
	if !ok {
		return StatusExhausted, domain.NewError(domain.ErrConfiguration, "budget.check",
			errors.New("service has no configured limits")).WithTicker(service)
	}

	calls, _, err := t.store.Usage(ctx, service, t.day())
	if err != nil {
		t.log.Error().Err(err).Str("service", service).Msg("budget counters unreadable, failing closed")
		return StatusExhausted, domain.NewError(domain.ErrDB, "budget.check", ErrExhausted)
	}
	monthCents, err := t.store.MonthCost(ctx, service, t.month())
	if err != nil {
		t.log.Error().Err(err).Str("service", service).Msg("budget counters unreadable, failing closed")
		return StatusExhausted, domain.NewError(domain.ErrDB, "budget.check", ErrExhausted)
	}

	monthCost := domain.MoneyFromCents(monthCents)
	projected := monthCost.Add(estimated)

	if calls >= limits.DailyCalls || projected.Cmp(limits.MonthlyBudget) >= 0 {
		return StatusExhausted, domain.NewError(domain.ErrRateLimit, "budget.check", ErrExhausted).WithTicker(service)
	}

	callsWarn := float64(calls) >= warningFraction*float64(limits.DailyCalls)
	costWarn := projected.Cmp(limits.MonthlyBudget.MulFloat(warningFraction)) >= 0
	if callsWarn || costWarn {
		t.log.Warn().
			Str("service", service).
			Int("today_calls", calls).
			Str("projected_month_cost", projected.String()).
			Msg("budget above warning threshold")
		return StatusWarning, nil
	}
	return StatusOK, nil
}

// Record prices one completed call and persists both counters atomically.
func (t *Tracker) Record(ctx context.Context, service, model string, usage Usage) (domain.Money, error) {
	if err := usage.Validate(); err != nil {
		return domain.Money{}, err
	}
	if !t.prices.Known(service, model) {
		t.log.Warn().Str("service", service).Str("model", model).
			Msg("no pricing line for model, recording call at zero cost")
	}

	cost := t.prices.Cost(service, model, usage)
	if err := t.store.RecordCall(ctx, service, t.day(), cost.Cents()); err != nil {
		return domain.Money{}, domain.NewError(domain.ErrDB, "budget.record", err).WithTicker(service)
	}

	t.log.Debug().
		Str("service", service).
		Str("model", model).
		Str("cost", cost.String()).
		Msg("usage recorded")
	return cost, nil
}

// Services lists the configured service names, sorted.
func (t *Tracker) Services() []string {
	names := make([]string, 0, len(t.services))
	for name := range t.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary reports the current counters for one service.
func (t *Tracker) Summary(ctx context.Context, service string) (Summary, error) {
	limits, ok := t.services[service]
	if !ok {
		return Summary{}, domain.NewError(domain.ErrConfiguration, "budget.summary",
			errors.New("service has no configured limits")).WithTicker(service)
	}

	calls, _, err := t.store.Usage(ctx, service, t.day())
	if err != nil {
		return Summary{}, domain.NewError(domain.ErrDB, "budget.summary", err)
	}
	monthCents, err := t.store.MonthCost(ctx, service, t.month())
	if err != nil {
		return Summary{}, domain.NewError(domain.ErrDB, "budget.summary", err)
	}

	monthCost := domain.MoneyFromCents(monthCents)
	return Summary{
		Service:       service,
		TodayCalls:    calls,
		DailyLimit:    limits.DailyCalls,
		MonthCost:     monthCost,
		MonthlyBudget: limits.MonthlyBudget,
		CanCall:       calls < limits.DailyCalls && monthCost.LessThan(limits.MonthlyBudget),
	}, nil
}
