// Package reliability wraps outbound provider calls with a token-bucket
// rate limiter, a circuit breaker, and retry with exponential backoff.
package reliability

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aristath/whisper/internal/domain"
)

// GuardConfig configures one provider's guard.
type GuardConfig struct {
	Name             string
	RateCapacity     int           // token bucket size
	RefillPerSecond  float64       // tokens per second
	FailureThreshold uint32        // consecutive failures before the breaker opens
	RecoveryTimeout  time.Duration // open duration before a half-open probe
}

// DefaultGuardConfig returns the standard guard settings for a provider.
func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:             name,
		RateCapacity:     10,
		RefillPerSecond:  5,
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// ProviderGuard smooths a provider's outbound call rate and fails fast
// while the remote is down. One guard is shared by every pipeline that
// talks to the same provider, so breaker state is scan-wide.
type ProviderGuard struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewProviderGuard creates a guard from config.
func NewProviderGuard(cfg GuardConfig, log zerolog.Logger) *ProviderGuard {
	if cfg.RateCapacity < 1 {
		cfg.RateCapacity = 1
	}
	if cfg.RefillPerSecond <= 0 {
		cfg.RefillPerSecond = 1
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}

	guardLog := log.With().Str("guard", cfg.Name).Logger()

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1, // single half-open probe
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Contract violations and missing data are the caller's problem,
		// not evidence of remote failure.
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			guardLog.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &ProviderGuard{
		name:    cfg.Name,
		limiter: rate.NewLimiter(rate.Limit(cfg.RefillPerSecond), cfg.RateCapacity),
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     guardLog,
	}
}

// Do acquires a rate token (blocking, cancellable) and runs fn behind
// the circuit breaker. Breaker rejections surface as EXTERNAL.
func (g *ProviderGuard) Do(ctx context.Context, fn func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.NewError(domain.ErrTimeout, g.name+".ratelimit", err)
		}
		return err
	}

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewError(domain.ErrExternal, g.name+".breaker", err)
	}
	return err
}

// State returns the breaker state string for health reporting.
func (g *ProviderGuard) State() string { return g.breaker.State().String() }

// Name returns the guarded provider's name.
func (g *ProviderGuard) Name() string { return g.name }

// KindFromStatus maps an HTTP status code to an error kind.
func KindFromStatus(status int) domain.ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return domain.ErrTimeout
	case status == http.StatusNotFound:
		return domain.ErrNoData
	case status == http.StatusUnauthorized || status == http.StatusForbidden,
		status >= 400 && status < 500:
		return domain.ErrInvalid
	case status >= 500:
		return domain.ErrExternal
	default:
		return domain.ErrExternal
	}
}

// KindFromMessage classifies errors whose only signal is message text.
// Providers are inconsistent about status codes; some return 200 with a
// "rate limit" note in the body.
func KindFromMessage(msg string) domain.ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many requests"):
		return domain.ErrRateLimit
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return domain.ErrTimeout
	case strings.Contains(lower, "no data"), strings.Contains(lower, "not found"):
		return domain.ErrNoData
	default:
		return domain.ErrExternal
	}
}
