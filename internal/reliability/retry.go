package reliability

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
)

// RetryConfig bounds the retry loop applied above the circuit breaker.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryConfig returns the standard retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: 500 * time.Millisecond}
}

// Retry runs fn up to 1+MaxRetries times with exponential backoff
// (base * 2^attempt). Permanent error kinds return immediately.
func Retry(ctx context.Context, cfg RetryConfig, log zerolog.Logger, op string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return domain.NewError(domain.ErrTimeout, op, err)
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !domain.Retryable(err) || attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.BaseDelay * (1 << uint(attempt))
		log.Debug().
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Str("kind", string(domain.KindOf(err))).
			Msg("retrying after transient error")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return domain.NewError(domain.ErrTimeout, op, ctx.Err())
			}
			return ctx.Err()
		}
	}

	return lastErr
}
