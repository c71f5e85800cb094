package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Loop drives dispatch ticks from an in-process cron when the service
// runs in serve mode. External cron can call the dispatch surface
// instead; both paths share the per-day idempotency in the store.
type Loop struct {
	cron       *cron.Cron
	dispatcher *Dispatcher
	log        zerolog.Logger
}

// tickSpec fires at every quarter hour, matching the slot granularity.
const tickSpec = "0 0,15,30,45 * * * *"

// NewLoop creates the cron loop around a dispatcher.
func NewLoop(dispatcher *Dispatcher, log zerolog.Logger) *Loop {
	return &Loop{
		cron:       cron.New(cron.WithSeconds()),
		dispatcher: dispatcher,
		log:        log.With().Str("component", "scheduler_loop").Logger(),
	}
}

// Start registers the tick and starts the cron.
func (l *Loop) Start() error {
	_, err := l.cron.AddFunc(tickSpec, func() {
		outcome, err := l.dispatcher.Dispatch(context.Background(), "")
		if err != nil {
			l.log.Error().Err(err).Msg("dispatch tick failed")
			return
		}
		if outcome.Status != OutcomeNoJob {
			l.log.Info().
				Str("status", outcome.Status).
				Str("job", outcome.Job).
				Msg("dispatch tick")
		}
	})
	if err != nil {
		return err
	}
	l.cron.Start()
	l.log.Info().Str("spec", tickSpec).Msg("scheduler loop started")
	return nil
}

// Stop stops the cron and waits for a running tick to finish.
func (l *Loop) Stop() {
	ctx := l.cron.Stop()
	<-ctx.Done()
	l.log.Info().Msg("scheduler loop stopped")
}
