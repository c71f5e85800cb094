// Package scheduler maps wall-clock slots to named jobs and runs each
// job at most once per market day, with dependency gating and durable
// status tracking.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/domain"
	"github.com/aristath/whisper/internal/modules/markethours"
)

// Registered job names.
const (
	JobPreMarketPrep  = "pre-market-prep"
	JobSentimentScan  = "sentiment-scan"
	JobDigest         = "digest"
	JobWeeklyBackfill = "weekly-backfill"
)

// Dispatch outcome statuses.
const (
	OutcomeSuccess    = "success"
	OutcomeFailed     = "failed"
	OutcomeSkipped    = "skipped"
	OutcomeNoJob      = "no_job"
	OutcomeAlreadyRan = "already_ran"
)

// Runner executes one job under the dispatcher's timeout.
type Runner func(ctx context.Context) error

// Slot binds an exchange-zone time window to a job. Windows are
// half-open [Start, End) on minutes since midnight.
type Slot struct {
	Job     string
	Weekend bool
	Start   string // "HH:MM"
	End     string // "HH:MM"
}

// DefaultSlots is the production time map, exchange zone.
func DefaultSlots() []Slot {
	return []Slot{
		{Job: JobPreMarketPrep, Start: "05:30", End: "08:30"},
		{Job: JobSentimentScan, Start: "08:30", End: "09:30"},
		{Job: JobDigest, Start: "16:30", End: "18:00"},
		{Job: JobWeeklyBackfill, Weekend: true, Start: "10:00", End: "12:00"},
	}
}

// Outcome is the JSON-facing result of one dispatch tick.
type Outcome struct {
	Status string `json:"status"`
	Job    string `json:"job,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

type registration struct {
	run      Runner
	requires []string // jobs that must be success today
}

// Dispatcher resolves the current slot and runs its job once per day.
type Dispatcher struct {
	slots   []Slot
	jobs    map[string]registration
	status  *StatusRepository
	clock   *markethours.Clock
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher over the default time map.
func NewDispatcher(status *StatusRepository, clock *markethours.Clock, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		slots:   DefaultSlots(),
		jobs:    make(map[string]registration),
		status:  status,
		clock:   clock,
		timeout: 30 * time.Minute,
		log:     log.With().Str("module", "scheduler").Logger(),
	}
}

// WithSlots replaces the time map.
func (d *Dispatcher) WithSlots(slots []Slot) *Dispatcher {
	d.slots = slots
	return d
}

// WithTimeout bounds each job run.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.timeout = timeout
	}
	return d
}

// Register binds a runner to a job name. requires lists jobs that must
// have succeeded today before this one may run.
func (d *Dispatcher) Register(name string, run Runner, requires ...string) {
	d.jobs[name] = registration{run: run, requires: requires}
}

// Dispatch executes one tick. With force set, the named job runs
// regardless of the time map, dependency state, or a prior terminal
// status for today.
func (d *Dispatcher) Dispatch(ctx context.Context, force string) (*Outcome, error) {
	nowFn := d.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn().In(d.clock.Location())
	day := d.clock.MarketDay(now)

	job := force
	forced := force != ""
	if !forced {
		job = d.currentJob(now)
		if job == "" {
			return &Outcome{Status: OutcomeNoJob}, nil
		}
	}

	reg, ok := d.jobs[job]
	if !ok {
		return nil, domain.Errorf(domain.ErrConfiguration, "scheduler.dispatch",
			"job %q is not registered", job)
	}

	if !forced {
		if existing, err := d.status.Get(ctx, job, day); err == nil && existing.State.Terminal() {
			return &Outcome{Status: OutcomeAlreadyRan, Job: job}, nil
		} else if err != nil && !domain.IsKind(err, domain.ErrNoData) {
			return nil, err
		}

		if reason := d.unmetDependency(ctx, reg, day); reason != "" {
			d.recordStatus(ctx, domain.JobStatus{
				JobName: job, Date: day, State: domain.JobSkipped, Error: reason,
			}, false)
			return &Outcome{Status: OutcomeSkipped, Job: job, Reason: reason}, nil
		}
	}

	started := now.UTC()
	d.recordStatus(ctx, domain.JobStatus{
		JobName: job, Date: day, State: domain.JobRunning, StartedAt: &started,
	}, forced)

	d.log.Info().Str("job", job).Str("market_day", day).Bool("forced", forced).Msg("job starting")

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	err := reg.run(runCtx)
	cancel()

	finished := nowFn().UTC()
	if err != nil {
		d.recordStatus(ctx, domain.JobStatus{
			JobName: job, Date: day, State: domain.JobFailed,
			StartedAt: &started, FinishedAt: &finished, Error: err.Error(),
		}, true)
		d.log.Error().Err(err).Str("job", job).Msg("job failed")
		return &Outcome{Status: OutcomeFailed, Job: job, Error: err.Error()}, nil
	}

	d.recordStatus(ctx, domain.JobStatus{
		JobName: job, Date: day, State: domain.JobSuccess,
		StartedAt: &started, FinishedAt: &finished,
	}, true)
	d.log.Info().Str("job", job).Str("market_day", day).Msg("job succeeded")
	return &Outcome{Status: OutcomeSuccess, Job: job}, nil
}

// currentJob resolves the slot containing now, or "".
func (d *Dispatcher) currentJob(now time.Time) string {
	weekend := now.Weekday() == time.Saturday || now.Weekday() == time.Sunday
	minute := now.Hour()*60 + now.Minute()

	for _, slot := range d.slots {
		if slot.Weekend != weekend {
			continue
		}
		start, err1 := parseClock(slot.Start)
		end, err2 := parseClock(slot.End)
		if err1 != nil || err2 != nil {
			d.log.Warn().Str("job", slot.Job).Msg("unparseable slot window, skipping")
			continue
		}
		if minute >= start && minute < end {
			return slot.Job
		}
	}
	return ""
}

func (d *Dispatcher) unmetDependency(ctx context.Context, reg registration, day string) string {
	for _, dep := range reg.requires {
		st, err := d.status.Get(ctx, dep, day)
		if err != nil || st.State != domain.JobSuccess {
			return fmt.Sprintf("requires %s = success today", dep)
		}
	}
	return ""
}

// recordStatus writes durably and surfaces write failures through a
// dedicated log signal so a silent status gap is still observable.
func (d *Dispatcher) recordStatus(ctx context.Context, st domain.JobStatus, overwrite bool) {
	if err := d.status.Upsert(ctx, st, overwrite); err != nil {
		d.log.Error().Err(err).
			Str("signal", "status_recording_failed").
			Str("job", st.JobName).
			Str("status", string(st.State)).
			Msg("job status write failed")
	}
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(v string) (int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad clock %q", v)
	}
	return h*60 + m, nil
}
