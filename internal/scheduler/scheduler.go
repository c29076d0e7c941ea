package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// JobFunc is invoked on every armed cycle.
type JobFunc func(ctx context.Context) error

// Options tune scheduler behaviour.
type Options struct {
	Delay        time.Duration
	StartupDelay time.Duration
}

// Scheduler re-arms a job a fixed delay after each completion. The job owns
// no timer of its own; cycles never overlap.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Delay <= 0 {
		panic("scheduler delay must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the job and re-arming after each completion until ctx
// is cancelled. Job errors are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context, job JobFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		started := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduled job failed")
		}
		s.logger.Debug().Dur("took", time.Since(started)).Dur("delay", s.opts.Delay).Msg("job complete, re-arming")

		timer := time.NewTimer(s.opts.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
