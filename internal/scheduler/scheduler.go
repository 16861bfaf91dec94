package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunFunc is invoked on every aligned interval with the valuation date the
// run should compute: the UTC calendar day containing the tick.
type RunFunc func(ctx context.Context, asOfDate time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives the periodic intraday recomputation loop. Each tick
// recomputes the current valuation date; dates are independent, so a failed
// tick is logged and the loop continues.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the run function at each aligned interval until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context, run RunFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next recomputation tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		asOfDate := ValuationDate(next)
		s.logger.Info().Time("as_of_date", asOfDate).Msg("executing scheduled recomputation")

		if err := run(ctx, asOfDate); err != nil {
			s.logger.Error().Err(err).Time("as_of_date", asOfDate).Msg("recomputation failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

// ValuationDate truncates a tick to its UTC calendar day.
func ValuationDate(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	tick := now.Truncate(s.opts.Interval)
	if !tick.After(now) {
		tick = tick.Add(s.opts.Interval)
	}
	return tick
}
