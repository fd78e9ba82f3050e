// Package scheduler invokes a job at a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/scalper/internal/logger"
)

// Job is one unit of scheduled work. A returned error is logged and the
// schedule carries on.
type Job func(ctx context.Context) error

type Scheduler struct {
	Interval time.Duration

	// Align starts runs on wall-clock multiples of Interval, shifted by
	// Offset so the vendor has published the bar that just closed.
	Align  bool
	Offset time.Duration

	// Immediate runs the job once before waiting for the first slot.
	Immediate bool

	// MaxRuns stops the scheduler after that many runs. Zero means forever.
	MaxRuns int

	Job Job

	// Now and After default to the time package.
	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) after(d time.Duration) <-chan time.Time {
	if s.After != nil {
		return s.After(d)
	}
	return time.After(d)
}

func (s *Scheduler) Validate() error {
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be > 0, got %s", s.Interval)
	}
	if s.Offset < 0 || s.Offset >= s.Interval {
		return fmt.Errorf("offset must be in [0, interval), got %s", s.Offset)
	}
	if s.Job == nil {
		return fmt.Errorf("no job")
	}
	return nil
}

// Next returns when the run after now should start.
func (s *Scheduler) Next(now time.Time) time.Time {
	if !s.Align {
		return now.Add(s.Interval)
	}
	next := now.Truncate(s.Interval).Add(s.Offset)
	if !next.After(now) {
		next = next.Add(s.Interval)
	}
	return next
}

// Run blocks until ctx is done or MaxRuns is reached. Runs never overlap:
// a slot that passes while the job is running is dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Validate(); err != nil {
		return err
	}

	logger.Info(ctx, "scheduler started",
		"interval", s.Interval.String(),
		"align", s.Align,
		"offset", s.Offset.String(),
	)

	runs := 0
	run := func() bool {
		runs++
		if err := s.Job(ctx); err != nil {
			logger.ErrorWithErr(ctx, "scheduled run failed", err, "run", runs)
		}
		return s.MaxRuns > 0 && runs >= s.MaxRuns
	}

	if s.Immediate {
		if run() {
			return nil
		}
	}

	for {
		now := s.now()
		wait := s.Next(now).Sub(now)
		logger.Debug(ctx, "waiting for next run", "wait", wait.String())

		select {
		case <-ctx.Done():
			logger.Info(ctx, "scheduler stopped", "runs", runs)
			return nil
		case <-s.after(wait):
			if run() {
				logger.Info(ctx, "scheduler finished", "runs", runs)
				return nil
			}
		}
	}
}
