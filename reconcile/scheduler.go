package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"agentruntime/ports"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule validates and parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("reconcile: invalid schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Scheduler fires a reconciliation pass over every currently in-flight
// parent run each time schedule comes due.
type Scheduler struct {
	reconciler *Reconciler
	logger     ports.Logger
	clock      ports.Clock
	schedule   cron.Schedule
	parents    func() []InFlightParent
	stop       chan struct{}
}

// NewScheduler builds a Scheduler from a standard 5-field cron expression.
// parents is invoked at the start of every tick to get the current set of
// runs to check.
func NewScheduler(reconciler *Reconciler, logger ports.Logger, clock ports.Clock, expr string, parents func() []InFlightParent) (*Scheduler, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		reconciler: reconciler,
		logger:     logger,
		clock:      clock,
		schedule:   sched,
		parents:    parents,
		stop:       make(chan struct{}),
	}, nil
}

// Run blocks, firing tick on every scheduled occurrence, until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	next := s.schedule.Next(time.Unix(0, s.clock.Now()))
	for {
		delay := time.Until(next)
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.tick(ctx)
			next = s.schedule.Next(time.Unix(0, s.clock.Now()))
		}
	}
}

// Stop halts a running Scheduler. Calling Stop more than once panics, the
// same as closing any channel twice.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, parent := range s.parents() {
		if _, err := s.reconciler.ReconcileRun(ctx, parent); err != nil {
			s.logger.Error("credit reconciliation failed", "run_id", string(parent.RunID), "err", err)
		}
	}
}
