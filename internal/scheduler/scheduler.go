// Package scheduler decides when the orchestration machine ticks.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/osmike/sweeper/internal/domain"
	errs "github.com/osmike/sweeper/internal/error"
	"github.com/osmike/sweeper/internal/window"

	"go.uber.org/zap"
)

// Machine is the unit of work the scheduler drives. *flow.Machine satisfies it.
type Machine interface {
	Tick(ctx context.Context) (domain.State, error)
}

// Config holds the cadence and gating of a Scheduler.
type Config struct {
	// CheckInterval is how often the loop wakes up to see whether a tick is due.
	// Default is DEFAULT_CHECK_INTERVAL.
	CheckInterval time.Duration

	// Interval sets the cadence: a fixed period or a cron expression, not both.
	Interval domain.Interval

	// RunImmediately makes the first tick due as soon as Run starts.
	RunImmediately bool

	// Window gates due ticks; the zero Window is always open.
	Window window.Window

	Now func() time.Time
	Log *zap.Logger
}

// Scheduler runs a Machine on a cadence inside a daily window, one tick at a time.
type Scheduler struct {
	cfg     Config
	machine Machine
	cron    *CronSchedule
	log     *zap.Logger

	nextRun time.Time
}

// New validates the cadence and computes the first due time.
//
// Returns:
//   - ErrMixedScheduleType if both a period and a cron expression are set.
//   - ErrInvalidCronExpression if the cron expression does not parse.
//   - ErrInvalidConfig if neither is set or the machine is nil.
func New(cfg Config, m Machine) (*Scheduler, error) {
	if m == nil {
		return nil, errs.New(errs.ErrInvalidConfig, "no machine to schedule")
	}
	if cfg.Interval.CronExpr != "" && cfg.Interval.Time > 0 {
		return nil, errs.New(errs.ErrMixedScheduleType, fmt.Sprintf("every %s and %q", cfg.Interval.Time, cfg.Interval.CronExpr))
	}
	if cfg.Interval.CronExpr == "" && cfg.Interval.Time <= 0 {
		return nil, errs.New(errs.ErrInvalidConfig, "no cadence: set an interval or a cron expression")
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = domain.DEFAULT_CHECK_INTERVAL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	s := &Scheduler{cfg: cfg, machine: m, log: cfg.Log}
	if cfg.Interval.CronExpr != "" {
		cron, err := ParseCron(cfg.Interval.CronExpr)
		if err != nil {
			return nil, err
		}
		s.cron = cron
	}

	now := cfg.Now()
	s.nextRun = now
	if !cfg.RunImmediately {
		s.nextRun = s.next(now)
	}
	return s, nil
}

// NextRun returns when the next tick becomes due. It is only safe to call while Run is not running.
func (s *Scheduler) NextRun() time.Time {
	return s.nextRun
}

func (s *Scheduler) next(from time.Time) time.Time {
	if s.cron != nil {
		return s.cron.Next(from)
	}
	return from.Add(s.cfg.Interval.Time)
}

// Run polls every CheckInterval and ticks the machine whenever a tick is due and the window is open.
//
// Returns:
//   - nil when ctx is cancelled or the machine halted.
//   - ErrGaveUp when the machine gave up.
//   - Any invariant violation a tick reports; every other tick error is logged and the loop
//     carries on.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started",
		zap.Time("next_run", s.nextRun),
		zap.Stringer("window", s.cfg.Window),
		zap.Duration("check_interval", s.cfg.CheckInterval),
	)

	for {
		if stop, err := s.check(ctx); stop {
			return err
		}
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped", zap.Error(ctx.Err()))
			return nil
		case <-ticker.C:
		}
	}
}

// check runs at most one tick and reports whether the loop must stop.
func (s *Scheduler) check(ctx context.Context) (bool, error) {
	now := s.cfg.Now()
	if now.Before(s.nextRun) {
		return false, nil
	}
	s.nextRun = s.next(now)
	if s.nextRun.IsZero() {
		return true, errs.New(errs.ErrInvalidCronExpression, fmt.Sprintf("%q never fires again", s.cfg.Interval.CronExpr))
	}

	if !s.cfg.Window.Contains(now) {
		s.log.Info("outside window, skipping tick",
			zap.Stringer("window", s.cfg.Window),
			zap.Time("opens_at", s.cfg.Window.NextOpen(now)),
		)
		return false, nil
	}

	st, err := s.machine.Tick(ctx)
	switch {
	case st == domain.Halted:
		s.log.Info("machine halted, stopping scheduler")
		return true, nil
	case err == nil:
		s.log.Debug("tick finished", zap.String("state", string(st)), zap.Time("next_run", s.nextRun))
		return false, nil
	case ctx.Err() != nil:
		return true, nil
	case errs.KindOf(err) == errs.KindTerminal:
		return true, err
	case errs.Recoverable(err):
		s.log.Warn("tick skipped", zap.String("kind", errs.KindOf(err).String()), zap.Error(err))
		return false, nil
	default:
		s.log.Error("tick failed", zap.String("kind", errs.KindOf(err).String()), zap.Error(err))
		return true, err
	}
}
