// Package cron runs the periodic full-resync schedule.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Config holds the dependencies for the resync scheduler.
type Config struct {
	// Expr is a 5-field cron expression. Empty disables the scheduler.
	Expr string
	// Fire is invoked each time the schedule is due.
	Fire     func(ctx context.Context)
	Logger   *slog.Logger
	Interval time.Duration // tick interval; defaults to 1 minute if zero
}

// Scheduler fires the resync callback whenever the configured cron
// expression becomes due.
type Scheduler struct {
	expr     string
	fire     func(ctx context.Context)
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	nextRun time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler. The cron expression is validated on
// first use, not here.
func NewScheduler(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		expr:     cfg.Expr,
		fire:     cfg.Fire,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the scheduler loop. A no-op when no expression is set.
func (s *Scheduler) Start(ctx context.Context) {
	if s.expr == "" || s.fire == nil {
		return
	}

	next, err := NextRunTime(s.expr, time.Now())
	if err != nil {
		s.logger.Error("cron: invalid resync expression", "expr", s.expr, "error", err)
		return
	}
	s.mu.Lock()
	s.nextRun = next
	s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("resync scheduler started", "expr", s.expr, "next_run_at", next)
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("resync scheduler stopped")
}

// NextRun returns when the schedule is next due. Zero when not running.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	due := !s.nextRun.IsZero() && !now.Before(s.nextRun)
	s.mu.Unlock()
	if !due {
		return
	}

	next, err := NextRunTime(s.expr, now)
	if err != nil {
		s.logger.Error("cron: failed to compute next run time", "expr", s.expr, "error", err)
		return
	}
	s.mu.Lock()
	s.nextRun = next
	s.mu.Unlock()

	s.logger.Info("resync schedule fired", "next_run_at", next)
	s.fire(ctx)
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
