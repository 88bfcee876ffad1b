package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"teledrive/pkg/runner"
)

// Triggerer starts a batch run in the background
type Triggerer interface {
	Trigger() (runner.TriggerResult, error)
}

// Stats describes the cron trigger
type Stats struct {
	CronExpr  string    `json:"cron_expr"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run,omitempty"`
	RunCount  int       `json:"run_count"`
	SkipCount int       `json:"skip_count"`
	FailCount int       `json:"fail_count"`
}

// Scheduler fires a batch run on a standard 5-field cron expression.
// A tick that finds a run already active is skipped.
type Scheduler struct {
	mu       sync.RWMutex
	cron     *cron.Cron
	schedule cron.Schedule
	expr     string
	entry    cron.EntryID
	trigger  Triggerer
	log      *slog.Logger
	running  bool
	stats    Stats
}

// NewScheduler parses expr and prepares, but does not start, the scheduler
func NewScheduler(expr string, trigger Triggerer, log *slog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	s := &Scheduler{
		cron:     cron.New(),
		schedule: schedule,
		expr:     expr,
		trigger:  trigger,
		log:      log,
		stats:    Stats{CronExpr: expr},
	}
	s.entry = s.cron.Schedule(schedule, cron.FuncJob(s.fire))
	return s, nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true
	s.log.Info("Scheduler started", "cron", s.expr, "next_run", s.schedule.Next(time.Now()))
	return nil
}

// Stop stops the scheduler and waits for a tick in progress
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	return nil
}

// Run blocks until ctx is done, then stops the scheduler
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// NextRun is the next tick, computed from now when not started
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if running {
		if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
			return next
		}
	}
	return s.schedule.Next(time.Now())
}

// GetStats returns scheduler statistics
func (s *Scheduler) GetStats() Stats {
	s.mu.RLock()
	stats := s.stats
	s.mu.RUnlock()

	stats.NextRun = s.NextRun()
	return stats
}

func (s *Scheduler) fire() {
	res, err := s.trigger.Trigger()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.LastRun = time.Now()
	switch {
	case errors.Is(err, runner.ErrAlreadyRunning):
		s.stats.SkipCount++
		s.log.Info("Scheduled run skipped, a run is already active")
	case err != nil:
		s.stats.FailCount++
		s.log.Error("Scheduled run failed to start", "error", err)
	default:
		s.stats.RunCount++
		s.log.Info("Scheduled run started", "run_id", res.RunID)
	}
}
