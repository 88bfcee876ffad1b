package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"teledrive/pkg/batch"
	"teledrive/pkg/models"
	"teledrive/pkg/progress"
)

var (
	ErrAlreadyRunning = errors.New("a transfer run is already active")
	ErrNotMonitoring  = errors.New("monitor is not running")
)

// Batcher is the orchestrator surface the controller drives
type Batcher interface {
	RunOnce(ctx context.Context, chat string) (models.BatchRun, error)
	RunMonitor(ctx context.Context, chat string, interval time.Duration, onRun func(models.BatchRun)) error
	RecentErrors() []batch.RunError
}

// Summarizer reports what the tracker holds
type Summarizer interface {
	Summary(recent int) models.TrackerSummary
}

// TriggerResult is returned by Trigger
type TriggerResult struct {
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
}

const (
	StatusStarted        = "started"
	StatusAlreadyRunning = "already_running"

	summaryRecent = 10
)

// Controller owns the single "run active" guard. At most one batch, one-shot
// or monitor, is active at a time.
type Controller struct {
	batch    Batcher
	tracker  Summarizer
	reporter *progress.Reporter
	log      *slog.Logger
	chat     string

	running    atomic.Bool
	monitoring atomic.Bool
	wg         sync.WaitGroup

	mu      sync.Mutex
	cancel  context.CancelFunc
	lastRun *models.BatchRun
}

// New creates a controller for transfers from chat
func New(b Batcher, tracker Summarizer, reporter *progress.Reporter, log *slog.Logger, chat string) *Controller {
	return &Controller{
		batch:    b,
		tracker:  tracker,
		reporter: reporter,
		log:      log,
		chat:     chat,
	}
}

// Trigger starts one batch in the background and returns immediately
func (c *Controller) Trigger() (TriggerResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return TriggerResult{Status: StatusAlreadyRunning}, ErrAlreadyRunning
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(batch.WithRunID(context.Background(), id))
	c.setCancel(cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(cancel)
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("Batch run panicked", "run_id", id, "panic", fmt.Sprint(r))
			}
		}()

		run, err := c.batch.RunOnce(ctx, c.chat)
		c.recordRun(run)
		if err != nil {
			c.log.Error("Triggered run failed", "run_id", id, "error", err)
		}
	}()

	c.log.Info("Run triggered", "run_id", id, "chat", c.chat)
	return TriggerResult{Status: StatusStarted, RunID: id}, nil
}

// StartMonitor runs batches every interval until StopMonitor
func (c *Controller) StartMonitor(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", interval)
	}
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	c.monitoring.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	c.setCancel(cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(cancel)
		defer c.monitoring.Store(false)

		if err := c.batch.RunMonitor(ctx, c.chat, interval, c.recordRun); err != nil {
			c.log.Error("Monitor stopped on error", "error", err)
		}
	}()
	return nil
}

// StopMonitor asks the monitor to stop. The item in flight finishes first.
func (c *Controller) StopMonitor() error {
	if !c.monitoring.Load() {
		return ErrNotMonitoring
	}
	c.Stop()
	return nil
}

// Stop cancels whatever is active, one-shot run or monitor
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until background work has returned
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Shutdown stops active work and waits for it, or for ctx
func (c *Controller) Shutdown(ctx context.Context) error {
	c.Stop()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) Running() bool    { return c.running.Load() }
func (c *Controller) Monitoring() bool { return c.monitoring.Load() }

// Progress returns the current snapshot without blocking the transfer
func (c *Controller) Progress() models.ProgressSnapshot {
	return c.reporter.Get()
}

func (c *Controller) TrackerSummary() models.TrackerSummary {
	return c.tracker.Summary(summaryRecent)
}

// LastRun returns a copy of the last finished run, if any
func (c *Controller) LastRun() *models.BatchRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRun == nil {
		return nil
	}
	run := *c.lastRun
	return &run
}

func (c *Controller) RecentErrors() []batch.RunError {
	return c.batch.RecentErrors()
}

func (c *Controller) recordRun(run models.BatchRun) {
	c.mu.Lock()
	c.lastRun = &run
	c.mu.Unlock()
}

func (c *Controller) setCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
}

func (c *Controller) release(cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	c.cancel = nil
	c.mu.Unlock()
	c.running.Store(false)
}
