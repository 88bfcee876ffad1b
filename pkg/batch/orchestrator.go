package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"teledrive/pkg/metrics"
	"teledrive/pkg/models"
	"teledrive/pkg/progress"
	"teledrive/pkg/structures"
)

// Executor runs one item through the transfer pipeline
type Executor interface {
	Prepare(ctx context.Context, containerName string) error
	Execute(ctx context.Context, item models.TransferItem) models.ItemResult
	Oversized(item models.TransferItem) bool
}

// Enumerator lists candidate items in a source chat
type Enumerator interface {
	Enumerate(ctx context.Context, container string, fn func(models.TransferItem) error) error
}

// Ledger answers whether an item was already transferred
type Ledger interface {
	ContainsItem(item models.TransferItem) bool
	Len() int
}

// RunError is a run-level failure kept for inspection
type RunError struct {
	RunID   string    `json:"run_id"`
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Orchestrator drives batches: discover every candidate first, then move
// them one at a time. One item failing never stops the batch.
type Orchestrator struct {
	source    Enumerator
	pipeline  Executor
	ledger    Ledger
	reporter  *progress.Reporter
	metrics   *metrics.Metrics
	log       *slog.Logger
	container string
	recent    *structures.Ring[RunError]
}

// NewOrchestrator creates an orchestrator writing into the sink container
// named container. recentErrors bounds the run-level error history.
func NewOrchestrator(source Enumerator, pipeline Executor, ledger Ledger, reporter *progress.Reporter, m *metrics.Metrics, log *slog.Logger, container string, recentErrors int) *Orchestrator {
	if recentErrors <= 0 {
		recentErrors = 32
	}
	return &Orchestrator{
		source:    source,
		pipeline:  pipeline,
		ledger:    ledger,
		reporter:  reporter,
		metrics:   m,
		log:       log,
		container: container,
		recent:    structures.NewRing[RunError](uint64(recentErrors)),
	}
}

type runIDKey struct{}

// WithRunID makes the next RunOnce on ctx use id instead of a fresh one
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// RecentErrors returns run-level errors, oldest first
func (o *Orchestrator) RecentErrors() []RunError {
	return o.recent.Snapshot()
}

// RunOnce scans chat and transfers every candidate not yet tracked.
// Cancelling ctx stops the batch between items; the item in flight runs to
// completion. A configuration or enumeration failure aborts the run and is
// returned; per-item failures are only reported in the BatchRun.
func (o *Orchestrator) RunOnce(ctx context.Context, chat string) (models.BatchRun, error) {
	run := models.BatchRun{
		ID:        runID(ctx),
		Container: chat,
		StartedAt: time.Now().UTC(),
	}
	log := o.log.With("run_id", run.ID, "chat", chat)

	o.reporter.Set(models.ProgressSnapshot{
		Phase:     models.PhaseEnumerating,
		RunID:     run.ID,
		StartedAt: run.StartedAt,
	})
	o.metrics.RunStarted()
	log.Info("Batch run started")

	if err := o.pipeline.Prepare(ctx, o.container); err != nil {
		return o.abort(run, log, err)
	}

	// Phase 1: discovery
	var items []models.TransferItem
	err := o.source.Enumerate(ctx, chat, func(item models.TransferItem) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return o.abort(run, log, fmt.Errorf("enumeration failed: %w", err))
	}

	run.TotalCandidates = len(items)
	o.reporter.Update(func(s *models.ProgressSnapshot) {
		s.ItemCount = len(items)
	})
	log.Info("Discovery complete", "candidates", len(items), "tracked", o.ledger.Len())

	// Phase 2: transfer
	itemCtx := context.WithoutCancel(ctx)
	quotaHit := false
	for i, item := range items {
		if ctx.Err() != nil {
			log.Info("Stop requested, leaving remaining items for the next run",
				"remaining", len(items)-i)
			break
		}

		name := item.DisplayName
		o.reporter.Update(func(s *models.ProgressSnapshot) {
			s.ItemIndex = i + 1
			s.CurrentItem = &name
		})

		var res models.ItemResult
		switch {
		case o.ledger.ContainsItem(item):
			res = models.Skipped(item, models.ReasonAlreadyTransferred)
		case o.pipeline.Oversized(item):
			res = models.Skipped(item, models.ReasonOversized)
		case quotaHit:
			res = models.Skipped(item, models.ReasonQuotaExceeded)
		default:
			res = o.pipeline.Execute(itemCtx, item)
		}

		if res.Reason == models.ReasonQuotaExceeded && !quotaHit {
			quotaHit = true
			log.Warn("Sink quota exceeded, skipping the rest of this batch", "item", name)
		}
		if res.Outcome == models.OutcomeFailed {
			log.Error("Item failed",
				"item", name,
				"reason", res.Reason,
				"attempts", res.Attempts,
				"error", res.Err)
		}

		run.Apply(res)
		o.reporter.Update(func(s *models.ProgressSnapshot) {
			s.Succeeded = run.SucceededCount
			s.Skipped = run.SkippedCount
			s.Failed = run.FailedCount
			if res.Err != nil && res.Outcome != models.OutcomeSkipped {
				s.LastError = fmt.Sprintf("%s: %v", name, res.Err)
			}
		})
	}

	return o.finish(run, log), nil
}

func (o *Orchestrator) abort(run models.BatchRun, log *slog.Logger, err error) (models.BatchRun, error) {
	run.Aborted = err.Error()
	run.FinishedAt = time.Now().UTC()
	if !errors.Is(err, context.Canceled) {
		o.pushError(run.ID, err)
	}
	o.reporter.Update(func(s *models.ProgressSnapshot) {
		s.Phase = models.PhaseFailed
		s.CurrentItem = nil
		s.LastError = err.Error()
	})
	o.metrics.RunFinished(string(models.PhaseFailed), run.Duration())
	log.Error("Batch run aborted", "error", err)
	return run, err
}

func (o *Orchestrator) finish(run models.BatchRun, log *slog.Logger) models.BatchRun {
	run.FinishedAt = time.Now().UTC()

	phase := models.PhaseCompleted
	if run.FailedCount > 0 {
		phase = models.PhaseFailed
	}
	o.reporter.Update(func(s *models.ProgressSnapshot) {
		s.Phase = phase
		s.CurrentItem = nil
		s.Rate = 0
		s.ETA = ""
	})
	o.metrics.RunFinished(string(phase), run.Duration())
	o.metrics.SetTracked(o.ledger.Len())

	log.Info("Batch run finished",
		"candidates", run.TotalCandidates,
		"succeeded", run.SucceededCount,
		"skipped", run.SkippedCount,
		"oversized", run.OversizedCount,
		"failed", run.FailedCount,
		"moved", humanize.Bytes(uint64(run.BytesMoved)),
		"duration", run.Duration().Round(time.Millisecond))
	return run
}

func (o *Orchestrator) pushError(runID string, err error) {
	o.recent.Push(RunError{RunID: runID, At: time.Now().UTC(), Message: err.Error()})
}

// RunMonitor calls RunOnce, waits interval, and repeats until ctx is
// cancelled. Run-level errors are kept in RecentErrors and do not stop the
// loop, except configuration errors, which no retry can fix.
func (o *Orchestrator) RunMonitor(ctx context.Context, chat string, interval time.Duration, onRun func(models.BatchRun)) error {
	o.log.Info("Monitor started", "chat", chat, "interval", interval)
	defer o.log.Info("Monitor stopped", "chat", chat)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		run, err := o.RunOnce(ctx, chat)
		if onRun != nil {
			onRun(run)
		}
		if err != nil {
			if errors.Is(err, models.ErrConfiguration) {
				return err
			}
			o.log.Warn("Monitor run failed, will retry next interval", "error", err)
		}

		if ctx.Err() != nil {
			return nil
		}
		timer.Reset(interval)
	}
}
