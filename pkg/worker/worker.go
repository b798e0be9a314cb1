// Package worker polls the run store for due delayed runs, claims them
// exclusively, and hands them back to the execution engine.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/caretrail/journey/pkg/engine"
	"github.com/caretrail/journey/pkg/persistence"
)

const DefaultBatchSize = 1000

// Worker is the timer-driven resume poller. Each tick claims a bounded batch
// of due runs inside one short transaction (row locks are released on
// commit), then resumes the claimed runs without holding any lock. Multiple
// worker instances may run against the same database; the claim transaction
// is the only coordination between them.
type Worker struct {
	persistence persistence.Persistence
	engine      *engine.Engine
	logger      *slog.Logger
	batchSize   int

	ticker  *time.Ticker
	done    chan bool
	started bool
	mu      sync.Mutex
}

func New(store persistence.Persistence, eng *engine.Engine, logger *slog.Logger) *Worker {
	return &Worker{
		persistence: store,
		engine:      eng,
		logger:      logger.With("module", "resume_worker"),
		batchSize:   DefaultBatchSize,
	}
}

// WithBatchSize overrides the per-tick claim limit.
func (w *Worker) WithBatchSize(size int) *Worker {
	if size > 0 {
		w.batchSize = size
	}

	return w
}

// Start begins polling at the given interval. Starting an already running
// worker logs and no-ops.
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		w.logger.WarnContext(ctx, "Worker is already running")

		return
	}

	w.logger.InfoContext(ctx, "Starting journey resume worker", "interval", interval)

	w.ticker = time.NewTicker(interval)
	w.done = make(chan bool)
	w.started = true

	go w.poll(ctx)
}

// Stop cancels the polling timer. Safe to call multiple times.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}

	w.ticker.Stop()

	select {
	case w.done <- true:
	default:
	}

	w.started = false
	w.logger.Info("Journey resume worker stopped")
}

func (w *Worker) poll(ctx context.Context) {
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-w.ticker.C:
			w.ProcessDueRuns(ctx)
		}
	}
}

// ProcessDueRuns executes one worker tick: claim, then resume. Exposed so
// tests and operational tooling can drive ticks directly.
func (w *Worker) ProcessDueRuns(ctx context.Context) {
	claimed, err := w.persistence.RunRepository().ClaimDue(ctx, time.Now().UTC(), w.batchSize)
	if err != nil {
		// The claim transaction failed as a whole; the next tick retries.
		w.logger.ErrorContext(ctx, "Failed to claim due runs", "error", err)

		return
	}

	if len(claimed) == 0 {
		return
	}

	w.logger.InfoContext(ctx, "Claimed due runs", "count", len(claimed))

	for _, runID := range claimed {
		w.resumeRun(ctx, runID)
	}
}

// resumeRun isolates one claimed run: a failure, or a panic escaping the
// engine, fails that run without taking down the worker or the rest of the
// batch.
func (w *Worker) resumeRun(ctx context.Context, runID string) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "Panic resuming claimed run", "run_id", runID, "panic", r)

			w.markFailed(ctx, runID, fmt.Sprintf("panic: %v", r))
		}
	}()

	err := w.engine.Resume(ctx, runID)
	if err != nil {
		w.logger.ErrorContext(ctx, "Error resuming claimed run", "run_id", runID, "error", err)

		w.markFailed(ctx, runID, err.Error())
	}
}

func (w *Worker) markFailed(ctx context.Context, runID, reason string) {
	err := w.persistence.RunRepository().MarkFailed(ctx, runID, reason)
	if err != nil && !persistence.IsRunTerminal(err) {
		w.logger.ErrorContext(ctx, "Failed to mark run failed", "run_id", runID, "error", err)
	}
}
