// Package worker runs background jobs that keep the scheduler in step with
// the entity population.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

// FingerprintSource reports a value that changes whenever the active
// population changes.
type FingerprintSource interface {
	Fingerprint(ctx context.Context) (string, error)
}

// Rearmer recomputes the schedule for the current population.
type Rearmer interface {
	Rearm(ctx context.Context) (models.ScheduleStatus, error)
}

// Config holds worker configuration.
type Config struct {
	PollInterval time.Duration
}

// Worker polls the population fingerprint and re-arms the scheduler on change.
// Changes made through the HTTP surface re-arm directly; the watcher catches
// edits made by other processes such as the CLI.
type Worker struct {
	source       FingerprintSource
	rearmer      Rearmer
	pollInterval time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	logger       *slog.Logger

	mu   sync.Mutex
	last string
}

// New creates a new worker.
func New(source FingerprintSource, rearmer Rearmer, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		source:       source,
		rearmer:      rearmer,
		pollInterval: cfg.PollInterval,
		stop:         make(chan struct{}),
		logger:       logger.With("component", "population-watcher"),
	}
}

// Start records the current fingerprint and begins polling.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "poll_interval", w.pollInterval)

	if fp, err := w.source.Fingerprint(ctx); err == nil {
		w.setLast(fp)
	} else {
		w.logger.Warn("failed to read initial fingerprint", "error", err)
	}

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("stopping")
		close(w.stop)
	})
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check compares the fingerprint with the last one seen and re-arms the
// scheduler when it changed. It reports whether a re-arm happened.
func (w *Worker) Check(ctx context.Context) bool {
	fp, err := w.source.Fingerprint(ctx)
	if err != nil {
		w.logger.Error("failed to read population fingerprint", "error", err)
		return false
	}

	w.mu.Lock()
	changed := fp != w.last
	w.mu.Unlock()
	if !changed {
		return false
	}

	status, err := w.rearmer.Rearm(ctx)
	if err != nil {
		// Keep the old fingerprint so the next tick retries.
		w.logger.Error("failed to re-arm schedule", "error", err)
		return false
	}
	w.setLast(fp)
	w.logger.Info("population changed, schedule re-armed",
		"active_entities", status.ActiveEntities,
		"armed", status.Armed,
		"estimated_minutes", status.EstimatedMinutes,
	)
	return true
}

func (w *Worker) setLast(fp string) {
	w.mu.Lock()
	w.last = fp
	w.mu.Unlock()
}
