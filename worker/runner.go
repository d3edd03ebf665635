package worker

import (
	"context"
	"log/slog"
	"time"

	"receiptflow/pipeline"
)

// Cycler runs one full polling cycle across all active tenants.
type Cycler interface {
	RunCycle(ctx context.Context) (pipeline.CycleStats, error)
}

// Runner triggers cycles at a fixed interval until its context is cancelled.
// Cycles run strictly one at a time; a slow cycle delays the next tick rather
// than overlapping it.
type Runner struct {
	interval time.Duration
	cycler   Cycler
	logger   *slog.Logger
}

// NewRunner creates a scheduler around the given pipeline.
func NewRunner(interval time.Duration, cycler Cycler, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		interval: interval,
		cycler:   cycler,
		logger:   logger,
	}
}

// Run executes a cycle immediately, then once per interval. It returns the
// context's error on cancellation.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("worker started", "interval", r.interval)

	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("worker stopping")
			return ctx.Err()
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	stats, err := r.cycler.RunCycle(ctx)
	if err != nil {
		r.logger.Error("cycle failed", "error", err)
		return
	}
	r.logger.Info("cycle finished",
		"delivered", stats.Delivered,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
}
