package lifecycle

import (
	"context"
	"log/slog"
	"time"
)

// Completer runs one bounded completion pass and reports how many appointments it completed.
type Completer interface {
	CompleteDue(ctx context.Context, limit int) (int, error)
}

type Worker struct {
	completer Completer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewWorker(completer Completer, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Worker{
		completer: completer,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	n, err := w.completer.CompleteDue(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("completion sweep failed", "err", err)
		return
	}
	if n > 0 {
		w.logger.Info("completion sweep finished", "completed", n)
	}
}
