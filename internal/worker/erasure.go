package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

// Resumer finishes erasures that stopped after their tombstone was written.
type Resumer interface {
	ResumePending(ctx context.Context) (int, error)
}

type ErasureWorker struct {
	erasures Resumer
	interval time.Duration
	log      *logger.Logger
}

func NewErasureWorker(erasures Resumer, interval time.Duration, log *logger.Logger) *ErasureWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ErasureWorker{
		erasures: erasures,
		interval: interval,
		log:      log.With("component", "erasure_worker"),
	}
}

// Start runs one pass immediately and then one per interval until ctx ends.
func (w *ErasureWorker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("erasure worker started", "interval", w.interval.String())
	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			w.log.Info("erasure worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce resumes every pending erasure and logs the outcome. Failures are
// retried on the next pass.
func (w *ErasureWorker) RunOnce(ctx context.Context) int {
	done, err := w.erasures.ResumePending(ctx)
	if err != nil && ctx.Err() == nil {
		w.log.Error(err, "resume pending erasures", "completed", done)
	} else if done > 0 {
		w.log.Info("pending erasures completed", "completed", done)
	}
	return done
}
