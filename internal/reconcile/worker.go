package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultInterval = 15 * time.Minute

// Worker ticks the runner on a fixed interval until the context is done.
type Worker struct {
	runner   *Runner
	interval time.Duration

	now func() time.Time
}

func NewWorker(r *Runner, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Worker{
		runner:   r,
		interval: interval,
		now:      time.Now,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.runner.Run(ctx, w.now()); err != nil {
			log.Error().Err(err).Msg("reconcile")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
