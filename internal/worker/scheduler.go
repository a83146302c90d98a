package worker

import (
	"context"
	"log/slog"
	"time"
)

// RunInterval invokes fn at every wall-clock multiple of every plus offset
// (for example every=5m offset=2m fires at :02, :07, :12, ...), until ctx is
// cancelled. Sweeps that error are logged and do not stop the loop; the next
// tick retries naturally.
func RunInterval(ctx context.Context, logger *slog.Logger, name string, every, offset time.Duration, fn func(context.Context) error) error {
	for {
		now := time.Now()
		next := now.Truncate(every).Add(offset)
		if !next.After(now) {
			next = next.Add(every)
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := fn(ctx); err != nil {
			logger.Error("scheduler.sweep_failed", "sweep", name, "err", err)
		}
	}
}
