package jobs

import (
	"context"
	"log/slog"
	"time"
)

const sweepInterval = time.Minute

// StartSweeper runs a background goroutine that periodically prunes
// finished jobs older than retention from the registry. Jobs are
// transient supervision records, not business data; without pruning the
// registry grows without bound on a long-lived server.
func StartSweeper(ctx context.Context, registry *Registry, retention time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Job sweeper started", "interval", sweepInterval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				if pruned := registry.PruneFinished(retention); pruned > 0 {
					slog.Info("Job sweeper pruned finished jobs", "count", pruned)
				}
			case <-ctx.Done():
				slog.Info("Job sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
