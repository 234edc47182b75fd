package worker

import (
	"context"
	"time"

	"zonewatch/internal/logger"
	"zonewatch/internal/service/dataset"
)

// Refresher is the part of dataset.Syncer the resync worker needs
type Refresher interface {
	Refresh(ctx context.Context) (dataset.SyncOutcome, error)
}

// StartResyncWorker refetches the zone dataset every interval. A zero interval disables it.
func StartResyncWorker(ctx context.Context, syncer Refresher, interval time.Duration) {
	if interval <= 0 {
		logger.L().Info("resync_worker_disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := syncer.Refresh(ctx); err != nil {
					logger.L().Error("resync_failed", "err", err)
				}
			}
		}
	}()

	logger.L().Info("resync_worker_started", "interval", interval)
}
