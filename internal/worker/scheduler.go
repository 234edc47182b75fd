package worker

import (
	"context"
	"runtime"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/logger"
)

// Workers bundles the background jobs started at boot
type Workers struct {
	Tracker        *Tracker
	Syncer         Refresher
	ResyncInterval time.Duration
}

// StartAllWorkers initializes and starts all background workers
func StartAllWorkers(ctx context.Context, w Workers) {
	logger.L().Info("workers_starting")

	if w.Tracker != nil {
		w.Tracker.Start(ctx)
	}
	if w.Syncer != nil {
		StartResyncWorker(ctx, w.Syncer, w.ResyncInterval)
	}
	StartMemoryStatsWorker(ctx, config.MemoryStatsInterval)

	logger.L().Info("workers_started")
}

// StartMemoryStatsWorker logs runtime memory usage periodically
func StartMemoryStatsWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var m runtime.MemStats
				runtime.ReadMemStats(&m)
				logger.L().Debug("memory_stats",
					"alloc_mib", m.Alloc/1024/1024,
					"total_alloc_mib", m.TotalAlloc/1024/1024,
					"sys_mib", m.Sys/1024/1024,
					"num_gc", m.NumGC,
				)
			}
		}
	}()
}
