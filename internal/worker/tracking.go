package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/logger"
	"zonewatch/internal/service/location"
	"zonewatch/internal/service/proximity"
)

// Tracker pumps fixes from a location provider into the proximity engine. When the
// stream ends the active session is closed; the provider is restarted after a delay
// unless the tracker itself was stopped.
type Tracker struct {
	provider     location.Provider
	engine       *proximity.Engine
	opts         location.Options
	restartDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTracker(provider location.Provider, engine *proximity.Engine, opts location.Options) *Tracker {
	return &Tracker{
		provider:     provider,
		engine:       engine,
		opts:         opts,
		restartDelay: config.TrackingRestartDelay,
	}
}

// Start is a no-op while already running
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.run(ctx, t.done)
	logger.L().Info("tracking_worker_started")
}

// Stop halts the provider, closes any open session and waits for the worker to exit
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	t.provider.Stop()
	<-done
	logger.L().Info("tracking_worker_stopped")
}

func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *Tracker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		t.pump(ctx)
		t.engine.Close(time.Now())

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.restartDelay):
			logger.L().Info("tracking_provider_restart")
		}
	}
}

func (t *Tracker) pump(ctx context.Context) {
	fixes, err := t.provider.Start(ctx, t.opts)
	if err != nil {
		logger.L().Error("tracking_provider_start_failed", "err", err)
		return
	}
	defer t.provider.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			if _, err := t.engine.Process(fix); err != nil {
				if errors.Is(err, proximity.ErrInvalidFix) {
					logger.L().Warn("tracking_fix_rejected", "lat", fix.Lat, "lon", fix.Lon)
					continue
				}
				logger.L().Error("tracking_process_failed", "err", err)
			}
		}
	}
}
