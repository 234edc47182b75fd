package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zonewatch/internal/logger"
	"zonewatch/internal/model"
	"zonewatch/internal/util"
)

// RouteSimulator walks an encoded polyline at a constant speed, emitting a fix every
// MinInterval. The channel closes when the end of the route is reached.
type RouteSimulator struct {
	points   [][2]float64
	speedMps float64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	out    chan model.PositionFix

	now func() time.Time
}

func NewRouteSimulator(encodedRoute string, speedMps float64) (*RouteSimulator, error) {
	points, err := util.DecodePolyline(encodedRoute)
	if err != nil {
		return nil, fmt.Errorf("error decoding route: %w", err)
	}
	if len(points) == 0 {
		return nil, errors.New("route has no points")
	}
	if speedMps <= 0 {
		return nil, fmt.Errorf("invalid speed %v", speedMps)
	}
	return &RouteSimulator{points: points, speedMps: speedMps, now: time.Now}, nil
}

func (s *RouteSimulator) Start(ctx context.Context, opts Options) (<-chan model.PositionFix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out != nil {
		select {
		case <-s.done:
		default:
			return s.out, nil
		}
	}

	interval := opts.MinInterval
	if interval <= 0 {
		interval = time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.out = make(chan model.PositionFix, 16)

	go s.run(ctx, opts, interval, s.out, s.done)

	logger.L().Info("route_simulator_started", "points", len(s.points), "speed_mps", s.speedMps, "interval", interval)
	return s.out, nil
}

func (s *RouteSimulator) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *RouteSimulator) run(ctx context.Context, opts Options, interval time.Duration, out chan<- model.PositionFix, done chan struct{}) {
	defer close(done)
	defer close(out)

	th := &throttle{opts: opts}
	seg := 0
	pos := s.points[0]
	lastTick := s.now()

	emit := func(p [2]float64, ts time.Time) bool {
		fix := model.PositionFix{Lat: p[0], Lon: p[1], AccuracyMeters: opts.AccuracyMeters, Timestamp: ts}
		if !th.allow(fix) {
			return true
		}
		select {
		case out <- fix:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(pos, lastTick) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for seg < len(s.points)-1 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := s.now()
		step := s.speedMps * now.Sub(lastTick).Seconds()
		lastTick = now

		for step > 0 && seg < len(s.points)-1 {
			next := s.points[seg+1]
			d := util.HaversineDistance(pos[0], pos[1], next[0], next[1])
			if step >= d {
				pos = next
				seg++
				step -= d
				continue
			}
			pos = util.MoveToward(pos[0], pos[1], next[0], next[1], step)
			step = 0
		}

		if !emit(pos, now) {
			return
		}
	}

	logger.L().Info("route_simulator_finished")
}
