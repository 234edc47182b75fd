// Package location supplies position fixes to the tracking worker.
package location

import (
	"context"
	"errors"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/model"
	"zonewatch/internal/util"
)

var (
	ErrNotStarted = errors.New("location: provider not started")
	ErrBusy       = errors.New("location: fix buffer full")
)

// Options mirror the device location request: a fix is delivered once MinInterval has
// elapsed or the position moved at least MinDistanceMeters since the last delivered fix.
type Options struct {
	AccuracyMeters    float64
	MinInterval       time.Duration
	MinDistanceMeters float64
}

func DefaultOptions() Options {
	return Options{
		AccuracyMeters:    10,
		MinInterval:       config.PositionMinInterval,
		MinDistanceMeters: config.PositionMinDistanceMeters,
	}
}

// Provider is a source of position fixes. Start and Stop are idempotent; Start while
// running returns the current channel. The channel is closed when the provider stops.
type Provider interface {
	Start(ctx context.Context, opts Options) (<-chan model.PositionFix, error)
	Stop()
}

// throttle drops fixes that arrive too soon and too close to the last delivered one
type throttle struct {
	opts Options
	last *model.PositionFix
}

func (t *throttle) allow(fix model.PositionFix) bool {
	if t.last == nil {
		t.last = &fix
		return true
	}
	elapsed := fix.Timestamp.Sub(t.last.Timestamp)
	moved := util.HaversineDistance(t.last.Lat, t.last.Lon, fix.Lat, fix.Lon)
	if elapsed < t.opts.MinInterval && moved < t.opts.MinDistanceMeters {
		return false
	}
	t.last = &fix
	return true
}
