// Package proximity turns a stream of position fixes into zone enter/exit
// transitions with dwell times.
package proximity

import (
	"errors"
	"sort"
	"sync"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/logger"
	"zonewatch/internal/metrics"
	"zonewatch/internal/model"
	"zonewatch/internal/util"
)

// boundaryTolerance absorbs float error at exactly the radius
const boundaryTolerance = 1e-6

var ErrInvalidFix = errors.New("proximity: invalid position fix")

// ZoneSource is the read side of the zone store
type ZoneSource interface {
	Get(id string) (model.Zone, bool)
	Nearby(lat, lon, radiusMeters float64) []model.Zone
}

type State string

const (
	StateIdle   State = "idle"
	StateInZone State = "in_zone"
)

// Status is a point-in-time view of the engine
type Status struct {
	State   State    `json:"state"`
	Session *Session `json:"session,omitempty"`
}

// Engine tracks at most one active session. A session is sticky: while the active zone
// still qualifies no other zone can take over.
type Engine struct {
	zones  ZoneSource
	radius float64

	procMu   sync.Mutex // serializes Process/Close including handler dispatch
	mu       sync.RWMutex
	session  *Session
	lastFix  model.PositionFix
	lastSeen time.Time // local clock when lastFix was processed
	handlers []EventHandler

	newID func() string
	now   func() time.Time
}

func NewEngine(zones ZoneSource, handlers ...EventHandler) *Engine {
	return &Engine{
		zones:    zones,
		radius:   config.ProximityRadiusMeters,
		handlers: handlers,
		newID:    util.ShortUUID,
		now:      time.Now,
	}
}

// AddHandler registers h for all subsequent transitions
func (e *Engine) AddHandler(h EventHandler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, h)
	e.mu.Unlock()
}

// Process evaluates one fix and returns the transition it caused, if any.
// Fixes must be passed in arrival order.
func (e *Engine) Process(fix model.PositionFix) (*Event, error) {
	if !fix.Valid() {
		return nil, ErrInvalidFix
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = e.now()
	}

	e.procMu.Lock()
	defer e.procMu.Unlock()

	metrics.FixesTotal.Inc()

	ev := e.step(fix)
	if ev != nil {
		e.dispatch(*ev)
	}
	return ev, nil
}

func (e *Engine) step(fix model.PositionFix) *Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastFix = fix
	e.lastSeen = e.now()
	if e.session != nil {
		active := e.session
		z, ok := e.zones.Get(active.ZoneID)
		if !ok {
			return e.exitLocked(fix, active.Zone, ReasonZoneRemoved)
		}
		if e.qualifies(fix, z) {
			return nil
		}
		return e.exitLocked(fix, z, ReasonLeft)
	}

	z, ok := e.nearest(fix)
	if !ok {
		return nil
	}
	e.session = &Session{
		ID:        e.newID(),
		ZoneID:    z.ID,
		Zone:      z,
		EnteredAt: fix.Timestamp,
	}
	return &Event{Kind: ZoneEnter, Zone: z, Session: *e.session, Fix: fix}
}

// Close ends the active session, if any. ts is read on the local clock; the exit is stamped
// with the last fix timestamp advanced by the local time elapsed since that fix, so dwell stays
// on the fix clock even when it drifts from ours. Calling it while idle is a no-op.
func (e *Engine) Close(ts time.Time) *Event {
	e.procMu.Lock()
	defer e.procMu.Unlock()

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil
	}
	fix := e.lastFix
	if elapsed := ts.Sub(e.lastSeen); elapsed > 0 {
		fix.Timestamp = fix.Timestamp.Add(elapsed)
	}
	ev := e.exitLocked(fix, e.session.Zone, ReasonStopped)
	e.mu.Unlock()

	e.dispatch(*ev)
	return ev
}

// State returns a copy of the current state
func (e *Engine) State() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.session == nil {
		return Status{State: StateIdle}
	}
	s := *e.session
	return Status{State: StateInZone, Session: &s}
}

func (e *Engine) exitLocked(fix model.PositionFix, z model.Zone, reason ExitReason) *Event {
	s := *e.session
	e.session = nil

	dwell := fix.Timestamp.Sub(s.EnteredAt)
	if dwell < 0 {
		dwell = 0
	}
	return &Event{Kind: ZoneExit, Zone: z, Session: s, Fix: fix, Dwell: dwell, Reason: reason}
}

func (e *Engine) qualifies(fix model.PositionFix, z model.Zone) bool {
	return util.HaversineDistance(fix.Lat, fix.Lon, z.Lat, z.Lon) <= e.radius+boundaryTolerance
}

// nearest picks the closest qualifying zone; equal distances go to the lower id
func (e *Engine) nearest(fix model.PositionFix) (model.Zone, bool) {
	type candidate struct {
		zone model.Zone
		dist float64
	}

	var qualifying []candidate
	for _, z := range e.zones.Nearby(fix.Lat, fix.Lon, e.radius) {
		d := util.HaversineDistance(fix.Lat, fix.Lon, z.Lat, z.Lon)
		if d <= e.radius+boundaryTolerance {
			qualifying = append(qualifying, candidate{zone: z, dist: d})
		}
	}
	if len(qualifying) == 0 {
		return model.Zone{}, false
	}

	sort.Slice(qualifying, func(i, j int) bool {
		if qualifying[i].dist != qualifying[j].dist {
			return qualifying[i].dist < qualifying[j].dist
		}
		return qualifying[i].zone.ID < qualifying[j].zone.ID
	})
	return qualifying[0].zone, true
}

func (e *Engine) dispatch(ev Event) {
	metrics.TransitionsTotal.WithLabelValues(string(ev.Kind)).Inc()
	if ev.Kind == ZoneEnter {
		logger.L().Info("zone_enter", "zone_id", ev.Zone.ID, "session", ev.Session.ID)
	} else {
		logger.L().Info("zone_exit",
			"zone_id", ev.Zone.ID,
			"session", ev.Session.ID,
			"dwell_ms", ev.DwellMillis(),
			"reason", ev.Reason,
		)
	}

	e.mu.RLock()
	handlers := append([]EventHandler(nil), e.handlers...)
	e.mu.RUnlock()

	for _, h := range handlers {
		h.HandleZoneEvent(ev)
	}
}
