package proximity

import (
	"time"

	"zonewatch/internal/model"
)

type EventKind string

const (
	ZoneEnter EventKind = "zone_enter"
	ZoneExit  EventKind = "zone_exit"
)

// ExitReason explains why a session ended
type ExitReason string

const (
	ReasonLeft        ExitReason = "left"
	ReasonZoneRemoved ExitReason = "zone_removed"
	ReasonStopped     ExitReason = "stopped"
)

// Session is the single active stay inside a zone
type Session struct {
	ID        string     `json:"id"`
	ZoneID    string     `json:"zone_id"`
	Zone      model.Zone `json:"-"`
	EnteredAt time.Time  `json:"entered_at"`
}

// Event is emitted on every state transition. Dwell and Reason are set on exits only.
type Event struct {
	Kind    EventKind         `json:"kind"`
	Zone    model.Zone        `json:"-"`
	Session Session           `json:"session"`
	Fix     model.PositionFix `json:"fix"`
	Dwell   time.Duration     `json:"-"`
	Reason  ExitReason        `json:"reason,omitempty"`
}

// DwellMillis returns the dwell time in whole milliseconds
func (e Event) DwellMillis() int64 {
	return e.Dwell.Milliseconds()
}

// EventHandler receives transitions synchronously, in order. Implementations must not block.
type EventHandler interface {
	HandleZoneEvent(Event)
}

// HandlerFunc adapts a function to EventHandler
type HandlerFunc func(Event)

func (f HandlerFunc) HandleZoneEvent(e Event) { f(e) }
