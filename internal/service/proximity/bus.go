package proximity

import (
	"context"

	"zonewatch/internal/metrics"
)

// Bus fans zone events out to stream subscribers. Slow subscribers miss events
// instead of stalling the position stream.
type Bus struct {
	publish     chan Event
	subscribe   chan chan Event
	unsubscribe chan chan Event
}

// NewBus starts the broadcaster goroutine. It lives for the process lifetime;
// subscribers are pruned when their contexts end.
func NewBus(buffer int) *Bus {
	b := &Bus{
		publish:     make(chan Event, buffer),
		subscribe:   make(chan chan Event),
		unsubscribe: make(chan chan Event),
	}

	go b.run()
	return b
}

// HandleZoneEvent publishes without blocking so the bus can be registered on the engine
func (b *Bus) HandleZoneEvent(e Event) {
	select {
	case b.publish <- e:
	default:
	}
}

// Subscribe returns a channel of events that is closed once ctx ends
func (b *Bus) Subscribe(ctx context.Context, buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	b.subscribe <- ch

	go func() {
		<-ctx.Done()
		b.unsubscribe <- ch
		close(ch)
	}()

	return ch
}

func (b *Bus) run() {
	listeners := make(map[chan Event]struct{})

	for {
		select {
		case ch := <-b.subscribe:
			listeners[ch] = struct{}{}
			metrics.EventSubscribers.Set(float64(len(listeners)))
		case ch := <-b.unsubscribe:
			delete(listeners, ch)
			metrics.EventSubscribers.Set(float64(len(listeners)))
		case e := <-b.publish:
			for ch := range listeners {
				select {
				case ch <- e:
				default:
				}
			}
		}
	}
}
