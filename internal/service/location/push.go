package location

import (
	"context"
	"sync"
	"time"

	"zonewatch/internal/model"
)

// PushProvider relays fixes submitted by a client (POST /api/positions)
type PushProvider struct {
	buffer int

	mu   sync.Mutex
	out  chan model.PositionFix
	th   *throttle
	stop context.CancelFunc
}

func NewPushProvider(buffer int) *PushProvider {
	if buffer <= 0 {
		buffer = 64
	}
	return &PushProvider{buffer: buffer}
}

func (p *PushProvider) Start(ctx context.Context, opts Options) (<-chan model.PositionFix, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.out != nil {
		return p.out, nil
	}
	p.out = make(chan model.PositionFix, p.buffer)
	p.th = &throttle{opts: opts}

	ctx, cancel := context.WithCancel(ctx)
	p.stop = cancel
	out := p.out
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.out == out {
			close(p.out)
			p.out = nil
			p.th = nil
		}
	}()
	return out, nil
}

func (p *PushProvider) Stop() {
	p.mu.Lock()
	stop := p.stop
	out := p.out
	if out != nil {
		close(out)
		p.out = nil
		p.th = nil
	}
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Push delivers a fix to the running stream. Throttled fixes are accepted and dropped.
func (p *PushProvider) Push(fix model.PositionFix) error {
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.out == nil {
		return ErrNotStarted
	}
	if !p.th.allow(fix) {
		return nil
	}
	select {
	case p.out <- fix:
		return nil
	default:
		return ErrBusy
	}
}
