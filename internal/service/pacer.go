package service

import (
	"context"
	"sync"
	"time"
)

// Pacer spaces generation calls: a fixed gap between items and an optional
// cap on calls per rolling minute. Every wait gives up as soon as cancel is closed.
type Pacer struct {
	mu sync.Mutex

	delay time.Duration

	// 0 disables the per-minute cap
	maxCallsPerMinute int
	window            callWindow

	now func() time.Time
}

type callWindow struct {
	count     int
	windowEnd time.Time
}

// NewPacer creates a new pacer
func NewPacer(delay time.Duration, maxCallsPerMinute int) *Pacer {
	return &Pacer{
		delay:             delay,
		maxCallsPerMinute: maxCallsPerMinute,
		now:               time.Now,
	}
}

// Delay returns the fixed inter-item gap
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

// Gap waits out the inter-item delay. It returns false if cancel or ctx fired first.
func (p *Pacer) Gap(ctx context.Context, cancel <-chan struct{}) bool {
	if p.delay <= 0 {
		select {
		case <-cancel:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}

	t := time.NewTimer(p.delay)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-cancel:
		return false
	case <-ctx.Done():
		return false
	}
}

// Admit blocks until the per-minute window has room for another call.
// It returns false if cancel or ctx fired first.
func (p *Pacer) Admit(ctx context.Context, cancel <-chan struct{}) bool {
	if p.maxCallsPerMinute <= 0 {
		return true
	}

	for {
		wait, ok := p.reserve()
		if ok {
			return true
		}

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-cancel:
			t.Stop()
			return false
		case <-ctx.Done():
			t.Stop()
			return false
		}
	}
}

func (p *Pacer) reserve() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.After(p.window.windowEnd) {
		p.window = callWindow{count: 1, windowEnd: now.Add(1 * time.Minute)}
		return 0, true
	}

	if p.window.count >= p.maxCallsPerMinute {
		return p.window.windowEnd.Sub(now), false
	}

	p.window.count++
	return 0, true
}
