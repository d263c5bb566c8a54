package core

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a fixed minimum interval between sends on a channel.
// Callers that arrive early are suspended until their slot; slots are
// claimed in call order. There is no burst allowance.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewPacer creates a pacer with the given minimum send interval. A zero
// or negative interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Wait blocks until the caller may send. It returns early with the
// context's error if the context is cancelled while waiting.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.interval <= 0 {
		return nil
	}

	p.mu.Lock()
	now := time.Now()
	eligible := p.next
	if eligible.Before(now) {
		eligible = now
	}
	p.next = eligible.Add(p.interval)
	p.mu.Unlock()

	wait := time.Until(eligible)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
