package client

import (
	"sync"
	"time"
)

// reconnectPolicy bounds recreate-and-resend cycles. The attempt counter
// spans sends and is forgotten after resetAfter without a reconnect.
type reconnectPolicy struct {
	mu         sync.Mutex
	max        int
	base       time.Duration
	resetAfter time.Duration
	attempts   int
	last       time.Time
}

func newReconnectPolicy(max int, base, resetAfter time.Duration) *reconnectPolicy {
	return &reconnectPolicy{max: max, base: base, resetAfter: resetAfter}
}

// next reserves one reconnect and returns the backoff before it, or false
// once the budget is spent.
func (p *reconnectPolicy) next(now time.Time) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() && now.Sub(p.last) >= p.resetAfter {
		p.attempts = 0
	}
	if p.attempts >= p.max {
		return 0, false
	}
	delay := p.base << p.attempts
	p.attempts++
	p.last = now
	return delay, true
}

func (p *reconnectPolicy) used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}
