package polymarket

import (
	"context"
	"sync"
	"time"
)

// minRequestInterval is the floor between consecutive requests to one host.
const minRequestInterval = 150 * time.Millisecond

// hostLimiter spaces requests to a single host at least minRequestInterval
// apart. Every client in this package shares one limiter per host, so the
// engines cannot collectively hammer the venue.
type hostLimiter struct {
	mu   sync.Mutex
	last time.Time
}

// wait blocks until the next request may go out or the context is done.
func (l *hostLimiter) wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	next := l.last.Add(minRequestInterval)
	if next.Before(now) {
		next = now
	}
	l.last = next
	l.mu.Unlock()

	d := time.Until(next)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	limitersMu sync.Mutex
	limiters   = map[string]*hostLimiter{}
)

// limiterFor returns the shared limiter for a host, creating it on first use.
func limiterFor(host string) *hostLimiter {
	limitersMu.Lock()
	defer limitersMu.Unlock()

	l, ok := limiters[host]
	if !ok {
		l = &hostLimiter{}
		limiters[host] = l
	}
	return l
}
