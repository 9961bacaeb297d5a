package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter checks whether a request from the identity should be allowed.
// This is a request-frequency guard in front of the token-quota ledgers,
// which account usage only after a turn completes.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// InProcessLimiter is a fixed-window rate limiter that tracks request
// counts per subject in memory.
type InProcessLimiter struct {
	rpm int

	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a rate limiter allowing rpm requests per
// subject per minute. rpm <= 0 disables limiting.
func NewInProcessLimiter(rpm int) *InProcessLimiter {
	return &InProcessLimiter{
		rpm:      rpm,
		counters: make(map[string]*counter),
	}
}

// Allow checks if the request is within the rate limit.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	if l.rpm <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.counters[identity.Subject]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters[identity.Subject] = &counter{count: 1, windowAt: now}
		return nil
	}

	c.count++
	if c.count > l.rpm {
		return ErrTooManyRequests
	}

	return nil
}
