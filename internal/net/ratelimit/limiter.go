// Package ratelimit provides per-client token-bucket rate limiting for the
// read-only API. Model builds are expensive; the limiter keeps one noisy
// dashboard from monopolizing the build path.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per client key (remote address).
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a limiter allowing rps sustained requests per client
// with the given burst capacity.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

// Allow reports whether the client may proceed now, consuming a token when
// it may.
func (l *Limiter) Allow(client string) bool {
	return l.limiterFor(client).Allow()
}

func (l *Limiter) limiterFor(client string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[client]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring the write lock.
	if limiter, ok := l.limiters[client]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[client] = limiter
	return limiter
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}
