package http

import (
	"sync"
	"time"
)

// rateLimiter caps session opens per minute-window. A zero limit
// disables it.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	counter int
	reset   *time.Ticker
}

func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		return &rateLimiter{limit: 0}
	}
	return &rateLimiter{
		limit: limit,
		reset: time.NewTicker(time.Minute),
	}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	return r.counter <= r.limit
}

// startReset zeroes the window counter on every tick. The limiter lives
// as long as the process, so the goroutine is never stopped.
func (r *rateLimiter) startReset() {
	if r == nil || r.reset == nil {
		return
	}
	go func() {
		for range r.reset.C {
			r.mu.Lock()
			r.counter = 0
			r.mu.Unlock()
		}
	}()
}
