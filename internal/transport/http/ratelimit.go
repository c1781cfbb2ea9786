package http

import "time"

// rateLimiter is a fixed-window counter for one connection's inbound messages.
// It is owned by the connection's read loop.
type rateLimiter struct {
	limit  int
	window time.Duration
	start  time.Time
	count  int
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit, window: time.Minute}
}

func (r *rateLimiter) allow(now time.Time) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	if now.Sub(r.start) >= r.window {
		r.start = now
		r.count = 0
	}
	r.count++
	return r.count <= r.limit
}
