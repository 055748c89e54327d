// Package server throttles inbound frames per connection so that one client
// cannot flood a room.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows bursts of up to capacity frames and refills the whole
// bucket once per interval.
func newRateLimiter(capacity int, interval time.Duration) *rate.Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return rate.NewLimiter(rate.Every(interval/time.Duration(capacity)), capacity)
}
