package dispatcher

import (
	"math"
	"sync"
	"time"
)

// RateLimiter is a per-channel token bucket guarding outbound sends.
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	ratePerSec float64
	burst      float64
	now        func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a limiter allowing perMinute sends per channel with
// the given burst
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		buckets:    make(map[string]*bucket),
		ratePerSec: float64(perMinute) / 60.0,
		burst:      float64(burst),
		now:        time.Now,
	}
}

// Allow takes one token for the channel, reporting false when the bucket is
// empty.
func (r *RateLimiter) Allow(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b := r.buckets[channelID]
	if b == nil {
		b = &bucket{tokens: r.burst, last: now}
		r.buckets[channelID] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	b.tokens = math.Min(r.burst, b.tokens+elapsed*r.ratePerSec)
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
