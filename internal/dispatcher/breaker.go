package dispatcher

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a per-channel circuit breaker. After threshold consecutive
// failures a channel opens and sends short-circuit. Once the cooldown has
// elapsed exactly one trial send is admitted; its success closes the
// breaker, its failure re-opens it with a fresh cooldown.
type Breaker struct {
	mu        sync.Mutex
	channels  map[string]*channelBreaker
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

type channelBreaker struct {
	state    breakerState
	failures int
	openedAt time.Time
}

// NewBreaker creates a breaker with the given failure threshold and cooldown
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		channels:  make(map[string]*channelBreaker),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a send to the channel may proceed. An open channel
// whose cooldown has elapsed transitions to half-open and admits this one
// call as the trial; further calls are held until the trial resolves.
func (b *Breaker) Allow(channelID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb := b.ensure(channelID)
	switch cb.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(cb.openedAt) >= b.cooldown {
			cb.state = stateHalfOpen
			return true
		}
		return false
	default: // half-open, trial in flight
		return false
	}
}

// RecordSuccess closes the channel's breaker and clears its failure count.
func (b *Breaker) RecordSuccess(channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb := b.ensure(channelID)
	cb.state = stateClosed
	cb.failures = 0
}

// RecordFailure counts a failed send and returns true when this failure
// opened (or re-opened) the breaker.
func (b *Breaker) RecordFailure(channelID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb := b.ensure(channelID)
	cb.failures++

	switch cb.state {
	case stateHalfOpen:
		cb.state = stateOpen
		cb.openedAt = b.now()
		return true
	case stateClosed:
		if cb.failures >= b.threshold {
			cb.state = stateOpen
			cb.openedAt = b.now()
			return true
		}
	}
	return false
}

func (b *Breaker) ensure(channelID string) *channelBreaker {
	cb := b.channels[channelID]
	if cb == nil {
		cb = &channelBreaker{}
		b.channels[channelID] = cb
	}
	return cb
}
