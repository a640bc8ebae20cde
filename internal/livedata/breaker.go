package livedata

import (
	"sync"
	"time"
)

// BreakerState is exposed as a Prometheus gauge per §4.A "breaker state is
// exposed as a gauge".
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// breaker is a small CLOSED/OPEN/HALF_OPEN circuit breaker guarding the
// provider client, §4.A "A circuit breaker (N consecutive failures → OPEN
// for cooldown ms → HALF_OPEN probe)". No suitable breaker library turned
// up anywhere in the retrieved pack, so this is a deliberate hand-rolled
// exception — see DESIGN.md.
type breaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration

	state       BreakerState
	failures    int
	openedAt    time.Time
	halfOpenInFlight bool
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown, state: BreakerClosed}
}

// Allow reports whether a call may proceed, transitioning OPEN -> HALF_OPEN
// once the cooldown elapses. Only one probe is allowed in flight while
// HALF_OPEN.
func (b *breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if now.Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.halfOpenInFlight = true
		return true
	case BreakerHalfOpen:
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.halfOpenInFlight = false
}

// RecordFailure increments the failure count, opening the breaker once the
// threshold is reached (or immediately, on a failed HALF_OPEN probe).
func (b *breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.halfOpenInFlight = false

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = now
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = now
	}
}

func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
