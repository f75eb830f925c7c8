package ratelimit

import (
	"sync"
	"time"
)

// One message costs 1e9 nano-slots, so a rate of N messages/sec refills N
// nano-slots per elapsed nanosecond. Integer fixed point keeps refill exact
// under an injected Clock.
const nanosPerMessage = int64(time.Second)

// Limiter caps the rate of inbound signaling messages on one connection: a
// token bucket whose burst equals one second's allowance.
type Limiter struct {
	mu sync.Mutex

	clock     Clock
	perSecond int64

	availableNanos int64
	last           time.Time
}

// NewLimiter admits perSecond messages per second with an equal burst.
// Callers that want no limit do not construct one; perSecond below 1 is
// clamped to 1.
func NewLimiter(clock Clock, perSecond int64) *Limiter {
	if clock == nil {
		clock = RealClock{}
	}
	if perSecond < 1 {
		perSecond = 1
	}
	return &Limiter{
		clock:          clock,
		perSecond:      perSecond,
		availableNanos: perSecond * nanosPerMessage,
		last:           clock.Now(),
	}
}

// Allow consumes one message slot if available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()
	if l.availableNanos < nanosPerMessage {
		return false
	}
	l.availableNanos -= nanosPerMessage
	return true
}

func (l *Limiter) refillLocked() {
	now := l.clock.Now()
	elapsed := now.Sub(l.last)
	l.last = now
	if elapsed <= 0 {
		// A clock that stood still or moved backwards re-anchors without
		// refilling.
		return
	}

	capacity := l.perSecond * nanosPerMessage
	// The burst is one second's allowance, so any full second refills
	// completely; the short-gap product below then cannot overflow.
	if elapsed >= time.Second {
		l.availableNanos = capacity
		return
	}
	l.availableNanos += elapsed.Nanoseconds() * l.perSecond
	if l.availableNanos > capacity {
		l.availableNanos = capacity
	}
}
