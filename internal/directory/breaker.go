package directory

import (
	"sync"
	"time"
)

// circuitBreaker stops calling an upstream that keeps failing:
// - Track consecutive upstream failures (5xx, network errors).
// - Open after failureThreshold failures; while open, calls fail fast.
// - After cooldown, let calls through half-open; close after successThreshold
//   consecutive successes, re-open on the first failure.
type circuitBreaker struct {
	mu               sync.Mutex
	state            circuitState
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	openedAt         time.Time
	now              func() time.Time
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func newCircuitBreaker(failureThreshold, successThreshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{
		state:            circuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed.
func (c *circuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case circuitOpen:
		if c.now().Sub(c.openedAt) < c.cooldown {
			return false
		}
		c.state = circuitHalfOpen
		c.successCount = 0
		return true
	default:
		return true
	}
}

// IsOpen reports whether calls are currently rejected.
func (c *circuitBreaker) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == circuitOpen
}

func (c *circuitBreaker) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	c.successCount = 0
	switch c.state {
	case circuitHalfOpen:
		c.trip()
	case circuitClosed:
		if c.failureCount >= c.failureThreshold {
			c.trip()
		}
	}
}

func (c *circuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == circuitHalfOpen {
		c.successCount++
		if c.successCount >= c.successThreshold {
			c.state = circuitClosed
			c.failureCount = 0
			c.successCount = 0
		}
		return
	}
	c.failureCount = 0
}

func (c *circuitBreaker) trip() {
	c.state = circuitOpen
	c.openedAt = c.now()
}
