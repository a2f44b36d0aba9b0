// Package circuit tracks whether a remote dependency is currently failing.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// State represents the breaker state.
type State int

const (
	// StateClosed means calls are succeeding.
	StateClosed State = iota
	// StateOpen means enough consecutive calls failed that the dependency is
	// considered down.
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// StateChange reports a transition caused by the last recorded outcome.
type StateChange struct {
	Opened bool
	Closed bool
}

// Changed reports whether any transition happened.
func (c StateChange) Changed() bool { return c.Opened || c.Closed }

// Breaker counts consecutive outcomes. It never blocks a call: an open
// breaker is an availability signal for health checks and logs, and calls
// keep flowing so that successes can close it again.
type Breaker struct {
	mu               sync.Mutex
	name             string
	clock            clock.Clock
	state            State
	openedAt         time.Time
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
}

// Option configures a Breaker instance.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
// Default is 5.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many consecutive successes close an open
// breaker. Default is 2.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(b *Breaker) {
		if c != nil {
			b.clock = c
		}
	}
}

// New creates a closed breaker.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		clock:            clock.New(),
		failureThreshold: 5,
		successThreshold: 2,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Record registers one call outcome.
func (b *Breaker) Record(ok bool) StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ok {
		b.failureCount = 0
		if b.state != StateOpen {
			return StateChange{}
		}
		b.successCount++
		if b.successCount < b.successThreshold {
			return StateChange{}
		}
		b.state = StateClosed
		b.successCount = 0
		b.openedAt = time.Time{}
		return StateChange{Closed: true}
	}

	b.successCount = 0
	b.failureCount++
	if b.state == StateOpen || b.failureCount < b.failureThreshold {
		return StateChange{}
	}
	b.state = StateOpen
	b.openedAt = b.clock.Now()
	return StateChange{Opened: true}
}

// Err is nil while closed and describes the outage while open.
func (b *Breaker) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return nil
	}
	return fmt.Errorf("%s circuit open for %s after %d consecutive failures",
		b.name, b.clock.Since(b.openedAt).Truncate(time.Second), b.failureCount)
}

// Reset closes the breaker and clears its counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.openedAt = time.Time{}
	b.failureCount = 0
	b.successCount = 0
}
