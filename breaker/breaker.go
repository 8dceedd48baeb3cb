// Package breaker provides a thread-safe circuit breaker that stops the API
// client from hammering a backend that is already failing.
//
// A Closed breaker lets calls through and counts consecutive failures. At
// FailureThreshold it opens and rejects calls with [ErrOpen] for
// OpenTimeout, then half-opens and admits up to HalfOpenMaxSuccess trials.
// That many consecutive trial successes close it again; one trial failure
// reopens it.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned by [Do] when the breaker rejects a call.
var ErrOpen = errors.New("breaker: circuit open")

// State represents the current circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed state
	// before the breaker trips to Open.
	FailureThreshold int

	// OpenTimeout is how long the breaker stays Open before half-opening.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is both the number of trials admitted while
	// HalfOpen and the consecutive successes needed to close.
	HalfOpenMaxSuccess int

	// IsFailure decides whether an error counts against the breaker. Nil
	// counts every non-nil error. Client errors such as 404 usually should not.
	IsFailure func(error) bool

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(from, to State)
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg     Config
	nowFunc func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64 // bumped on every transition
	failures   int
	successes  int
	trials     int // calls admitted in the current HalfOpen generation
	openedAt   time.Time
}

// New creates a Breaker. Non-positive thresholds default to 1.
func New(cfg Config) *Breaker {
	cfg.FailureThreshold = max(cfg.FailureThreshold, 1)
	cfg.HalfOpenMaxSuccess = max(cfg.HalfOpenMaxSuccess, 1)
	return &Breaker{cfg: cfg, nowFunc: time.Now}
}

// State returns the current state, half-opening first if OpenTimeout has
// elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	from := b.state
	b.refresh()
	s := b.state
	b.mu.Unlock()
	b.notify(from, s)
	return s
}

// Do runs fn when the breaker admits it and records the result. A rejected
// call returns ErrOpen without invoking fn. Results of calls admitted before
// the latest transition are ignored.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	gen, err := b.admit()
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := fn()
	b.record(gen, err != nil && (b.cfg.IsFailure == nil || b.cfg.IsFailure(err)))
	return v, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	from := b.state
	b.refresh()
	to := b.state

	var err error
	switch b.state {
	case Open:
		err = ErrOpen
	case HalfOpen:
		if b.trials >= b.cfg.HalfOpenMaxSuccess {
			err = ErrOpen
		} else {
			b.trials++
		}
	}
	gen := b.generation
	b.mu.Unlock()
	b.notify(from, to)
	return gen, err
}

func (b *Breaker) record(gen uint64, failed bool) {
	b.mu.Lock()
	from := b.state
	if gen == b.generation {
		switch {
		case b.state == Closed && failed:
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				b.enter(Open)
			}
		case b.state == Closed:
			b.failures = 0
		case b.state == HalfOpen && failed:
			b.enter(Open)
		case b.state == HalfOpen:
			b.successes++
			if b.successes >= b.cfg.HalfOpenMaxSuccess {
				b.enter(Closed)
			}
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// refresh half-opens an expired Open breaker. Must be called with b.mu held.
func (b *Breaker) refresh() {
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.enter(HalfOpen)
	}
}

// enter resets the counters for a new generation. Must be called with b.mu
// held.
func (b *Breaker) enter(s State) {
	b.state = s
	b.generation++
	b.failures, b.successes, b.trials = 0, 0, 0
	if s == Open {
		b.openedAt = b.nowFunc()
	}
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
