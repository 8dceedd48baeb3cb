// Package debounce turns a rapidly changing input, such as a search box, into
// a stable value that only updates once the input has stopped changing for a
// fixed delay.
package debounce

import (
	"sync"
	"time"
)

// Option configures a [Debouncer].
type Option[T comparable] func(*Debouncer[T])

// WithOnSettle registers fn to be called with every newly settled value. It
// runs on the timer goroutine, outside the debouncer's lock.
func WithOnSettle[T comparable](fn func(T)) Option[T] {
	return func(d *Debouncer[T]) { d.onSettle = fn }
}

// Debouncer holds the last stable value of an input. All methods are safe for
// concurrent use.
type Debouncer[T comparable] struct {
	delay    time.Duration
	onSettle func(T)
	out      chan T

	mu         sync.Mutex
	stable     T
	pending    T
	hasPending bool
	timer      *time.Timer
	seq        uint64
	stopped    bool
}

// New returns a Debouncer whose stable value starts at initial. A delay <= 0
// propagates every change immediately.
func New[T comparable](initial T, delay time.Duration, opts ...Option[T]) *Debouncer[T] {
	d := &Debouncer[T]{
		delay:  delay,
		stable: initial,
		out:    make(chan T, 1),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Observe records the latest raw input. A value different from the pending
// one restarts the delay; repeating the pending value does not. Returning to
// the stable value cancels the pending update.
func (d *Debouncer[T]) Observe(raw T) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	if d.delay <= 0 {
		changed := raw != d.stable
		if changed {
			d.stable = raw
			d.emitLocked(raw)
		}
		d.mu.Unlock()
		if changed {
			d.settled(raw)
		}
		return
	}

	switch {
	case d.hasPending && raw == d.pending:
		d.mu.Unlock()
		return
	case raw == d.stable:
		d.cancelLocked()
		d.mu.Unlock()
		return
	}

	d.cancelLocked()
	d.pending = raw
	d.hasPending = true
	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
	d.mu.Unlock()
}

// Value returns the last stable value.
func (d *Debouncer[T]) Value() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stable
}

// C delivers each settled value. A reader that falls behind only sees the
// latest one. The channel is closed by Stop.
func (d *Debouncer[T]) C() <-chan T { return d.out }

// Stop cancels a pending update. Nothing is delivered after Stop returns.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	d.cancelLocked()
	close(d.out)
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	if d.stopped || seq != d.seq || !d.hasPending {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.stable = v
	d.hasPending = false
	d.timer = nil
	d.emitLocked(v)
	d.mu.Unlock()

	d.settled(v)
}

// cancelLocked stops the pending timer and invalidates its callback even if
// it has already started running.
func (d *Debouncer[T]) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.hasPending = false
	d.seq++
}

func (d *Debouncer[T]) emitLocked(v T) {
	select {
	case <-d.out:
	default:
	}
	d.out <- v
}

func (d *Debouncer[T]) settled(v T) {
	if d.onSettle != nil {
		d.onSettle(v)
	}
}
