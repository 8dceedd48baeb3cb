// Package poll runs a function on a fixed interval until it is stopped or its
// context ends. It replaces ad-hoc refresh loops in dashboard widgets.
package poll

import (
	"context"
	"sync"
	"time"
)

// Task is a running poller.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every calls fn every interval until ctx is done or Stop is called. The
// first call happens one interval after Every returns. Calls never overlap:
// ticks that arrive while fn is still running are dropped. A non-positive
// interval returns a Task that is already stopped.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	if interval <= 0 {
		cancel()
		close(t.done)
		return t
	}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
	return t
}

// Stop cancels the task and waits for a running call to return. It is safe to
// call more than once.
func (t *Task) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed once the task has fully stopped.
func (t *Task) Done() <-chan struct{} { return t.done }
