// Package resource coordinates asynchronous fetches keyed by a cache key.
//
// A [Resource] runs at most one live producer call: when the key changes or a
// refetch is requested while a call is in flight, the older call's context is
// cancelled and its result, whenever it arrives, is discarded. The last
// request wins, not the last response.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/Keksclan/rawrFetch/cache"
	"github.com/Keksclan/rawrFetch/metrics"
	"github.com/Keksclan/rawrFetch/tracing"
)

// ErrProducerPanic is wrapped by the error stored in State.Err when a
// producer panics.
var ErrProducerPanic = errors.New("resource: producer panicked")

// Producer fetches a value. It should return promptly once ctx is done.
type Producer[V any] func(ctx context.Context) (V, error)

// State is a snapshot of a resource.
type State[V any] struct {
	Data    V
	HasData bool
	Loading bool
	// Err is the producer error of the last settled call, verbatim. Data keeps
	// the previous value when it is set.
	Err error
	// LastFetchedKey is the cache key of the last settled call.
	LastFetchedKey string
}

// RunOptions selects what [Resource.Run] fetches.
type RunOptions[V any] struct {
	CacheKey string
	// Cache is consulted before calling the producer and written on success.
	// Nil disables caching.
	Cache   cache.Cache[V]
	Enabled bool
}

// Option configures a [Resource].
type Option func(*options)

type options struct {
	logger  log.Logger
	tracing *tracing.Config
	metrics FetchRecorder
}

// FetchRecorder counts fetch outcomes. *metrics.Metrics implements it.
type FetchRecorder interface {
	Fetch(outcome string)
}

// WithLogger sets the logger used for producer failures and discarded
// results.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracing wraps every producer call in a span.
func WithTracing(cfg *tracing.Config) Option {
	return func(o *options) { o.tracing = cfg }
}

// WithMetrics records fetch outcomes on m.
func WithMetrics(m FetchRecorder) Option {
	return func(o *options) { o.metrics = m }
}

// Resource holds the state of one asynchronously fetched value. All methods
// are safe for concurrent use.
type Resource[V any] struct {
	opts options

	mu        sync.Mutex
	state     State[V]
	gen       uint64
	inflight  bool
	cancel    context.CancelFunc
	settled   chan struct{}
	producer  Producer[V]
	run       RunOptions[V]
	activated bool
	closed    bool

	subs    map[int]chan State[V]
	nextSub int

	// cacheMu orders cache writes, which may block on a backend and so run
	// outside mu.
	cacheMu sync.Mutex
}

// New returns an idle resource. Its initial state is Loading with no data.
func New[V any](opts ...Option) *Resource[V] {
	o := options{logger: log.NewNopLogger()}
	for _, fn := range opts {
		fn(&o)
	}
	settled := make(chan struct{})
	close(settled)
	return &Resource[V]{
		opts:    o,
		state:   State[V]{Loading: true},
		settled: settled,
		subs:    make(map[int]chan State[V]),
	}
}

// Run activates the resource for ro.CacheKey. On the first enabled call, or
// when the key differs from the active one, a cache hit settles the state
// immediately; otherwise producer is started in the background and the
// returned state is Loading. Calling Run again with the active key is a
// no-op. When ro.Enabled is false nothing starts and the state is left as
// it is.
//
// The producer context derives from ctx and is cancelled when a newer call
// supersedes it or the resource is closed.
func (r *Resource[V]) Run(ctx context.Context, producer Producer[V], ro RunOptions[V]) State[V] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return r.state
	}
	unchanged := r.activated && r.run.Enabled && ro.Enabled && r.run.CacheKey == ro.CacheKey
	r.producer = producer
	r.run = ro
	if !ro.Enabled || unchanged {
		return r.state
	}
	r.activated = true

	if ro.Cache != nil {
		if v, ok := ro.Cache.Get(ro.CacheKey); ok {
			r.supersedeLocked()
			r.state = State[V]{Data: v, HasData: true, LastFetchedKey: ro.CacheKey}
			r.recordFetch(metrics.OutcomeCacheHit)
			r.publishLocked()
			return r.state
		}
	}

	r.startLocked(ctx, false)
	return r.state
}

// Refetch reruns the last producer, skipping the cache read. A successful
// result is still written back to the cache. It does nothing before the
// first enabled Run, while disabled, or after Close.
func (r *Resource[V]) Refetch(ctx context.Context) State[V] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.activated || !r.run.Enabled || r.producer == nil {
		return r.state
	}
	r.startLocked(ctx, true)
	return r.state
}

// State returns the current snapshot.
func (r *Resource[V]) State() State[V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Wait blocks until no producer call is in flight and returns the state at
// that point. It returns early with ctx.Err() when ctx is done.
func (r *Resource[V]) Wait(ctx context.Context) (State[V], error) {
	for {
		r.mu.Lock()
		st, inflight, settled := r.state, r.inflight, r.settled
		r.mu.Unlock()

		if !inflight {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-settled:
		}
	}
}

// Subscribe returns a channel that receives the state after every
// transition, and a cancel func that releases it. Slow readers only see the
// latest state. The channel is closed by cancel or Close.
func (r *Resource[V]) Subscribe() (<-chan State[V], func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan State[V], 1)
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if c, ok := r.subs[id]; ok {
				delete(r.subs, id)
				close(c)
			}
		})
	}
}

// Close cancels any in-flight call and releases subscribers. Later calls to
// Run and Refetch do nothing.
func (r *Resource[V]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.supersedeLocked()
	r.state.Loading = false
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}

// supersedeLocked invalidates the in-flight call, if any.
func (r *Resource[V]) supersedeLocked() {
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.inflight {
		r.inflight = false
		close(r.settled)
	}
}

// startLocked begins a new generation and runs the producer for it.
func (r *Resource[V]) startLocked(parent context.Context, refetch bool) {
	r.supersedeLocked()

	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.inflight = true
	r.settled = make(chan struct{})
	r.state.Loading = true
	r.publishLocked()

	go r.fetch(ctx, r.gen, r.producer, r.run, refetch)
}

func (r *Resource[V]) fetch(ctx context.Context, gen uint64, producer Producer[V], ro RunOptions[V], refetch bool) {
	ctx, span := tracing.StartFetch(ctx, r.opts.tracing, ro.CacheKey, refetch)
	v, err := call(ctx, producer)
	if err == nil && ro.Cache != nil {
		r.writeCache(gen, ro, v)
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		tracing.EndFetch(span, err, true)
		r.recordFetch(metrics.OutcomeDiscarded)
		level.Debug(r.opts.logger).Log("msg", "discarded stale result", "key", ro.CacheKey)
		return
	}

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.inflight = false
	r.state.Loading = false
	r.state.LastFetchedKey = ro.CacheKey
	if err != nil {
		r.state.Err = err
	} else {
		r.state.Data = v
		r.state.HasData = true
		r.state.Err = nil
	}
	tracing.EndFetch(span, err, false)
	close(r.settled)
	r.publishLocked()
	r.mu.Unlock()

	if err != nil {
		r.recordFetch(metrics.OutcomeError)
		level.Warn(r.opts.logger).Log("msg", "fetch failed", "key", ro.CacheKey, "err", err)
		return
	}
	r.recordFetch(metrics.OutcomeSuccess)
}

// writeCache stores v for a generation that is still current. Holding cacheMu
// across the check and the write keeps an older result from landing after a
// newer one.
func (r *Resource[V]) writeCache(gen uint64, ro RunOptions[V], v V) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.mu.Lock()
	current := gen == r.gen
	r.mu.Unlock()
	if current {
		ro.Cache.Set(ro.CacheKey, v)
	}
}

// publishLocked hands the current state to every subscriber, replacing any
// value the subscriber has not read yet.
func (r *Resource[V]) publishLocked() {
	for _, ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		ch <- r.state
	}
}

func (r *Resource[V]) recordFetch(outcome string) {
	if r.opts.metrics != nil {
		r.opts.metrics.Fetch(outcome)
	}
}

func call[V any](ctx context.Context, producer Producer[V]) (v V, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrProducerPanic, rec)
		}
	}()
	return producer(ctx)
}
