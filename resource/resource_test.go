package resource

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/rawrFetch/cache"
	"github.com/Keksclan/rawrFetch/metrics"
)

// outcomes records fetch outcomes and signals every discarded result.
type outcomes struct {
	discarded chan struct{}
	mu        sync.Mutex
	seen      []string
}

func newOutcomes() *outcomes { return &outcomes{discarded: make(chan struct{}, 8)} }

func (o *outcomes) Fetch(outcome string) {
	o.mu.Lock()
	o.seen = append(o.seen, outcome)
	o.mu.Unlock()
	if outcome == metrics.OutcomeDiscarded {
		o.discarded <- struct{}{}
	}
}

func (o *outcomes) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.seen)
}

func mustNewStore(t *testing.T) *cache.Store[string] {
	t.Helper()
	s, err := cache.NewStore[string](8, time.Minute)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func wait[V any](t *testing.T, r *Resource[V]) State[V] {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	st, err := r.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return st
}

func value(v string) Producer[string] {
	return func(context.Context) (string, error) { return v, nil }
}

func TestInitialState(t *testing.T) {
	r := New[string]()
	st := r.State()
	if !st.Loading || st.HasData || st.Err != nil || st.LastFetchedKey != "" {
		t.Fatalf("unexpected initial state: %+v", st)
	}
}

func TestRun_FetchesAndWritesCache(t *testing.T) {
	store := mustNewStore(t)
	r := New[string]()

	st := r.Run(t.Context(), value("acme"), RunOptions[string]{CacheKey: "companies:", Cache: store, Enabled: true})
	if !st.Loading {
		t.Fatal("expected Loading while the producer runs")
	}

	st = wait(t, r)
	if st.Loading || !st.HasData || st.Data != "acme" || st.LastFetchedKey != "companies:" {
		t.Fatalf("unexpected state: %+v", st)
	}
	if v, ok := store.Get("companies:"); !ok || v != "acme" {
		t.Fatalf("cache not written: %q %v", v, ok)
	}
}

func TestRun_CacheHitSkipsProducer(t *testing.T) {
	store := mustNewStore(t)
	store.Set("companies:", "cached")

	var calls atomic.Int32
	producer := func(context.Context) (string, error) {
		calls.Add(1)
		return "fresh", nil
	}

	r := New[string]()
	st := r.Run(t.Context(), producer, RunOptions[string]{CacheKey: "companies:", Cache: store, Enabled: true})
	if st.Loading || st.Data != "cached" {
		t.Fatalf("expected immediate cached state, got %+v", st)
	}
	if calls.Load() != 0 {
		t.Fatal("producer must not run on a cache hit")
	}
}

func TestRun_DisabledDoesNothing(t *testing.T) {
	var calls atomic.Int32
	producer := func(context.Context) (string, error) {
		calls.Add(1)
		return "x", nil
	}

	r := New[string]()
	st := r.Run(t.Context(), producer, RunOptions[string]{CacheKey: "k", Enabled: false})
	if !st.Loading || st.HasData {
		t.Fatalf("state must stay initial, got %+v", st)
	}
	wait(t, r)
	if calls.Load() != 0 {
		t.Fatal("producer must not run while disabled")
	}
	if st := r.Refetch(t.Context()); st.HasData {
		t.Fatalf("Refetch must not run while disabled, got %+v", st)
	}
}

func TestRun_SameKeyIsNoop(t *testing.T) {
	var calls atomic.Int32
	producer := func(context.Context) (string, error) {
		calls.Add(1)
		return "x", nil
	}

	r := New[string]()
	opts := RunOptions[string]{CacheKey: "k", Enabled: true}
	r.Run(t.Context(), producer, opts)
	wait(t, r)
	r.Run(t.Context(), producer, opts)
	wait(t, r)

	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 producer call, got %d", n)
	}
}

func TestRun_ErrorKeepsPreviousData(t *testing.T) {
	r := New[string]()
	r.Run(t.Context(), value("good"), RunOptions[string]{CacheKey: "a", Enabled: true})
	wait(t, r)

	boom := errors.New("503 from upstream")
	failing := func(context.Context) (string, error) { return "", boom }
	r.Run(t.Context(), failing, RunOptions[string]{CacheKey: "b", Enabled: true})
	st := wait(t, r)

	if !errors.Is(st.Err, boom) {
		t.Fatalf("expected producer error verbatim, got %v", st.Err)
	}
	if st.Data != "good" || !st.HasData || st.Loading {
		t.Fatalf("previous data must survive an error, got %+v", st)
	}
}

func TestRun_StaleResponseIsDiscarded(t *testing.T) {
	rec := newOutcomes()
	r := New[string](WithMetrics(rec))

	releaseA := make(chan struct{})
	aDone := make(chan struct{})
	var aCtxErr atomic.Value
	producerA := func(ctx context.Context) (string, error) {
		defer close(aDone)
		<-releaseA
		if err := ctx.Err(); err != nil {
			aCtxErr.Store(err)
		}
		return "A", nil
	}

	r.Run(t.Context(), producerA, RunOptions[string]{CacheKey: "A", Enabled: true})
	r.Run(t.Context(), value("B"), RunOptions[string]{CacheKey: "B", Enabled: true})

	st := wait(t, r)
	if st.Data != "B" || st.LastFetchedKey != "B" {
		t.Fatalf("expected B to settle, got %+v", st)
	}

	close(releaseA)
	<-aDone
	select {
	case <-rec.discarded:
	case <-time.After(2 * time.Second):
		t.Fatal("stale result was never discarded")
	}

	st = r.State()
	if st.Data != "B" || st.LastFetchedKey != "B" {
		t.Fatalf("stale result overwrote newer state: %+v", st)
	}
	if aCtxErr.Load() == nil {
		t.Fatal("superseded producer context should be cancelled")
	}
	discarded := 0
	for _, o := range rec.list() {
		if o == metrics.OutcomeDiscarded {
			discarded++
		}
	}
	if discarded != 1 {
		t.Fatalf("expected 1 discarded fetch, got %d", discarded)
	}
}

func TestRefetch_BypassesCacheRead(t *testing.T) {
	store := mustNewStore(t)
	store.Set("k", "cached")

	var n atomic.Int32
	producer := func(context.Context) (string, error) {
		if n.Add(1) == 1 {
			return "first", nil
		}
		return "second", nil
	}

	r := New[string]()
	if st := r.Run(t.Context(), producer, RunOptions[string]{CacheKey: "k", Cache: store, Enabled: true}); st.Data != "cached" {
		t.Fatalf("expected cache hit, got %+v", st)
	}

	if st := r.Refetch(t.Context()); !st.Loading {
		t.Fatalf("Refetch should re-enter Loading, got %+v", st)
	}
	st := wait(t, r)
	if st.Data != "first" {
		t.Fatalf("expected fresh value, got %+v", st)
	}
	if v, _ := store.Get("k"); v != "first" {
		t.Fatalf("Refetch must write back to the cache, got %q", v)
	}
}

func TestProducerPanicBecomesError(t *testing.T) {
	r := New[string]()
	panicking := func(context.Context) (string, error) { panic("nil map") }

	r.Run(t.Context(), panicking, RunOptions[string]{CacheKey: "k", Enabled: true})
	st := wait(t, r)
	if !errors.Is(st.Err, ErrProducerPanic) {
		t.Fatalf("expected ErrProducerPanic, got %v", st.Err)
	}
	if st.Loading {
		t.Fatal("a panicking producer must still settle")
	}
}

func TestSubscribe_ReceivesTransitions(t *testing.T) {
	r := New[string]()
	ch, cancel := r.Subscribe()
	defer cancel()

	release := make(chan struct{})
	producer := func(context.Context) (string, error) {
		<-release
		return "done", nil
	}
	r.Run(t.Context(), producer, RunOptions[string]{CacheKey: "k", Enabled: true})

	st := <-ch
	if !st.Loading {
		t.Fatalf("expected a Loading transition first, got %+v", st)
	}
	close(release)

	select {
	case st = <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settled state")
	}
	if st.Loading || st.Data != "done" {
		t.Fatalf("unexpected settled state: %+v", st)
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
}

func TestClose_CancelsInFlight(t *testing.T) {
	r := New[string]()
	ch, _ := r.Subscribe()

	started := make(chan struct{})
	producer := func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}
	r.Run(t.Context(), producer, RunOptions[string]{CacheKey: "k", Enabled: true})
	<-started
	r.Close()

	st := wait(t, r)
	if st.Loading || st.HasData || st.Err != nil {
		t.Fatalf("unexpected state after Close: %+v", st)
	}
	for range ch {
	}

	if st := r.Run(t.Context(), value("late"), RunOptions[string]{CacheKey: "other", Enabled: true}); st.HasData {
		t.Fatal("Run after Close must not start work")
	}
}

func TestWait_HonoursContext(t *testing.T) {
	r := New[string]()
	block := make(chan struct{})
	defer close(block)
	producer := func(context.Context) (string, error) {
		<-block
		return "", nil
	}
	r.Run(t.Context(), producer, RunOptions[string]{CacheKey: "k", Enabled: true})

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

// slowCache blocks every Set until release is closed.
type slowCache struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *slowCache) Get(string) (string, bool) { return "", false }

func (c *slowCache) Set(string, string) {
	c.once.Do(func() { close(c.entered) })
	<-c.release
}

func TestRun_SlowCacheWriteDoesNotBlockState(t *testing.T) {
	c := &slowCache{entered: make(chan struct{}), release: make(chan struct{})}
	r := New[string]()
	r.Run(t.Context(), value("v"), RunOptions[string]{CacheKey: "k", Cache: c, Enabled: true})

	<-c.entered
	got := make(chan State[string], 1)
	go func() { got <- r.State() }()
	select {
	case st := <-got:
		if !st.Loading {
			t.Fatalf("expected Loading while the cache write is pending, got %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("State() blocked behind the cache write")
	}

	close(c.release)
	if st := wait(t, r); st.Data != "v" {
		t.Fatalf("got %+v", st)
	}
}

func TestRun_SupersededResultDoesNotWriteCache(t *testing.T) {
	store := mustNewStore(t)
	rec := newOutcomes()
	r := New[string](WithMetrics(rec))

	release := make(chan struct{})
	slow := func(context.Context) (string, error) {
		<-release
		return "old", nil
	}
	r.Run(t.Context(), slow, RunOptions[string]{CacheKey: "old", Cache: store, Enabled: true})
	r.Run(t.Context(), value("new"), RunOptions[string]{CacheKey: "new", Cache: store, Enabled: true})
	wait(t, r)

	close(release)
	select {
	case <-rec.discarded:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded result was never discarded")
	}
	if v, ok := store.Get("old"); ok {
		t.Fatalf("superseded result was cached: %q", v)
	}
	if v, ok := store.Get("new"); !ok || v != "new" {
		t.Fatalf("Get(new) = (%q, %v)", v, ok)
	}
}
