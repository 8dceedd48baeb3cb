// Package query wires the data layer into a list view: a debounced search
// box and filters derive a cache key, the key drives a resource fetch through
// the shared cache, and the result is paginated on the client.
package query

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/Keksclan/rawrFetch/cache"
	"github.com/Keksclan/rawrFetch/cachekey"
	"github.com/Keksclan/rawrFetch/debounce"
	"github.com/Keksclan/rawrFetch/page"
	"github.com/Keksclan/rawrFetch/resource"
)

const (
	defaultDebounce = 300 * time.Millisecond
	defaultPageSize = 10
)

// Request is what a fetch is issued for.
type Request struct {
	Search string
	Filter cachekey.Params
}

// Config describes one list view.
type Config[T any] struct {
	// Resource prefixes cache keys, e.g. "companies".
	Resource string
	// Fetch loads the full list for a request. Required.
	Fetch func(ctx context.Context, req Request) ([]T, error)
	// Cache is shared with other views. Nil disables caching.
	Cache cache.Cache[[]T]
	// Debounce delays search input; zero uses 300ms and a negative value
	// disables debouncing.
	Debounce time.Duration
	// PageSize defaults to 10.
	PageSize int
	// Options are passed to the underlying resource.
	Options []resource.Option
}

// Query is a live list view. All methods are safe for concurrent use.
type Query[T any] struct {
	ctx    context.Context
	cfg    Config[T]
	res    *resource.Resource[[]T]
	search *debounce.Debouncer[string]

	// runMu spans snapshotting the request and handing it to the resource,
	// so the last Run always carries the latest search and filters.
	runMu sync.Mutex

	mu     sync.Mutex
	filter cachekey.Params
	window page.Window
}

// New starts the view and issues the first fetch. ctx bounds the lifetime
// of every fetch the view makes.
func New[T any](ctx context.Context, cfg Config[T]) *Query[T] {
	switch {
	case cfg.Debounce == 0:
		cfg.Debounce = defaultDebounce
	case cfg.Debounce < 0:
		cfg.Debounce = 0
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	q := &Query[T]{
		ctx:    ctx,
		cfg:    cfg,
		res:    resource.New[[]T](cfg.Options...),
		filter: cachekey.Params{},
		window: page.Window{CurrentPage: 1, PageSize: cfg.PageSize},
	}
	q.search = debounce.New("", cfg.Debounce, debounce.WithOnSettle(func(string) {
		q.resetPage()
		q.run()
	}))
	q.run()
	return q
}

// SetSearch feeds raw search input. The fetch follows once the input has been
// stable for the debounce delay.
func (q *Query[T]) SetSearch(raw string) { q.search.Observe(raw) }

// SetFilter sets or, with a nil value, removes a filter parameter, returns to
// page 1 and fetches.
func (q *Query[T]) SetFilter(key string, value any) {
	q.mu.Lock()
	if value == nil {
		delete(q.filter, key)
	} else {
		q.filter[key] = value
	}
	q.window = q.window.GoTo(1)
	q.mu.Unlock()
	q.run()
}

// GoToPage moves to page n. Out-of-range pages are clamped by Page.
func (q *Query[T]) GoToPage(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.window = q.window.GoTo(n)
}

// SetPageSize changes the page size and returns to page 1.
func (q *Query[T]) SetPageSize(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.window = q.window.WithPageSize(n)
}

// Page returns the current page of the latest data.
func (q *Query[T]) Page() page.Result[T] {
	q.mu.Lock()
	w := q.window
	q.mu.Unlock()
	return page.Slice(q.res.State().Data, w)
}

// State returns the underlying resource state.
func (q *Query[T]) State() resource.State[[]T] { return q.res.State() }

// Key returns the cache key for the current search and filters.
func (q *Query[T]) Key() string { return q.request().key(q.cfg.Resource) }

// Refetch reloads the current request, bypassing the cache read.
func (q *Query[T]) Refetch(ctx context.Context) resource.State[[]T] { return q.res.Refetch(ctx) }

// Wait blocks until the in-flight fetch, if any, settles.
func (q *Query[T]) Wait(ctx context.Context) (resource.State[[]T], error) { return q.res.Wait(ctx) }

// Subscribe forwards to the underlying resource.
func (q *Query[T]) Subscribe() (<-chan resource.State[[]T], func()) { return q.res.Subscribe() }

// Close stops the debouncer and cancels any fetch in flight.
func (q *Query[T]) Close() {
	q.search.Stop()
	q.res.Close()
}

func (q *Query[T]) request() Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Request{Search: q.search.Value(), Filter: maps.Clone(q.filter)}
}

func (q *Query[T]) resetPage() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.window = q.window.GoTo(1)
}

func (q *Query[T]) run() {
	q.runMu.Lock()
	defer q.runMu.Unlock()

	req := q.request()
	fetch := q.cfg.Fetch
	q.res.Run(q.ctx, func(ctx context.Context) ([]T, error) {
		return fetch(ctx, req)
	}, resource.RunOptions[[]T]{
		CacheKey: req.key(q.cfg.Resource),
		Cache:    q.cfg.Cache,
		Enabled:  fetch != nil,
	})
}

func (r Request) key(name string) string {
	p := maps.Clone(r.Filter)
	if p == nil {
		p = cachekey.Params{}
	}
	return p.SetNonZero("search", r.Search).Key(name)
}
