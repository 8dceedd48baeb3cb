// Package rawrfetch is a client-side data layer for the workspace REST API:
// a bounded LRU+TTL response cache with optional persistent tiers, async
// resources that discard stale responses, debounced search, client-side
// pagination and a resilient HTTP client.
//
// A Client assembles all of it from functional options:
//
//	c, err := rawrfetch.New("https://api.example.com/v1",
//		append(rawrfetch.DefaultOptions(),
//			rawrfetch.WithCache(500, 5*time.Minute),
//			rawrfetch.WithRateLimitGlobal(20, 10),
//		)...,
//	)
package rawrfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Keksclan/rawrFetch/apiclient"
	"github.com/Keksclan/rawrFetch/breaker"
	"github.com/Keksclan/rawrFetch/cache"
	"github.com/Keksclan/rawrFetch/internal/core"
	"github.com/Keksclan/rawrFetch/metrics"
	"github.com/Keksclan/rawrFetch/query"
	"github.com/Keksclan/rawrFetch/resource"
	"github.com/Keksclan/rawrFetch/tracing"
	"github.com/Keksclan/rawrFetch/transport"
)

// Client owns the shared cache, the API client and the instrumentation every
// resource created from it uses.
type Client struct {
	api      *apiclient.Client
	store    *cache.Store[[]byte]
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	tracing  *tracing.Config
	logger   log.Logger
	closers  []io.Closer
}

// New creates a Client for the API at baseURL. Middleware execution order is
// determined by fixed priority levels, not by the order options are passed.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := config{
		cacheCapacity: defaultCacheCapacity,
		cacheTTL:      defaultCacheTTL,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.NewNopLogger()
	}

	c := &Client{
		metrics: metrics.New(cfg.registry),
		tracing: cfg.tracing,
		logger:  cfg.logger,
	}
	if g, ok := cfg.registry.(prometheus.Gatherer); ok {
		c.gatherer = g
	}

	backend, err := c.buildBackend(&cfg)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	storeOpts := []cache.StoreOption{
		cache.WithMetrics(c.metrics.Cache(cacheName)),
		cache.WithLogger(log.With(cfg.logger, "component", "cache")),
		cache.WithOnEvict(func(key string, reason cache.EvictReason) {
			level.Debug(cfg.logger).Log("msg", "cache entry removed", "key", key, "reason", reason)
		}),
	}
	if backend != nil {
		storeOpts = append(storeOpts, cache.WithBackend(backend, nil, 0))
	}
	c.store, err = cache.NewStore[[]byte](cfg.cacheCapacity, cfg.cacheTTL, storeOpts...)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	c.api, err = apiclient.New(baseURL, c.apiOptions(&cfg)...)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// buildBackend assembles the persistent tiers behind the in-memory cache.
// It returns nil when none is configured.
func (c *Client) buildBackend(cfg *config) (cache.Backend, error) {
	if cfg.redis != nil && cfg.sqlitePath != "" {
		return nil, fmt.Errorf("%w: redis and sqlite tiers are mutually exclusive", cache.ErrInvalidConfiguration)
	}

	var next cache.Backend
	switch {
	case cfg.redis != nil:
		r := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.redis.addr,
			Password: cfg.redis.password,
			DB:       cfg.redis.db,
			Prefix:   redisKeyPrefix,
		})
		c.closers = append(c.closers, r)
		next = r
	case cfg.sqlitePath != "":
		db, err := cache.NewSQLite(cfg.sqlitePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, db)
		next = db
	}

	if cfg.l1MaxCost <= 0 {
		return next, nil
	}
	l1, err := cache.NewL1(cfg.l1MaxCost)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, l1)
	if next == nil {
		return l1, nil
	}
	return cache.NewTiered(l1, next), nil
}

// apiOptions registers the built-in transport middleware and translates the
// resilience settings into apiclient options.
func (c *Client) apiOptions(cfg *config) []apiclient.Option {
	mws := &cfg.middlewares
	if cfg.recovery {
		mws.Add(core.OrderRecovery, transport.Recovery())
	}
	mws.Add(core.OrderRequestID, transport.RequestID())
	if cfg.tracing != nil {
		tc := cfg.tracing
		mws.Add(core.OrderTracing, func(next http.RoundTripper) http.RoundTripper {
			return tracing.Transport(tc, next)
		})
	}
	mws.Add(core.OrderWorkspace, transport.Workspace())
	if cfg.tokenSource != nil {
		mws.Add(core.OrderAuth, transport.Bearer(cfg.tokenSource))
	}
	if cfg.globalLimiter != nil || cfg.resolver != nil {
		mws.Add(core.OrderRateLimit, transport.RateLimit(cfg.globalLimiter, cfg.resolver))
	}

	logger := log.With(cfg.logger, "component", "apiclient")
	opts := []apiclient.Option{
		apiclient.WithMiddleware(mws.Build()...),
		apiclient.WithBaseTransport(cfg.baseTransport),
		apiclient.WithResolver(cfg.resolver),
		apiclient.WithMetrics(c.metrics),
		apiclient.WithLogger(logger),
	}
	if cfg.timeout > 0 {
		opts = append(opts, apiclient.WithTimeout(cfg.timeout))
	}
	if cfg.retry != nil {
		rc := *cfg.retry
		if rc.OnRetry == nil {
			rc.OnRetry = func(attempt int, err error, delay time.Duration) {
				level.Debug(logger).Log("msg", "retrying request", "attempt", attempt, "delay", delay, "err", err)
			}
		}
		opts = append(opts, apiclient.WithRetry(rc))
	}
	if cfg.breaker != nil {
		bc := *cfg.breaker
		if bc.IsFailure == nil {
			bc.IsFailure = apiclient.IsServerFailure
		}
		if bc.OnStateChange == nil {
			bc.OnStateChange = func(from, to breaker.State) {
				level.Warn(logger).Log("msg", "circuit breaker state change", "from", from, "to", to)
			}
		}
		opts = append(opts, apiclient.WithBreaker(breaker.New(bc)))
	}
	return opts
}

// API returns the underlying REST client.
func (c *Client) API() *apiclient.Client { return c.api }

// Cache returns the shared response cache. Use cache.JSON for a typed view.
func (c *Client) Cache() *cache.Store[[]byte] { return c.store }

// Metrics returns the collectors used by the client.
func (c *Client) Metrics() *metrics.Metrics { return c.metrics }

// MetricsHandler serves the registry passed to WithMetrics, or the default
// Prometheus registry when that registry cannot be gathered.
func (c *Client) MetricsHandler() http.Handler {
	if c.gatherer != nil {
		return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// Close releases the persistent cache tiers.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// resourceOptions are the options every resource created from c shares.
func (c *Client) resourceOptions() []resource.Option {
	return []resource.Option{
		resource.WithLogger(log.With(c.logger, "component", "resource")),
		resource.WithMetrics(c.metrics),
		resource.WithTracing(c.tracing),
	}
}

// Resource is a [resource.Resource] bound to the client's shared cache.
type Resource[V any] struct {
	*resource.Resource[V]
	cache cache.Cache[V]
}

// NewResource creates a resource that reads and writes c's shared cache
// through a JSON view.
func NewResource[V any](c *Client) *Resource[V] {
	return &Resource[V]{
		Resource: resource.New[V](c.resourceOptions()...),
		cache:    cache.JSON[V](c.store),
	}
}

// Load runs producer for key with the shared cache enabled.
func (r *Resource[V]) Load(ctx context.Context, key string, producer resource.Producer[V]) resource.State[V] {
	return r.Run(ctx, producer, resource.RunOptions[V]{CacheKey: key, Cache: r.cache, Enabled: true})
}

// NewQuery starts a list view that uses c's shared cache and instrumentation
// unless cfg sets its own.
func NewQuery[T any](ctx context.Context, c *Client, cfg query.Config[T]) *query.Query[T] {
	if cfg.Cache == nil {
		cfg.Cache = cache.JSON[[]T](c.store)
	}
	if cfg.Options == nil {
		cfg.Options = c.resourceOptions()
	}
	return query.New(ctx, cfg)
}
