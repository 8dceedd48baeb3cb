package rawrfetch

import (
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Keksclan/rawrFetch/breaker"
	"github.com/Keksclan/rawrFetch/internal/core"
	"github.com/Keksclan/rawrFetch/policy"
	"github.com/Keksclan/rawrFetch/ratelimit"
	"github.com/Keksclan/rawrFetch/retry"
	"github.com/Keksclan/rawrFetch/tracing"
	"github.com/Keksclan/rawrFetch/transport"
)

// Option configures a Client.
type Option func(*config)

// WithCache sets the capacity and TTL of the shared in-memory cache.
func WithCache(capacity int, ttl time.Duration) Option {
	return func(c *config) {
		c.cacheCapacity = capacity
		c.cacheTTL = ttl
	}
}

// WithCacheL1 adds a ristretto tier with the given maximum cost (bytes)
// behind the in-memory cache.
func WithCacheL1(maxCost int64) Option {
	return func(c *config) { c.l1MaxCost = maxCost }
}

// WithCacheRedis adds a Redis tier shared between processes. Combined with
// WithCacheL1 the two form a tiered backend.
func WithCacheRedis(addr, password string, db int) Option {
	return func(c *config) {
		c.redis = &redisConfig{addr: addr, password: password, db: db}
	}
}

// WithCacheSQLite adds a SQLite tier at path that survives restarts. It
// cannot be combined with WithCacheRedis.
func WithCacheSQLite(path string) Option {
	return func(c *config) { c.sqlitePath = path }
}

// WithRecovery turns panics in the transport chain into request errors.
func WithRecovery() Option {
	return func(c *config) { c.recovery = true }
}

// WithTimeout bounds each request attempt that has no policy timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithHTTPTransport replaces http.DefaultTransport at the bottom of the
// middleware chain.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(c *config) { c.baseTransport = rt }
}

// WithRetry retries idempotent requests according to cfg.
func WithRetry(cfg retry.Config) Option {
	return func(c *config) { c.retry = &cfg }
}

// WithBreaker guards the API with a circuit breaker. A nil IsFailure counts
// only server-side failures (see apiclient.IsServerFailure).
func WithBreaker(cfg breaker.Config) Option {
	return func(c *config) { c.breaker = &cfg }
}

// WithRateLimitGlobal paces all requests to rps with the given burst.
// Per-group limits from WithPolicies take precedence for their paths.
func WithRateLimitGlobal(rps float64, burst int) Option {
	return func(c *config) { c.globalLimiter = ratelimit.NewLimiter(rps, burst) }
}

// WithPolicies sets per-path policies (timeouts, rate limits, retry opt-out).
func WithPolicies(r *policy.Resolver) Option {
	return func(c *config) { c.resolver = r }
}

// WithTokenSource sends "Authorization: Bearer <token>" on every request.
func WithTokenSource(ts transport.TokenSource) Option {
	return func(c *config) { c.tokenSource = ts }
}

// WithOpenTelemetry traces requests and resource fetches. A nil cfg uses the
// global tracer provider and propagator.
func WithOpenTelemetry(cfg *tracing.Config) Option {
	return func(c *config) {
		if cfg == nil {
			cfg = &tracing.Config{}
		}
		c.tracing = cfg
	}
}

// WithLogger sets the go-kit logger shared by every component.
func WithLogger(l log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics registers the Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) { c.registry = reg }
}

// WithMiddleware appends a transport middleware. User middlewares run after
// the built-in ones, in registration order.
func WithMiddleware(mw transport.Middleware) Option {
	return func(c *config) { c.middlewares.Add(core.OrderUser, mw) }
}
