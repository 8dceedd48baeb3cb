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

const (
	defaultCacheCapacity = 256
	defaultCacheTTL      = 5 * time.Minute
	cacheName            = "shared"
	redisKeyPrefix       = "rawrfetch:"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	middlewares core.MiddlewareBuilder

	cacheCapacity int
	cacheTTL      time.Duration
	l1MaxCost     int64
	redis         *redisConfig
	sqlitePath    string

	recovery      bool
	timeout       time.Duration
	baseTransport http.RoundTripper
	retry         *retry.Config
	breaker       *breaker.Config
	globalLimiter *ratelimit.Limiter
	resolver      *policy.Resolver
	tokenSource   transport.TokenSource

	tracing  *tracing.Config
	logger   log.Logger
	registry prometheus.Registerer
}

type redisConfig struct {
	addr     string
	password string
	db       int
}
