// Package metrics exposes the Prometheus collectors shared by the cache,
// resource and apiclient packages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch outcomes recorded by resources.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeDiscarded = "discarded"
	OutcomeCacheHit  = "cache_hit"
)

// Metrics bundles every rawrFetch collector. The zero value is not usable;
// construct it with [New].
type Metrics struct {
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	cacheEvictions   *prometheus.CounterVec
	cacheExpirations *prometheus.CounterVec
	fetches          *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is convenient in tests and when metrics are not
// scraped.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rawrfetch",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache lookups that returned a value.",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rawrfetch",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache lookups that found nothing usable.",
		}, []string{"cache"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rawrfetch",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries removed to stay within capacity.",
		}, []string{"cache"}),
		cacheExpirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rawrfetch",
			Subsystem: "cache",
			Name:      "expirations_total",
			Help:      "Entries dropped because their TTL had passed.",
		}, []string{"cache"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rawrfetch",
			Subsystem: "resource",
			Name:      "fetches_total",
			Help:      "Resource fetches by outcome.",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rawrfetch",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of REST API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path_group", "code"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.cacheHits,
			m.cacheMisses,
			m.cacheEvictions,
			m.cacheExpirations,
			m.fetches,
			m.requestDuration,
		)
	}
	return m
}

// Cache returns a recorder for the cache called name. It satisfies
// cache.Metrics.
func (m *Metrics) Cache(name string) *CacheRecorder {
	return &CacheRecorder{
		hits:        m.cacheHits.WithLabelValues(name),
		misses:      m.cacheMisses.WithLabelValues(name),
		evictions:   m.cacheEvictions.WithLabelValues(name),
		expirations: m.cacheExpirations.WithLabelValues(name),
	}
}

// Fetch records a resource fetch outcome.
func (m *Metrics) Fetch(outcome string) {
	m.fetches.WithLabelValues(outcome).Inc()
}

// ObserveRequest records the latency of one API request. code is the gRPC
// code name the response mapped to ("OK" on success).
func (m *Metrics) ObserveRequest(pathGroup, code string, d time.Duration) {
	m.requestDuration.WithLabelValues(pathGroup, code).Observe(d.Seconds())
}

// CacheRecorder reports the events of a single named cache.
type CacheRecorder struct {
	hits, misses, evictions, expirations prometheus.Counter
}

func (r *CacheRecorder) Hit()      { r.hits.Inc() }
func (r *CacheRecorder) Miss()     { r.misses.Inc() }
func (r *CacheRecorder) Eviction() { r.evictions.Inc() }
func (r *CacheRecorder) Expire()   { r.expirations.Inc() }
