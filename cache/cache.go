// Package cache provides a size-bounded, TTL-expiring response cache and the
// persistence backends it can write through to.
//
// [Store] is the in-memory LRU keyed by strings built with the cachekey
// package. It optionally mirrors entries into a [Backend] (ristretto, Redis or
// SQLite) so cached responses survive a restart or are shared across
// processes.
package cache

// Cache is the read/write contract consumers of cached responses depend on.
// *Store[V] satisfies it, as does the typed view returned by [JSON].
type Cache[V any] interface {
	// Get returns the cached value for key. The boolean reports a hit.
	Get(key string) (V, bool)

	// Set stores value under key with the cache's configured TTL.
	Set(key string, value V)
}

// Metrics receives cache lifecycle events. The metrics package provides a
// Prometheus implementation.
type Metrics interface {
	Hit()
	Miss()
	Eviction()
	Expire()
}

// NoopMetrics discards all events.
type NoopMetrics struct{}

func (NoopMetrics) Hit()      {}
func (NoopMetrics) Miss()     {}
func (NoopMetrics) Eviction() {}
func (NoopMetrics) Expire()   {}
