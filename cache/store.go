package cache

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// EvictReason tells an eviction callback why an entry left the store.
type EvictReason int

const (
	// EvictCapacity means the entry was the least recently used when a new
	// key needed room.
	EvictCapacity EvictReason = iota
	// EvictExpired means the entry was found past its expiry on lookup.
	EvictExpired
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictExpired:
		return "expired"
	default:
		return fmt.Sprintf("EvictReason(%d)", int(r))
	}
}

// entry is a single cached value. lastAccessed drives LRU order; seq records
// insertion order and breaks ties between equal lastAccessed values.
type entry[V any] struct {
	key          string
	value        V
	expiresAt    time.Time
	lastAccessed time.Time
	seq          uint64
}

// Store is a capacity-bounded key/value cache with absolute TTL expiry and
// least-recently-used eviction. All methods are safe for concurrent use.
//
// Invariants: Len() <= capacity after every mutation, and no value is ever
// returned once now >= its expiry.
type Store[V any] struct {
	mu        sync.Mutex
	entries   map[string]*entry[V]
	seq       uint64
	clearedAt time.Time

	capacity int
	ttl      time.Duration

	nowFunc func() time.Time
	onEvict func(key string, reason EvictReason)
	metrics Metrics
	logger  log.Logger
	persist *persister
}

// StoreOption configures optional Store behaviour.
type StoreOption func(*storeConfig)

type storeConfig struct {
	nowFunc func() time.Time
	onEvict func(key string, reason EvictReason)
	metrics Metrics
	logger  log.Logger
	persist *persister
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.nowFunc = now }
}

// WithOnEvict registers a callback invoked after an entry is evicted for
// capacity or dropped as expired. It runs without the store lock held.
func WithOnEvict(fn func(key string, reason EvictReason)) StoreOption {
	return func(c *storeConfig) { c.onEvict = fn }
}

// WithMetrics reports hits, misses, evictions and expirations to m.
func WithMetrics(m Metrics) StoreOption {
	return func(c *storeConfig) { c.metrics = m }
}

// WithLogger sets the logger used for backend failures.
func WithLogger(l log.Logger) StoreOption {
	return func(c *storeConfig) { c.logger = l }
}

// WithBackend mirrors every Set into b and hydrates memory misses from it.
// Values are encoded with codec; a nil codec means JSON. The timeout bounds
// each backend call; zero means one second.
func WithBackend(b Backend, codec Codec, timeout time.Duration) StoreOption {
	return func(c *storeConfig) {
		if codec == nil {
			codec = JSONCodec{}
		}
		if timeout <= 0 {
			timeout = time.Second
		}
		c.persist = &persister{backend: b, codec: codec, timeout: timeout}
	}
}

// NewStore creates a Store holding at most capacity entries, each valid for
// ttl after it was last written. Non-positive values are rejected with
// ErrInvalidConfiguration.
func NewStore[V any](capacity int, ttl time.Duration, opts ...StoreOption) (*Store[V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfiguration, capacity)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidConfiguration, ttl)
	}

	cfg := storeConfig{
		nowFunc: time.Now,
		metrics: NoopMetrics{},
		logger:  log.NewNopLogger(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	return &Store[V]{
		entries:  make(map[string]*entry[V], capacity),
		capacity: capacity,
		ttl:      ttl,
		nowFunc:  cfg.nowFunc,
		onEvict:  cfg.onEvict,
		metrics:  cfg.metrics,
		logger:   cfg.logger,
		persist:  cfg.persist,
	}, nil
}

// Capacity returns the maximum number of entries.
func (s *Store[V]) Capacity() int { return s.capacity }

// TTL returns the lifetime given to every written entry.
func (s *Store[V]) TTL() time.Duration { return s.ttl }

// Get returns the value stored under key. A hit refreshes the entry's
// last-access time; an expired entry is removed and reported as a miss.
// When a backend is configured, a memory miss is looked up there.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	now := s.nowFunc()

	s.mu.Lock()
	e, ok := s.entries[key]
	switch {
	case ok && now.Before(e.expiresAt):
		e.lastAccessed = now
		v := e.value
		s.mu.Unlock()
		s.metrics.Hit()
		return v, true
	case ok:
		delete(s.entries, key)
		s.mu.Unlock()
		s.metrics.Expire()
		s.notifyEvict(key, EvictExpired)
	default:
		s.mu.Unlock()
	}

	if s.persist != nil {
		if v, exp, found := s.hydrate(key, now); found {
			s.insert(key, v, exp, now)
			s.metrics.Hit()
			return v, true
		}
	}

	s.metrics.Miss()
	return zero, false
}

// Set stores value under key, replacing any existing entry. A newly inserted
// key evicts the least recently used entry when the store is full.
func (s *Store[V]) Set(key string, value V) {
	now := s.nowFunc()
	exp := now.Add(s.ttl)
	s.insert(key, value, exp, now)

	if s.persist != nil {
		s.writeThrough(key, value, exp, now)
	}
}

// Delete removes key from memory and from the backend, if any.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	if s.persist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.persist.timeout)
		defer cancel()
		if err := s.persist.backend.Delete(ctx, key); err != nil {
			level.Warn(s.logger).Log("msg", "cache backend delete failed", "key", key, "err", err)
		}
	}
}

// Clear drops every entry. A backend implementing [Clearer] is emptied too;
// any other backend has the keys held in memory deleted. Either way, entries
// written through before Clear are never hydrated again, even when the
// backend could not be cleared.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	keys := slices.Collect(maps.Keys(s.entries))
	clear(s.entries)
	s.clearedAt = s.nowFunc()
	s.mu.Unlock()

	if s.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.persist.timeout)
	defer cancel()
	if c, ok := s.persist.backend.(Clearer); ok {
		if err := c.Clear(ctx); err != nil {
			level.Warn(s.logger).Log("msg", "cache backend clear failed", "err", err)
		}
		return
	}
	for _, k := range keys {
		if err := s.persist.backend.Delete(ctx, k); err != nil {
			level.Warn(s.logger).Log("msg", "cache backend delete failed", "key", k, "err", err)
		}
	}
}

// Len returns the number of entries currently held in memory, including
// expired entries that have not been looked up yet.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Keys returns the in-memory keys, most recently used first.
func (s *Store[V]) Keys() []string {
	s.mu.Lock()
	list := make([]*entry[V], 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	s.mu.Unlock()

	slices.SortFunc(list, func(a, b *entry[V]) int {
		if c := b.lastAccessed.Compare(a.lastAccessed); c != 0 {
			return c
		}
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		}
		return 0
	})

	keys := make([]string, len(list))
	for i, e := range list {
		keys[i] = e.key
	}
	return keys
}

func (s *Store[V]) insert(key string, value V, exp, now time.Time) {
	s.mu.Lock()
	s.seq++
	if e, ok := s.entries[key]; ok {
		e.value = value
		e.expiresAt = exp
		e.lastAccessed = now
		e.seq = s.seq
		s.mu.Unlock()
		return
	}

	var (
		evicted    string
		hasEvicted bool
	)
	if len(s.entries) >= s.capacity {
		evicted, hasEvicted = s.victim(), true
		delete(s.entries, evicted)
	}
	s.entries[key] = &entry[V]{
		key:          key,
		value:        value,
		expiresAt:    exp,
		lastAccessed: now,
		seq:          s.seq,
	}
	s.mu.Unlock()

	if hasEvicted {
		s.metrics.Eviction()
		s.notifyEvict(evicted, EvictCapacity)
	}
}

// victim returns the key with the smallest lastAccessed, preferring the
// earliest inserted among equals. Must be called with s.mu held on a
// non-empty store.
func (s *Store[V]) victim() string {
	var v *entry[V]
	for _, e := range s.entries {
		if v == nil {
			v = e
			continue
		}
		if c := e.lastAccessed.Compare(v.lastAccessed); c < 0 || (c == 0 && e.seq < v.seq) {
			v = e
		}
	}
	return v.key
}

func (s *Store[V]) notifyEvict(key string, reason EvictReason) {
	if s.onEvict != nil {
		s.onEvict(key, reason)
	}
}

func (s *Store[V]) hydrate(key string, now time.Time) (V, time.Time, bool) {
	var v V
	ctx, cancel := context.WithTimeout(context.Background(), s.persist.timeout)
	defer cancel()

	raw, ok, err := s.persist.backend.Get(ctx, key)
	if err != nil {
		level.Warn(s.logger).Log("msg", "cache backend get failed", "key", key, "err", err)
		return v, time.Time{}, false
	}
	if !ok {
		return v, time.Time{}, false
	}

	exp, payload, err := decodeEnvelope(raw)
	if err != nil {
		level.Warn(s.logger).Log("msg", "discarding malformed backend entry", "key", key, "err", err)
		return v, time.Time{}, false
	}
	if !now.Before(exp) || s.writtenBeforeClear(exp) {
		return v, time.Time{}, false
	}
	if err := s.persist.codec.Unmarshal(payload, &v); err != nil {
		level.Warn(s.logger).Log("msg", "cache backend decode failed", "key", key, "err", err)
		return v, time.Time{}, false
	}
	return v, exp, true
}

// writtenBeforeClear reports whether a backend entry expiring at exp was
// written before the last Clear. Every write expires exactly ttl after it
// happened; the envelope keeps millisecond precision.
func (s *Store[V]) writtenBeforeClear(exp time.Time) bool {
	s.mu.Lock()
	cleared := s.clearedAt
	s.mu.Unlock()
	return !cleared.IsZero() && exp.Add(-s.ttl).UnixMilli() < cleared.UnixMilli()
}

func (s *Store[V]) writeThrough(key string, value V, exp, now time.Time) {
	payload, err := s.persist.codec.Marshal(value)
	if err != nil {
		level.Warn(s.logger).Log("msg", "cache backend encode failed", "key", key, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.persist.timeout)
	defer cancel()
	if err := s.persist.backend.Set(ctx, key, encodeEnvelope(exp, payload), exp.Sub(now)); err != nil {
		level.Warn(s.logger).Log("msg", "cache backend set failed", "key", key, "err", err)
	}
}
