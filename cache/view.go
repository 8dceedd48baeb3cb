package cache

import "encoding/json"

// jsonView adapts a shared byte store to a typed Cache. Every Get decodes a
// fresh copy, so callers can never mutate what another consumer reads.
type jsonView[V any] struct {
	store *Store[[]byte]
}

// JSON returns a typed view over s. Values are JSON-encoded on Set and decoded
// on Get; an entry that fails to decode as V is reported as a miss.
func JSON[V any](s *Store[[]byte]) Cache[V] {
	return jsonView[V]{store: s}
}

func (v jsonView[V]) Get(key string) (V, bool) {
	var out V
	raw, ok := v.store.Get(key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

func (v jsonView[V]) Set(key string, value V) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	v.store.Set(key, raw)
}
