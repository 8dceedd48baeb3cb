package cache

import (
	"bytes"
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// l1AvgEntry is the payload size assumed when sizing ristretto's admission
// counters from a byte budget.
const l1AvgEntry = 512

// L1 is an in-process byte tier backed by ristretto. Its budget is counted in
// payload bytes, so a few large responses can displace many small ones.
type L1 struct {
	rc      *ristretto.Cache[string, []byte]
	maxCost int64
}

// NewL1 creates an L1 tier holding at most maxBytes of keys and payloads.
func NewL1(maxBytes int64) (*L1, error) {
	if maxBytes <= 0 {
		return nil, ErrInvalidConfiguration
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        max(10*maxBytes/l1AvgEntry, 1000),
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &L1{rc: rc, maxCost: maxBytes}, nil
}

func (l *L1) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := l.rc.Get(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Set admits val with a cost of its size. Values larger than the whole budget
// are dropped, and ristretto may reject others under contention; both read
// back as a miss.
func (l *L1) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	cost := int64(len(key) + len(val))
	if cost > l.maxCost {
		l.rc.Del(key)
		return nil
	}
	if l.rc.SetWithTTL(key, bytes.Clone(val), cost, max(ttl, 0)) {
		l.rc.Wait()
	}
	return nil
}

func (l *L1) Delete(_ context.Context, key string) error {
	l.rc.Del(key)
	return nil
}

// Clear drops every entry.
func (l *L1) Clear(context.Context) error {
	l.rc.Clear()
	return nil
}

// Close stops ristretto's background goroutines.
func (l *L1) Close() error {
	l.rc.Close()
	return nil
}
