package cache

import (
	"context"
	"errors"
	"time"
)

// Tiered puts an [L1] in front of a slower shared or durable backend.
type Tiered struct {
	l1   *L1
	next Backend
}

// NewTiered combines l1 with next.
func NewTiered(l1 *L1, next Backend) *Tiered {
	return &Tiered{l1: l1, next: next}
}

// Get serves from L1 when it can and otherwise promotes the next tier's value
// into L1. Promotion uses no TTL of its own: the payload written by [Store]
// carries its absolute expiry, which is checked on decode.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, _ := t.l1.Get(ctx, key); ok {
		return v, true, nil
	}
	v, ok, err := t.next.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = t.l1.Set(ctx, key, v, 0)
	return v, true, nil
}

// Set writes L1 unconditionally so the local copy stays current even when
// the next tier is unreachable; the next tier's error is still reported.
func (t *Tiered) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	_ = t.l1.Set(ctx, key, val, ttl)
	return t.next.Set(ctx, key, val, ttl)
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	return errors.Join(t.l1.Delete(ctx, key), t.next.Delete(ctx, key))
}

// Clear empties L1 and, when it supports it, the next tier.
func (t *Tiered) Clear(ctx context.Context) error {
	err := t.l1.Clear(ctx)
	if c, ok := t.next.(Clearer); ok {
		err = errors.Join(err, c.Clear(ctx))
	}
	return err
}
