// Package core holds wiring shared by the public packages that should not be
// part of the public API.
package core

import (
	"cmp"
	"slices"

	"github.com/Keksclan/rawrFetch/transport"
)

// Fixed middleware priorities. Lower values run first (outermost), so the
// transport chain is the same no matter the order options are passed in.
const (
	OrderRecovery  = 0
	OrderRequestID = 10
	OrderTracing   = 20
	OrderWorkspace = 30
	OrderAuth      = 40
	OrderRateLimit = 50
	OrderUser      = 100
)

// middleware is a single transport middleware with a deterministic
// execution order.
type middleware struct {
	mw    transport.Middleware
	order int
}

// MiddlewareBuilder collects transport middleware and produces a sorted
// slice ready for chaining.
type MiddlewareBuilder struct {
	entries []middleware
}

// Add registers a middleware with the given order. A nil middleware is
// ignored.
func (b *MiddlewareBuilder) Add(order int, mw transport.Middleware) {
	if mw == nil {
		return
	}
	b.entries = append(b.entries, middleware{mw: mw, order: order})
}

// Len returns the number of registered middlewares.
func (b *MiddlewareBuilder) Len() int { return len(b.entries) }

// Build sorts the collected middleware by order (stable) and returns them.
func (b *MiddlewareBuilder) Build() []transport.Middleware {
	sorted := slices.Clone(b.entries)
	slices.SortStableFunc(sorted, func(a, c middleware) int {
		return cmp.Compare(a.order, c.order)
	})

	out := make([]transport.Middleware, len(sorted))
	for i, m := range sorted {
		out[i] = m.mw
	}
	return out
}
