// Package ratelimit provides a token-bucket rate limiter backed by
// golang.org/x/time/rate that throttles outgoing API requests.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter that paces outgoing requests.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter that permits rps requests per second with the
// given burst size.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// NewWindowLimiter creates a Limiter allowing n requests per window, with a
// burst of n.
func NewWindowLimiter(n int, window time.Duration) *Limiter {
	if n <= 0 || window <= 0 {
		return NewLimiter(float64(rate.Inf), 1)
	}
	return NewLimiter(float64(n)/window.Seconds(), n)
}

// Allow reports whether a single request may proceed right now.
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

// Wait blocks until a request may proceed or ctx is done. It returns an
// error immediately when the wait would outlast ctx's deadline.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.lim.Wait(ctx)
}
