package retry

import (
	"errors"
	"math/rand/v2"
	"time"
)

// retryAfterer is implemented by errors that carry a server-provided delay,
// e.g. an HTTP 429 with a Retry-After header.
type retryAfterer interface {
	RetryAfter() time.Duration
}

// delayFor returns how long to wait after the failed attempt (0-indexed).
// The exponential step BaseDelay<<attempt is jittered, then raised to the
// server hint carried by err if that is longer. MaxDelay caps both.
func (c Config) delayFor(attempt int, err error) time.Duration {
	d := c.BaseDelay
	for range attempt {
		if c.MaxDelay > 0 && d >= c.MaxDelay {
			break
		}
		d *= 2
	}
	if c.Jitter > 0 && d > 0 {
		spread := float64(d) * c.Jitter
		d += time.Duration(spread * (rand.Float64()*2 - 1))
	}

	var ra retryAfterer
	if errors.As(err, &ra) {
		d = max(d, ra.RetryAfter())
	}
	if c.MaxDelay > 0 {
		d = min(d, c.MaxDelay)
	}
	return max(d, 0)
}
