// Package retry provides a generic retry helper with exponential backoff and
// jitter for API calls. Errors are classified by their gRPC status code, which
// the apiclient package derives from the HTTP response status.
package retry

import (
	"context"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultRetryCodes are the codes worth retrying for idempotent reads:
// transient unavailability, throttling and gateway timeouts.
var DefaultRetryCodes = []codes.Code{codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded}

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent retries use
	// exponential back-off: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed back-off delay.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// RetryCodes lists the gRPC status codes that are considered retryable.
	// An empty list means no error is retried.
	RetryCodes []codes.Code

	// OnRetry, when set, is called before each wait with the 1-based number
	// of the attempt that failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Do calls fn up to cfg.MaxAttempts times, retrying only when the returned
// error carries a gRPC status code listed in cfg.RetryCodes. Between
// attempts an exponential back-off delay (with optional jitter) is applied;
// a longer server-provided Retry-After wins, still capped at MaxDelay.
//
// The context is checked before every retry; if ctx is done the function
// returns immediately with the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	for i := range attempts {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		// Last attempt: return immediately regardless of code.
		if i == attempts-1 {
			return zero, err
		}

		if !Retryable(err, cfg.RetryCodes) {
			return zero, err
		}

		delay := cfg.delayFor(i, err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(i+1, err, delay)
		}

		// Wait with back-off, but respect context cancellation.
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	// Unreachable, but keeps the compiler happy.
	return zero, nil
}

// Retryable reports whether err carries one of the given status codes.
func Retryable(err error, retryCodes []codes.Code) bool {
	st, ok := status.FromError(err)
	return ok && slices.Contains(retryCodes, st.Code())
}
