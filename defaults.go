package rawrfetch

import (
	"time"

	"github.com/Keksclan/rawrFetch/breaker"
	"github.com/Keksclan/rawrFetch/retry"
)

// DefaultOptions returns the recommended set of options for production use:
// panic recovery, a 10s attempt timeout, three attempts with jittered
// back-off for transient failures and a circuit breaker.
func DefaultOptions() []Option {
	return []Option{
		WithRecovery(),
		WithTimeout(10 * time.Second),
		WithRetry(retry.Config{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Jitter:      0.2,
			RetryCodes:  retry.DefaultRetryCodes,
		}),
		WithBreaker(breaker.Config{
			FailureThreshold:   5,
			OpenTimeout:        30 * time.Second,
			HalfOpenMaxSuccess: 1,
		}),
	}
}
