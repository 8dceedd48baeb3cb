package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrPanic is wrapped by the error Recovery returns for a panicking
// RoundTripper.
var ErrPanic = errors.New("transport: panic in round tripper")

// Recovery returns a middleware that recovers from panics further down the
// chain and turns them into an error instead of crashing the process.
func Recovery() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (resp *http.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = nil
					err = fmt.Errorf("%w: %v", ErrPanic, r)
				}
			}()
			return next.RoundTrip(req)
		})
	}
}
