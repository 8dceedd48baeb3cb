// Package transport provides composable http.RoundTripper middleware for the
// REST API client: panic recovery, request IDs, workspace headers, bearer
// tokens and rate limiting.
package transport

import (
	"context"
	"net/http"

	"github.com/Keksclan/rawrFetch/contextx"
)

// Header names sent with every API request.
const (
	HeaderRequestID    = "X-Request-ID"
	HeaderCompanyID    = "X-Company-ID"
	HeaderDepartmentID = "X-Department-ID"
	HeaderDivisionID   = "X-Division-ID"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls f(req).
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// Middleware wraps a RoundTripper with pre/post behaviour.
type Middleware func(next http.RoundTripper) http.RoundTripper

// Chain composes middlewares around base. Middlewares execute in the order
// they appear in the slice, i.e. Chain([A, B], base) => A(B(base)).
func Chain(mws []Middleware, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// TokenSource returns the bearer token for a request. An empty token sends
// no Authorization header. The library never parses tokens.
type TokenSource func(ctx context.Context) (string, error)

// RequestID ensures every request carries an X-Request-ID header, reusing the
// ID stored in the request context when present.
func RequestID() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(HeaderRequestID) != "" {
				return next.RoundTrip(req)
			}
			ctx, id := contextx.EnsureRequestID(req.Context())
			req = req.Clone(ctx)
			req.Header.Set(HeaderRequestID, id)
			return next.RoundTrip(req)
		})
	}
}

// Workspace copies the contextx.Workspace stored in the request context into
// headers. Requests without a workspace pass through untouched.
func Workspace() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			ws, ok := contextx.WorkspaceFromContext(req.Context())
			if !ok {
				return next.RoundTrip(req)
			}
			req = req.Clone(req.Context())
			setIfNotEmpty(req.Header, HeaderCompanyID, ws.CompanyID)
			setIfNotEmpty(req.Header, HeaderDepartmentID, ws.DepartmentID)
			setIfNotEmpty(req.Header, HeaderDivisionID, ws.DivisionID)
			return next.RoundTrip(req)
		})
	}
}

// Bearer sets "Authorization: Bearer <token>" from ts.
func Bearer(ts TokenSource) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			tok, err := ts(req.Context())
			if err != nil {
				return nil, err
			}
			if tok == "" {
				return next.RoundTrip(req)
			}
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+tok)
			return next.RoundTrip(req)
		})
	}
}

func setIfNotEmpty(h http.Header, key, val string) {
	if val != "" {
		h.Set(key, val)
	}
}
