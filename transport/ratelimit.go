package transport

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/Keksclan/rawrFetch/policy"
	"github.com/Keksclan/rawrFetch/ratelimit"
)

// rateLimitState holds the global limiter, an optional policy resolver, and a
// cache of per-group limiters created lazily from resolved policies.
type rateLimitState struct {
	global   *ratelimit.Limiter
	resolver *policy.Resolver

	mu     sync.Mutex
	groups map[string]*ratelimit.Limiter
}

// limiterFor returns the per-group limiter when the request belongs to a
// group with a RateLimit policy. Otherwise it returns the global limiter,
// which may be nil. A resolution stored by the API client wins; the wire path
// is matched only for requests issued without one.
func (s *rateLimitState) limiterFor(req *http.Request) *ratelimit.Limiter {
	name, pol, ok := policy.FromContext(req.Context())
	if !ok {
		name, pol, ok = s.resolver.Resolve(req.Method, req.URL.Path)
	}
	if ok && pol != nil && pol.RateLimit != nil {
		return s.groupLimiter(name, pol.RateLimit)
	}
	return s.global
}

// groupLimiter returns (or lazily creates) the limiter for a group.
func (s *rateLimitState) groupLimiter(name string, rl *policy.RateLimitRule) *ratelimit.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.groups[name]; ok {
		return l
	}
	l := ratelimit.NewWindowLimiter(rl.Rate, rl.Window)
	s.groups[name] = l
	return l
}

// RateLimit returns a middleware that paces outgoing requests. Requests wait
// for a token rather than failing; a wait that cannot finish before the
// request context is done returns an error. Either argument may be nil.
func RateLimit(global *ratelimit.Limiter, r *policy.Resolver) Middleware {
	st := &rateLimitState{global: global, resolver: r, groups: make(map[string]*ratelimit.Limiter)}
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if l := st.limiterFor(req); l != nil {
				if err := l.Wait(req.Context()); err != nil {
					return nil, fmt.Errorf("rate limit wait: %w", err)
				}
			}
			return next.RoundTrip(req)
		})
	}
}
