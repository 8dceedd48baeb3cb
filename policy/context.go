package policy

import "context"

type ctxKey struct{}

type resolved struct {
	group  string
	policy *Policy
}

// NewContext returns a derived context carrying the group and policy a
// request was resolved to. Downstream middleware reads them back with
// [FromContext] instead of matching the wire path, which may carry a
// base-URL prefix the rules do not know about.
func NewContext(ctx context.Context, group string, p *Policy) context.Context {
	return context.WithValue(ctx, ctxKey{}, resolved{group: group, policy: p})
}

// FromContext returns the resolution stored by [NewContext]. ok is false when
// none is present; p may be nil for requests that matched no group.
func FromContext(ctx context.Context) (group string, p *Policy, ok bool) {
	r, ok := ctx.Value(ctxKey{}).(resolved)
	return r.group, r.policy, ok
}
