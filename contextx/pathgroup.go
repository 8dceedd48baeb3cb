package contextx

import "context"

// WithPathGroup returns a derived context that carries the name of the
// policy group the request path resolved to.
func WithPathGroup(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, pathGroupKey, group)
}

// PathGroupFromContext extracts the group name stored in ctx.
// It returns an empty string when no group is present.
func PathGroupFromContext(ctx context.Context) string {
	g, _ := ctx.Value(pathGroupKey).(string)
	return g
}
