// Package contextx carries request-scoped values (workspace, request ID,
// matched policy group) from UI code down to the API transport.
package contextx

import "context"

// Workspace identifies the company workspace a request acts on. The
// transport forwards it to the API, which owns tenant isolation; the client
// only labels requests with it.
//
// Example:
//
//	ws := contextx.Workspace{CompanyID: "acme", DepartmentID: "eng"}
//	ctx = contextx.WithWorkspace(ctx, ws)
type Workspace struct {
	CompanyID    string
	DepartmentID string
	DivisionID   string
}

// WithWorkspace returns a derived context that carries the given Workspace.
func WithWorkspace(ctx context.Context, ws Workspace) context.Context {
	return context.WithValue(ctx, workspaceKey, ws)
}

// WorkspaceFromContext extracts the Workspace stored in ctx.
// The boolean return value indicates whether a Workspace was present.
func WorkspaceFromContext(ctx context.Context) (Workspace, bool) {
	ws, ok := ctx.Value(workspaceKey).(Workspace)
	return ws, ok
}
