package a2a

import (
	"context"
	"net/http"
)

type contextKey int

const (
	userIDKey contextKey = iota
	workspaceIDKey
)

// WithRequestIdentity installs userID and workspaceID on ctx, the shape
// spec.md §4.7 describes as "extract user_id, workspace_id from
// request-scoped middleware".
func WithRequestIdentity(ctx context.Context, userID, workspaceID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, workspaceIDKey, workspaceID)
}

func userIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

func workspaceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(workspaceIDKey).(string)
	return v
}

// IdentityMiddleware reads X-User-ID/X-Workspace-ID headers and installs
// them on the request context. Deployments with a real auth layer (JWT,
// OAuth2 session) replace this with their own middleware that calls
// WithRequestIdentity after verifying the credential.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRequestIdentity(r.Context(), r.Header.Get("X-User-ID"), r.Header.Get("X-Workspace-ID"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
