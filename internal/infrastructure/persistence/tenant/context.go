// Package tenant routes database access to per-tenant PostgreSQL
// databases. The tenant code travels in the request context; the
// registry lazily opens and caches one connection pool per tenant.
package tenant

import "context"

type contextKey struct{}

// codeKey carries the resolved tenant code through the request
var codeKey = contextKey{}

// WithCode returns a context carrying the tenant code. An empty code
// means the request operates on the default database.
func WithCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, codeKey, code)
}

// CodeFromContext returns the tenant code and whether one was set
func CodeFromContext(ctx context.Context) (string, bool) {
	code, ok := ctx.Value(codeKey).(string)
	if !ok || code == "" {
		return "", false
	}
	return code, true
}
