// Package requestcontext carries per-request ambient values: the acting
// principal, the tenant scope, and an overridable clock so command
// handlers and tests observe one consistent "now" per request.
package requestcontext

import (
	"context"
	"time"

	id "keystone/pkg/domain"
)

type contextKey int

const (
	actorKey contextKey = iota
	tenantKey
	nowKey
	requestIDKey
)

// WithRequestID returns a context carrying the request correlation ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request correlation ID, or "" when absent.
func RequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}

// WithActor returns a context carrying the acting principal's ID.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// Actor returns the acting principal's ID, or "" when anonymous.
func Actor(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey).(string)
	return actor
}

// WithTenant returns a context scoped to the given tenant.
func WithTenant(ctx context.Context, tenantID id.TenantID) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// Tenant returns the current tenant scope. The second return is false
// for global (non-tenant) requests.
func Tenant(ctx context.Context) (id.TenantID, bool) {
	tenantID, ok := ctx.Value(tenantKey).(id.TenantID)
	return tenantID, ok
}

// WithNow pins the request clock, used by tests and replay tooling.
func WithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, nowKey, now)
}

// Now returns the pinned request time, falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if now, ok := ctx.Value(nowKey).(time.Time); ok {
		return now
	}
	return time.Now().UTC()
}
