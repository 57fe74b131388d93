// Package tenantctx carries the resolved tenant for one in-flight request.
// The resolution travels in the request context and is never stored in
// package-level mutable state, so a later request on the same worker can never
// inherit it.
package tenantctx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smartcare-health/smartcare-hms/internal/model"
)

// Source identifies which resolution path produced the active tenant.
type Source string

const (
	SourcePublic     Source = "public"
	SourceHeader     Source = "header"
	SourceFallback   Source = "fallback"
	SourceToken      Source = "token"
	SourceMembership Source = "membership"
	SourceDomain     Source = "domain"
)

// PublicSchema is the shared, tenant-independent schema holding the tenant
// directory and cross-tenant reference data.
const PublicSchema = "public"

// Resolution is the outcome of tenant resolution for one request. A nil
// Tenant means the request runs against the public schema.
type Resolution struct {
	Tenant *model.Tenant
	Source Source
}

// Schema returns the schema the request's data access is scoped to.
func (r Resolution) Schema() string {
	if r.Tenant == nil {
		return PublicSchema
	}
	return r.Tenant.SchemaName
}

// IsPublic reports whether the request resolved to the public schema.
func (r Resolution) IsPublic() bool {
	return r.Tenant == nil
}

type contextKey string

const (
	resolutionKey contextKey = "tenant_resolution"
	sessionKey    contextKey = "tenant_session"
)

// WithResolution returns a context carrying the resolution outcome.
func WithResolution(ctx context.Context, res Resolution) context.Context {
	return context.WithValue(ctx, resolutionKey, res)
}

// FromContext retrieves the resolution for the current request. The second
// return value is false when no resolver ran (background jobs, tests).
func FromContext(ctx context.Context) (Resolution, bool) {
	res, ok := ctx.Value(resolutionKey).(Resolution)
	return res, ok
}

// Querier is the subset of pgx used by tenant-scoped repositories. Both
// *pgxpool.Conn and pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithSession returns a context carrying the schema-scoped database session
// for the current request.
func WithSession(ctx context.Context, q Querier) context.Context {
	return context.WithValue(ctx, sessionKey, q)
}

// SessionFromContext retrieves the request's schema-scoped session, or nil
// when none was opened.
func SessionFromContext(ctx context.Context) Querier {
	q, _ := ctx.Value(sessionKey).(Querier)
	return q
}
