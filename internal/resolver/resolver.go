// Package resolver determines which tenant an inbound request belongs to and
// scopes the request's database session to that tenant's schema.
package resolver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/smartcare-health/smartcare-hms/internal/auth"
	"github.com/smartcare-health/smartcare-hms/internal/model"
	"github.com/smartcare-health/smartcare-hms/internal/tenantctx"
)

// TenantHeader carries an explicit tenant identifier on non-public paths.
const TenantHeader = "X-Tenant-ID"

// ErrTenantNotFound is returned when no tenant can be determined by any
// resolution method on a non-public path. It is a client error, never an
// internal one.
var ErrTenantNotFound = errors.New("tenant not found or not specified")

// Directory is the registry lookup surface the resolver depends on.
// *store.TenantRepository satisfies it.
type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	GetByCode(ctx context.Context, code string) (*model.Tenant, error)
	GetByHostname(ctx context.Context, hostname string) (*model.Tenant, error)
	GetMembershipTenant(ctx context.Context, userID string) (*model.Tenant, error)
}

// Resolver implements the resolution precedence chain. Every request resolves
// to exactly one outcome: a tenant, the public schema, or ErrTenantNotFound.
type Resolver struct {
	dir          Directory
	publicPaths  []string
	fallbackCode string
}

// New creates a Resolver. fallbackCode may be empty, which disables the
// development fallback step entirely.
func New(dir Directory, publicPaths []string, fallbackCode string) *Resolver {
	return &Resolver{
		dir:          dir,
		publicPaths:  publicPaths,
		fallbackCode: fallbackCode,
	}
}

// IsPublicPath reports whether the path is exempt from tenant resolution.
func (r *Resolver) IsPublicPath(path string) bool {
	for _, prefix := range r.publicPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Resolve runs the precedence chain for one request.
//
// Malformed or unknown identifiers at the header and token steps are treated
// as absence and fall through; they never fail the request on their own. The
// resolver answers only "which schema" — whether a suspended or cancelled
// tenant may proceed is the authorization layer's concern, so lookups for
// inactive tenants still succeed here.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (tenantctx.Resolution, error) {
	// 1. Public paths bypass resolution entirely, headers and tokens included.
	if r.IsPublicPath(req.URL.Path) {
		return tenantctx.Resolution{Source: tenantctx.SourcePublic}, nil
	}

	// 2. Explicit tenant header.
	if raw := req.Header.Get(TenantHeader); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			tenant, err := r.dir.GetByID(ctx, id)
			if err != nil {
				return tenantctx.Resolution{}, err
			}
			if tenant != nil {
				return tenantctx.Resolution{Tenant: tenant, Source: tenantctx.SourceHeader}, nil
			}
		}
		// malformed or unknown: fall through
	}

	// 3. Development fallback tenant.
	if r.fallbackCode != "" {
		tenant, err := r.dir.GetByCode(ctx, r.fallbackCode)
		if err != nil {
			return tenantctx.Resolution{}, err
		}
		if tenant != nil {
			return tenantctx.Resolution{Tenant: tenant, Source: tenantctx.SourceFallback}, nil
		}
	}

	if principal := auth.PrincipalFromContext(ctx); principal != nil {
		// 4. Tenant claim from the validated token.
		if principal.IsTenantUser && principal.TenantClaim != "" {
			if id, err := uuid.Parse(principal.TenantClaim); err == nil {
				tenant, err := r.dir.GetByID(ctx, id)
				if err != nil {
					return tenantctx.Resolution{}, err
				}
				if tenant != nil {
					return tenantctx.Resolution{Tenant: tenant, Source: tenantctx.SourceToken}, nil
				}
			}
		}

		// 5. Membership record.
		tenant, err := r.dir.GetMembershipTenant(ctx, principal.Subject)
		if err != nil {
			return tenantctx.Resolution{}, err
		}
		if tenant != nil {
			return tenantctx.Resolution{Tenant: tenant, Source: tenantctx.SourceMembership}, nil
		}

		// 6. Authenticated global-scope user.
		return tenantctx.Resolution{Source: tenantctx.SourcePublic}, nil
	}

	// 7. Hostname lookup.
	host := req.Host
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if host != "" {
		tenant, err := r.dir.GetByHostname(ctx, host)
		if err != nil {
			return tenantctx.Resolution{}, err
		}
		if tenant != nil {
			return tenantctx.Resolution{Tenant: tenant, Source: tenantctx.SourceDomain}, nil
		}
	}

	return tenantctx.Resolution{}, ErrTenantNotFound
}
