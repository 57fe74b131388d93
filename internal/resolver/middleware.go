package resolver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/smartcare-health/smartcare-hms/internal/model"
	"github.com/smartcare-health/smartcare-hms/internal/monitoring"
	"github.com/smartcare-health/smartcare-hms/internal/tenantctx"
)

// Middleware resolves the tenant for every request, opens a schema-scoped
// session, and guarantees the session is released (search path reset) on every
// exit path, panics included — the downstream recovery middleware converts
// panics to errors only after this defer has run.
func Middleware(r *Resolver, factory SessionFactory, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			res, err := r.Resolve(ctx, c.Request())
			if err != nil {
				if errors.Is(err, ErrTenantNotFound) {
					monitoring.RecordResolution("none", "not_found")
					return echo.NewHTTPError(http.StatusNotFound, "tenant not found or not specified")
				}
				logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("tenant resolution failed")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "tenant resolution unavailable")
			}
			monitoring.RecordResolution(string(res.Source), "ok")

			session, err := factory.Acquire(ctx, res.Schema())
			if err != nil {
				logger.Error().Err(err).Str("schema", res.Schema()).Msg("failed to open schema session")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer session.Release(ctx)

			ctx = tenantctx.WithResolution(ctx, res)
			ctx = tenantctx.WithSession(ctx, session)
			c.SetRequest(c.Request().WithContext(ctx))

			if res.Tenant != nil {
				c.Set("tenant_code", res.Tenant.Code)
			}

			return next(c)
		}
	}
}

// RequireActiveTenant gates tenant-scoped business routes on subscription
// state. Resolution has already succeeded by the time this runs; suspension is
// an authorization concern layered above it. Trial tenants are admitted.
// Public resolutions are rejected outright: these routes only exist inside a
// tenant schema, and a global-scope principal has no tenant data here to see.
func RequireActiveTenant() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res, ok := tenantctx.FromContext(c.Request().Context())
			if !ok || res.Tenant == nil {
				return echo.NewHTTPError(http.StatusNotFound, "tenant not found or not specified")
			}

			switch res.Tenant.SubscriptionStatus {
			case model.StatusActive, model.StatusTrial:
				return next(c)
			case model.StatusSuspended:
				return echo.NewHTTPError(http.StatusForbidden, "tenant subscription is suspended")
			case model.StatusCancelled:
				return echo.NewHTTPError(http.StatusForbidden, "tenant subscription is cancelled")
			case model.StatusExpired:
				return echo.NewHTTPError(http.StatusForbidden, "tenant trial has expired")
			default:
				return echo.NewHTTPError(http.StatusForbidden, "tenant subscription is not active")
			}
		}
	}
}
