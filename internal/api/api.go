package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/smartcare-health/smartcare-hms/internal/auth"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// actor returns the authenticated subject for activity logging, or "system"
// for unauthenticated administrative calls (CLI, bootstrap).
func actor(c echo.Context) string {
	if p := auth.PrincipalFromContext(c.Request().Context()); p != nil && p.Subject != "" {
		return p.Subject
	}
	return "system"
}
