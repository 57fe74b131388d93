package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcare-health/smartcare-hms/internal/model"
	"github.com/smartcare-health/smartcare-hms/internal/tenantctx"
)

// fakeSession records the schema it was opened for and whether it was
// released.
type fakeSession struct {
	schema   string
	released bool
}

func (s *fakeSession) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (s *fakeSession) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (s *fakeSession) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (s *fakeSession) Release(context.Context)                                 { s.released = true }

type fakeSessionFactory struct {
	sessions []*fakeSession
}

func (f *fakeSessionFactory) Acquire(_ context.Context, schema string) (Session, error) {
	s := &fakeSession{schema: schema}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func setupEcho(t *testing.T, dir Directory, fallbackCode string) (*echo.Echo, *fakeSessionFactory) {
	t.Helper()
	factory := &fakeSessionFactory{}
	r := New(dir, publicPaths, fallbackCode)

	e := echo.New()
	e.Use(Middleware(r, factory, zerolog.Nop()))
	e.GET("/api/v1/patients", func(c echo.Context) error {
		res, _ := tenantctx.FromContext(c.Request().Context())
		return c.JSON(http.StatusOK, map[string]string{"schema": res.Schema()})
	})
	e.POST("/api/v1/auth/login", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return e, factory
}

func TestMiddleware_ResolvedTenantGetsScopedSession(t *testing.T) {
	dir := newFakeDirectory()
	tenant := dir.add(&model.Tenant{Name: "A", Code: "AAA", SchemaName: "tenant_aaa"})
	e, factory := setupEcho(t, dir, "")

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	req.Header.Set(TenantHeader, tenant.ID.String())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, factory.sessions, 1)
	assert.Equal(t, "tenant_aaa", factory.sessions[0].schema)
	assert.True(t, factory.sessions[0].released)
}

func TestMiddleware_UnresolvableRequestIs404(t *testing.T) {
	e, factory := setupEcho(t, newFakeDirectory(), "")

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	req.Host = "nowhere.example.com"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant not found or not specified")
	assert.Empty(t, factory.sessions)
}

// A numeric X-Tenant-ID is malformed, not an error: on a public path the
// request proceeds; on any other path, with nothing else to resolve by, it is
// a 404.
func TestMiddleware_NumericHeaderExamples(t *testing.T) {
	e, _ := setupEcho(t, newFakeDirectory(), "")

	req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
	req.Header.Set(TenantHeader, "7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest("GET", "/api/v1/patients", nil)
	req.Host = "nowhere.example.com"
	req.Header.Set(TenantHeader, "7")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// Two sequential requests from different tenants must each get their own
// session; nothing from the first request may leak into the second.
func TestMiddleware_NoLeakBetweenRequests(t *testing.T) {
	dir := newFakeDirectory()
	tenantA := dir.add(&model.Tenant{Name: "A", Code: "AAA", SchemaName: "tenant_aaa"})
	tenantB := dir.add(&model.Tenant{Name: "B", Code: "BBB", SchemaName: "tenant_bbb"})
	e, factory := setupEcho(t, dir, "")

	for _, tenant := range []*model.Tenant{tenantA, tenantB} {
		req := httptest.NewRequest("GET", "/api/v1/patients", nil)
		req.Header.Set(TenantHeader, tenant.ID.String())
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	require.Len(t, factory.sessions, 2)
	assert.Equal(t, "tenant_aaa", factory.sessions[0].schema)
	assert.Equal(t, "tenant_bbb", factory.sessions[1].schema)
	assert.True(t, factory.sessions[0].released)
	assert.True(t, factory.sessions[1].released)
}

func TestMiddleware_SessionReleasedOnPanic(t *testing.T) {
	dir := newFakeDirectory()
	tenant := dir.add(&model.Tenant{Name: "A", Code: "AAA", SchemaName: "tenant_aaa"})
	factory := &fakeSessionFactory{}
	r := New(dir, publicPaths, "")

	e := echo.New()
	e.Use(Middleware(r, factory, zerolog.Nop()))
	e.GET("/api/v1/boom", func(c echo.Context) error {
		panic("handler blew up")
	})

	req := httptest.NewRequest("GET", "/api/v1/boom", nil)
	req.Header.Set(TenantHeader, tenant.ID.String())
	rec := httptest.NewRecorder()
	assert.Panics(t, func() { e.ServeHTTP(rec, req) })

	require.Len(t, factory.sessions, 1)
	assert.True(t, factory.sessions[0].released)
}

func TestRequireActiveTenant(t *testing.T) {
	cases := []struct {
		status model.SubscriptionStatus
		code   int
		body   string
	}{
		{model.StatusActive, http.StatusOK, ""},
		{model.StatusTrial, http.StatusOK, ""},
		{model.StatusSuspended, http.StatusForbidden, "suspended"},
		{model.StatusCancelled, http.StatusForbidden, "cancelled"},
		{model.StatusExpired, http.StatusForbidden, "expired"},
	}

	for _, c := range cases {
		t.Run(string(c.status), func(t *testing.T) {
			dir := newFakeDirectory()
			tenant := dir.add(&model.Tenant{
				Name: "A", Code: "AAA", SchemaName: "tenant_aaa",
				SubscriptionStatus: c.status,
			})
			factory := &fakeSessionFactory{}
			r := New(dir, publicPaths, "")

			e := echo.New()
			e.Use(Middleware(r, factory, zerolog.Nop()))
			g := e.Group("/api/v1", RequireActiveTenant())
			g.GET("/patients", func(ec echo.Context) error {
				return ec.NoContent(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/api/v1/patients", nil)
			req.Header.Set(TenantHeader, tenant.ID.String())
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, c.code, rec.Code)
			if c.body != "" {
				assert.Contains(t, rec.Body.String(), c.body)
			}
			// The session is opened and released either way.
			require.Len(t, factory.sessions, 1)
			assert.True(t, factory.sessions[0].released)
		})
	}
}

// A request that resolved to the public schema (a global-scope principal, for
// instance) must not reach tenant-scoped routes; there is no tenant schema to
// serve it from.
func TestRequireActiveTenant_PublicResolutionRejected(t *testing.T) {
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := tenantctx.WithResolution(c.Request().Context(),
				tenantctx.Resolution{Source: tenantctx.SourcePublic})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	g := e.Group("/api/v1", RequireActiveTenant())
	g.GET("/patients", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant not found or not specified")
}
