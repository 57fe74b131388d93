package resolver

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcare-health/smartcare-hms/internal/auth"
	"github.com/smartcare-health/smartcare-hms/internal/model"
	"github.com/smartcare-health/smartcare-hms/internal/tenantctx"
)

// fakeDirectory is an in-memory registry for resolver tests.
type fakeDirectory struct {
	byID         map[uuid.UUID]*model.Tenant
	byCode       map[string]*model.Tenant
	byHostname   map[string]*model.Tenant
	byMembership map[string]*model.Tenant
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byID:         map[uuid.UUID]*model.Tenant{},
		byCode:       map[string]*model.Tenant{},
		byHostname:   map[string]*model.Tenant{},
		byMembership: map[string]*model.Tenant{},
	}
}

func (d *fakeDirectory) add(t *model.Tenant) *model.Tenant {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	d.byID[t.ID] = t
	if t.Code != "" {
		d.byCode[t.Code] = t
	}
	if t.Domain != "" {
		d.byHostname[t.Domain] = t
	}
	return t
}

func (d *fakeDirectory) GetByID(_ context.Context, id uuid.UUID) (*model.Tenant, error) {
	return d.byID[id], nil
}

func (d *fakeDirectory) GetByCode(_ context.Context, code string) (*model.Tenant, error) {
	return d.byCode[code], nil
}

func (d *fakeDirectory) GetByHostname(_ context.Context, hostname string) (*model.Tenant, error) {
	return d.byHostname[hostname], nil
}

func (d *fakeDirectory) GetMembershipTenant(_ context.Context, userID string) (*model.Tenant, error) {
	return d.byMembership[userID], nil
}

var publicPaths = []string{"/api/v1/auth/", "/api/v1/tenants/directory", "/health"}

func TestResolve_PublicPathBypassesEverything(t *testing.T) {
	dir := newFakeDirectory()
	tenant := dir.add(&model.Tenant{Name: "City Hospital", Code: "CTY", SchemaName: "tenant_cty"})
	r := New(dir, publicPaths, "")

	// Even an explicit valid header is ignored on a public path.
	req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
	req.Header.Set(TenantHeader, tenant.ID.String())

	res, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.IsPublic())
	assert.Equal(t, tenantctx.SourcePublic, res.Source)
	assert.Equal(t, tenantctx.PublicSchema, res.Schema())
}

func TestResolve_HeaderWins(t *testing.T) {
	dir := newFakeDirectory()
	headerTenant := dir.add(&model.Tenant{Name: "A", Code: "AAA", SchemaName: "tenant_aaa"})
	domainTenant := dir.add(&model.Tenant{Name: "B", Code: "BBB", SchemaName: "tenant_bbb", Domain: "b.example.com"})
	_ = domainTenant
	r := New(dir, publicPaths, "")

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	req.Host = "b.example.com"
	req.Header.Set(TenantHeader, headerTenant.ID.String())

	res, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, tenantctx.SourceHeader, res.Source)
	assert.Equal(t, "tenant_aaa", res.Schema())
}

func TestResolve_MalformedHeaderFallsThrough(t *testing.T) {
	dir := newFakeDirectory()
	dir.add(&model.Tenant{Name: "B", Code: "BBB", SchemaName: "tenant_bbb", Domain: "b.example.com"})
	r := New(dir, publicPaths, "")

	// A non-uuid header value is treated as absent, so resolution continues
	// down the chain to the hostname step.
	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	req.Host = "b.example.com"
	req.Header.Set(TenantHeader, "7")

	res, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, tenantctx.SourceDomain, res.Source)
	assert.Equal(t, "tenant_bbb", res.Schema())
}

func TestResolve_MalformedHeaderUnknownHost(t *testing.T) {
	dir := newFakeDirectory()
	r := New(dir, publicPaths, "")

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	req.Host = "unknown.example.com"
	req.Header.Set(TenantHeader, "7")

	_, err := r.Resolve(context.Background(), req)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolve_UnknownHeaderIDFallsThrough(t *testing.T) {
	dir := newFakeDirectory()
	dir.add(&model.Tenant{Name: "B", Code: "BBB", SchemaName: "tenant_bbb", Domain: "b.example.com"})
	r := New(dir, publicPaths, "")

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	req.Host = "b.example.com"
	req.Header.Set(TenantHeader, uuid.New().String())

	res, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, tenantctx.SourceDomain, res.Source)
}

func TestResolve_FallbackCode(t *testing.T) {
	dir := newFakeDirectory()
	dir.add(&model.Tenant{Name: "Dev", Code: "DEV", SchemaName: "tenant_dev"})
	r := New(dir, publicPaths, "DEV")

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)

	res, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, tenantctx.SourceFallback, res.Source)
	assert.Equal(t, "tenant_dev", res.Schema())
}

func TestResolve_HeaderBeatsFallback(t *testing.T) {
	dir := newFakeDirectory()
	headerTenant := dir.add(&model.Tenant{Name: "A", Code: "AAA", SchemaName: "tenant_aaa"})
	dir.add(&model.Tenant{Name: "Dev", Code: "DEV", SchemaName: "tenant_dev"})
	r := New(dir, publicPaths, "DEV")

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	req.Header.Set(TenantHeader, headerTenant.ID.String())

	res, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, tenantctx.SourceHeader, res.Source)
}

func TestResolve_TokenClaim(t *testing.T) {
	dir := newFakeDirectory()
	tenant := dir.add(&model.Tenant{Name: "A", Code: "AAA", SchemaName: "tenant_aaa"})
	r := New(dir, publicPaths, "")

	ctx := auth.WithPrincipal(context.Background(), &auth.Principal{
		Subject:      "user-1",
		TenantClaim:  tenant.ID.String(),
		IsTenantUser: true,
	})
	req := httptest.NewRequest("GET", "/api/v1/patients", nil)

	res, err := r.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, tenantctx.SourceToken, res.Source)
	assert.Equal(t, "tenant_aaa", res.Schema())
}

func TestResolve_MembershipAfterBadClaim(t *testing.T) {
	dir := newFakeDirectory()
	tenant := dir.add(&model.Tenant{Name: "A", Code: "AAA", SchemaName: "tenant_aaa"})
	dir.byMembership["user-1"] = tenant
	r := New(dir, publicPaths, "")

	// The claim is malformed; membership resolves instead.
	ctx := auth.WithPrincipal(context.Background(), &auth.Principal{
		Subject:      "user-1",
		TenantClaim:  "not-a-uuid",
		IsTenantUser: true,
	})
	req := httptest.NewRequest("GET", "/api/v1/patients", nil)

	res, err := r.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, tenantctx.SourceMembership, res.Source)
}

func TestResolve_AuthenticatedWithoutTenantIsPublic(t *testing.T) {
	dir := newFakeDirectory()
	// Hostnames never apply to authenticated principals without memberships.
	dir.add(&model.Tenant{Name: "B", Code: "BBB", SchemaName: "tenant_bbb", Domain: "b.example.com"})
	r := New(dir, publicPaths, "")

	ctx := auth.WithPrincipal(context.Background(), &auth.Principal{Subject: "admin-1"})
	req := httptest.NewRequest("GET", "/api/v1/admin/tenants", nil)
	req.Host = "b.example.com"

	res, err := r.Resolve(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.IsPublic())
}

func TestResolve_HostnamePortStripped(t *testing.T) {
	dir := newFakeDirectory()
	dir.add(&model.Tenant{Name: "B", Code: "BBB", SchemaName: "tenant_bbb", Domain: "b.example.com"})
	r := New(dir, publicPaths, "")

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	req.Host = "b.example.com:8443"

	res, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, tenantctx.SourceDomain, res.Source)
}

func TestResolve_NothingMatches(t *testing.T) {
	r := New(newFakeDirectory(), publicPaths, "")

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	req.Host = "nowhere.example.com"

	_, err := r.Resolve(context.Background(), req)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolve_InactiveTenantStillResolves(t *testing.T) {
	dir := newFakeDirectory()
	tenant := dir.add(&model.Tenant{
		Name: "S", Code: "SSS", SchemaName: "tenant_sss",
		SubscriptionStatus: model.StatusSuspended,
	})
	r := New(dir, publicPaths, "")

	// Resolution answers "which schema"; subscription gating happens later.
	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	req.Header.Set(TenantHeader, tenant.ID.String())

	res, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "tenant_sss", res.Schema())
}

func TestIsPublicPath(t *testing.T) {
	r := New(newFakeDirectory(), publicPaths, "")

	assert.True(t, r.IsPublicPath("/api/v1/auth/login"))
	assert.True(t, r.IsPublicPath("/api/v1/tenants/directory"))
	assert.True(t, r.IsPublicPath("/health"))
	assert.False(t, r.IsPublicPath("/api/v1/patients"))
	assert.False(t, r.IsPublicPath("/api/v1/tenants"))
}
