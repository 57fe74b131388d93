package tenantctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/smartcare-health/smartcare-hms/internal/model"
)

func TestResolutionSchema(t *testing.T) {
	public := Resolution{Source: SourcePublic}
	assert.True(t, public.IsPublic())
	assert.Equal(t, PublicSchema, public.Schema())

	tenant := &model.Tenant{ID: uuid.New(), Code: "CTY", SchemaName: "tenant_cty"}
	scoped := Resolution{Tenant: tenant, Source: SourceHeader}
	assert.False(t, scoped.IsPublic())
	assert.Equal(t, "tenant_cty", scoped.Schema())
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, ok := FromContext(ctx)
	assert.False(t, ok)
	assert.Nil(t, SessionFromContext(ctx))

	res := Resolution{Tenant: &model.Tenant{Code: "CTY"}, Source: SourceDomain}
	ctx = WithResolution(ctx, res)

	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "CTY", got.Tenant.Code)
	assert.Equal(t, SourceDomain, got.Source)
}
