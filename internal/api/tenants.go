package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/smartcare-health/smartcare-hms/internal/model"
	"github.com/smartcare-health/smartcare-hms/internal/service"
	"github.com/smartcare-health/smartcare-hms/pkg/pagination"
)

// TenantHandler exposes the administrative tenant registry API and the
// public tenant directory.
type TenantHandler struct {
	svc *service.TenantService
}

func NewTenantHandler(svc *service.TenantService) *TenantHandler {
	return &TenantHandler{svc: svc}
}

// RegisterAdminRoutes mounts the registry endpoints. The caller attaches the
// admin-role guard; everything here operates on the public schema only.
func (h *TenantHandler) RegisterAdminRoutes(g *echo.Group) {
	g.POST("/tenants", h.Create)
	g.GET("/tenants", h.List)
	g.GET("/tenants/:id", h.Get)
	g.PUT("/tenants/:id", h.Update)
	g.DELETE("/tenants/:id", h.Delete)
	g.POST("/tenants/:id/activate", h.Activate)
	g.POST("/tenants/:id/suspend", h.Suspend)
	g.POST("/tenants/:id/cancel", h.Cancel)
	g.GET("/tenants/:id/domains", h.ListDomains)
	g.POST("/tenants/:id/domains", h.AddDomain)
}

// RegisterPublicRoutes mounts the unauthenticated directory endpoint used by
// the login page.
func (h *TenantHandler) RegisterPublicRoutes(g *echo.Group) {
	g.GET("/tenants/directory", h.Directory)
}

// tenantResponse is the API shape of a tenant record.
type tenantResponse struct {
	ID                 uuid.UUID                `json:"id"`
	Name               string                   `json:"name"`
	Code               string                   `json:"code"`
	Domain             string                   `json:"domain,omitempty"`
	SchemaName         string                   `json:"schema_name"`
	ContactEmail       string                   `json:"contact_email,omitempty"`
	Phone              string                   `json:"phone,omitempty"`
	City               string                   `json:"city,omitempty"`
	Country            string                   `json:"country,omitempty"`
	FacilityType       string                   `json:"facility_type,omitempty"`
	SubscriptionStatus model.SubscriptionStatus `json:"subscription_status"`
	TrialDaysRemaining int                      `json:"trial_days_remaining"`
	Provisioned        bool                     `json:"provisioned"`
	CreatedAt          string                   `json:"created_at"`
}

func toResponse(t *model.Tenant) tenantResponse {
	return tenantResponse{
		ID:                 t.ID,
		Name:               t.Name,
		Code:               t.Code,
		Domain:             t.Domain,
		SchemaName:         t.SchemaName,
		ContactEmail:       t.ContactEmail,
		Phone:              t.Phone,
		City:               t.City,
		Country:            t.Country,
		FacilityType:       t.FacilityType,
		SubscriptionStatus: t.SubscriptionStatus,
		TrialDaysRemaining: t.TrialDaysRemaining(timeNow()),
		Provisioned:        t.Provisioned,
		CreatedAt:          t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *TenantHandler) Create(c echo.Context) error {
	var in service.CreateTenantInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	tenant, err := h.svc.CreateTenant(c.Request().Context(), in, actor(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, toResponse(tenant))
}

func (h *TenantHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant id")
	}
	tenant, err := h.svc.GetTenant(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, toResponse(tenant))
}

func (h *TenantHandler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant id")
	}
	var in service.UpdateTenantInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	tenant, err := h.svc.UpdateTenant(c.Request().Context(), id, in, actor(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, toResponse(tenant))
}

func (h *TenantHandler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant id")
	}
	if err := h.svc.DeleteTenant(c.Request().Context(), id, actor(c)); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *TenantHandler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	status := model.SubscriptionStatus(c.QueryParam("status"))
	tenants, total, err := h.svc.ListTenants(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return mapServiceError(err)
	}
	out := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, toResponse(t))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset))
}

// directoryEntry is the minimal public listing: enough for a login page to
// offer a hospital picker, nothing more.
type directoryEntry struct {
	Name   string `json:"name"`
	Code   string `json:"code"`
	Domain string `json:"domain,omitempty"`
}

func (h *TenantHandler) Directory(c echo.Context) error {
	tenants, err := h.svc.Directory(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "directory unavailable")
	}
	out := make([]directoryEntry, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, directoryEntry{Name: t.Name, Code: t.Code, Domain: t.Domain})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tenants": out})
}

func (h *TenantHandler) Activate(c echo.Context) error {
	return h.transition(c, model.StatusActive)
}

func (h *TenantHandler) Suspend(c echo.Context) error {
	return h.transition(c, model.StatusSuspended)
}

func (h *TenantHandler) Cancel(c echo.Context) error {
	return h.transition(c, model.StatusCancelled)
}

func (h *TenantHandler) transition(c echo.Context, to model.SubscriptionStatus) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant id")
	}
	tenant, err := h.svc.Transition(c.Request().Context(), id, to, actor(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, toResponse(tenant))
}

func (h *TenantHandler) ListDomains(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant id")
	}
	domains, err := h.svc.ListDomains(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	if domains == nil {
		domains = []*model.TenantDomain{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"domains": domains})
}

type addDomainRequest struct {
	Hostname  string `json:"hostname"`
	IsPrimary bool   `json:"is_primary"`
}

func (h *TenantHandler) AddDomain(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant id")
	}
	var in addDomainRequest
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.AddDomain(c.Request().Context(), id, in.Hostname, in.IsPrimary, actor(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

// mapServiceError translates service errors into HTTP responses. Lifecycle
// violations report both states so operators can see exactly what was
// rejected.
func mapServiceError(err error) error {
	var transitionErr *model.ErrInvalidTransition
	switch {
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
	case errors.Is(err, service.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &transitionErr):
		return echo.NewHTTPError(http.StatusConflict, transitionErr.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
