package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smartcare-health/smartcare-hms/internal/model"
)

var (
	// ErrNotFound means no tenant matches the given identifier.
	ErrNotFound = errors.New("tenant not found")
	// ErrInvalid wraps request validation failures.
	ErrInvalid = errors.New("invalid request")
	// ErrDuplicate means a unique field (code, domain) is already taken.
	ErrDuplicate = errors.New("already exists")
)

// TenantStore is the registry persistence surface the service needs.
// *store.TenantRepository satisfies it.
type TenantStore interface {
	Create(ctx context.Context, tenant *model.Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	GetByCode(ctx context.Context, code string) (*model.Tenant, error)
	GetByHostname(ctx context.Context, hostname string) (*model.Tenant, error)
	Update(ctx context.Context, tenant *model.Tenant) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, status model.SubscriptionStatus, limit, offset int) ([]*model.Tenant, int, error)
	ListDirectory(ctx context.Context) ([]*model.Tenant, error)
	AddDomain(ctx context.Context, d *model.TenantDomain) error
	ListDomains(ctx context.Context, tenantID uuid.UUID) ([]*model.TenantDomain, error)
	GetDefaultPlan(ctx context.Context) (*model.SubscriptionPlan, error)
	CreateActivityLog(ctx context.Context, tenantID uuid.UUID, actor, action string, details interface{}) error
}

// Provisioning queues schema provisioning work. Satisfied by
// *ProvisioningService; tests substitute a no-op.
type Provisioning interface {
	QueueForProvisioning(tenant *model.Tenant)
}

// TenantService implements tenant administration: registration, lifecycle
// transitions, and the public directory.
type TenantService struct {
	store        TenantStore
	provisioning Provisioning
}

func NewTenantService(store TenantStore, provisioning Provisioning) *TenantService {
	return &TenantService{store: store, provisioning: provisioning}
}

// CreateTenantInput is the administrative registration request.
type CreateTenantInput struct {
	Name               string `json:"name"`
	Code               string `json:"code"`
	Domain             string `json:"domain"`
	ContactEmail       string `json:"contact_email"`
	Phone              string `json:"phone"`
	Address            string `json:"address"`
	City               string `json:"city"`
	Country            string `json:"country"`
	FacilityType       string `json:"facility_type"`
	RegistrationNumber string `json:"registration_number"`
}

// CreateTenant registers a new tenant: persists the record on the default
// plan in trial state, maps its primary domain, and queues schema
// provisioning. The schema name is derived from the code once and never
// changes afterward.
func (s *TenantService) CreateTenant(ctx context.Context, in CreateTenantInput, actor string) (*model.Tenant, error) {
	if err := validateCreateInput(in); err != nil {
		return nil, err
	}

	code := strings.ToUpper(in.Code)
	if code == "" {
		code = generateTenantCode(in.Name)
	}
	if existing, err := s.store.GetByCode(ctx, code); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("tenant code %q %w", code, ErrDuplicate)
	}
	if in.Domain != "" {
		if existing, err := s.store.GetByHostname(ctx, in.Domain); err != nil {
			return nil, err
		} else if existing != nil {
			return nil, fmt.Errorf("domain %q %w", in.Domain, ErrDuplicate)
		}
	}

	now := time.Now()
	tenant := &model.Tenant{
		Name:                  in.Name,
		Code:                  code,
		Domain:                in.Domain,
		SchemaName:            schemaNameForCode(code),
		ContactEmail:          in.ContactEmail,
		Phone:                 in.Phone,
		Address:               in.Address,
		City:                  in.City,
		Country:               in.Country,
		FacilityType:          in.FacilityType,
		RegistrationNumber:    in.RegistrationNumber,
		SubscriptionStatus:    model.StatusTrial,
		SubscriptionStartDate: now,
	}

	trialDays := model.DefaultTrialDays
	plan, err := s.store.GetDefaultPlan(ctx)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		tenant.PlanID = &plan.ID
		if plan.TrialPeriodDays > 0 {
			trialDays = plan.TrialPeriodDays
		}
	}
	end := now.AddDate(0, 0, trialDays)
	tenant.SubscriptionEndDate = &end

	if err := s.store.Create(ctx, tenant); err != nil {
		return nil, err
	}

	if tenant.Domain != "" {
		err := s.store.AddDomain(ctx, &model.TenantDomain{
			TenantID:  tenant.ID,
			Hostname:  tenant.Domain,
			IsPrimary: true,
		})
		if err != nil {
			log.Error().Err(err).Str("tenant_id", tenant.ID.String()).Msg("failed to map primary domain")
			return nil, err
		}
	}

	_ = s.store.CreateActivityLog(ctx, tenant.ID, actor, "create_tenant", map[string]interface{}{
		"name": tenant.Name, "code": tenant.Code, "schema": tenant.SchemaName,
	})

	if s.provisioning != nil {
		s.provisioning.QueueForProvisioning(tenant)
	}
	return tenant, nil
}

// GetTenant retrieves a tenant by id.
func (s *TenantService) GetTenant(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	tenant, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, ErrNotFound
	}
	return tenant, nil
}

// UpdateTenantInput carries the mutable administrative fields.
type UpdateTenantInput struct {
	Name               string `json:"name"`
	ContactEmail       string `json:"contact_email"`
	Phone              string `json:"phone"`
	Address            string `json:"address"`
	City               string `json:"city"`
	Country            string `json:"country"`
	FacilityType       string `json:"facility_type"`
	RegistrationNumber string `json:"registration_number"`
}

// UpdateTenant updates contact and facility metadata. Code, schema name, and
// subscription state are not touched here; lifecycle changes go through
// Transition.
func (s *TenantService) UpdateTenant(ctx context.Context, id uuid.UUID, in UpdateTenantInput, actor string) (*model.Tenant, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if in.ContactEmail != "" && !isValidEmail(in.ContactEmail) {
		return nil, fmt.Errorf("%w: invalid email format", ErrInvalid)
	}

	tenant, err := s.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}

	tenant.Name = in.Name
	tenant.ContactEmail = in.ContactEmail
	tenant.Phone = in.Phone
	tenant.Address = in.Address
	tenant.City = in.City
	tenant.Country = in.Country
	tenant.FacilityType = in.FacilityType
	tenant.RegistrationNumber = in.RegistrationNumber

	if err := s.store.Update(ctx, tenant); err != nil {
		return nil, err
	}
	_ = s.store.CreateActivityLog(ctx, tenant.ID, actor, "update_tenant", map[string]interface{}{"name": tenant.Name})
	return tenant, nil
}

// DeleteTenant soft-deletes the registry record. The schema stays in place;
// teardown is a separate, explicitly confirmed provisioner operation.
func (s *TenantService) DeleteTenant(ctx context.Context, id uuid.UUID, actor string) error {
	tenant, err := s.GetTenant(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	_ = s.store.CreateActivityLog(ctx, tenant.ID, actor, "delete_tenant", map[string]interface{}{"name": tenant.Name})
	return nil
}

// Transition applies a subscription lifecycle change through the closed
// transition table. Violations are rejected before any mutation reaches the
// store.
func (s *TenantService) Transition(ctx context.Context, id uuid.UUID, to model.SubscriptionStatus, actor string) (*model.Tenant, error) {
	tenant, err := s.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}

	from := tenant.SubscriptionStatus
	if err := tenant.Transition(to); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, tenant); err != nil {
		return nil, err
	}
	_ = s.store.CreateActivityLog(ctx, tenant.ID, actor, "transition_tenant", map[string]interface{}{
		"from": from, "to": to,
	})

	log.Info().
		Str("tenant_id", tenant.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("tenant subscription transitioned")
	return tenant, nil
}

// ListTenants returns the administrative tenant listing.
func (s *TenantService) ListTenants(ctx context.Context, status model.SubscriptionStatus, limit, offset int) ([]*model.Tenant, int, error) {
	if status != "" && !model.ValidStatus(status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	return s.store.List(ctx, status, limit, offset)
}

// Directory returns the public login-page listing of active and trial
// tenants.
func (s *TenantService) Directory(ctx context.Context) ([]*model.Tenant, error) {
	return s.store.ListDirectory(ctx)
}

// ListDomains returns the hostnames mapped to a tenant.
func (s *TenantService) ListDomains(ctx context.Context, id uuid.UUID) ([]*model.TenantDomain, error) {
	if _, err := s.GetTenant(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListDomains(ctx, id)
}

// AddDomain maps an additional hostname to a tenant.
func (s *TenantService) AddDomain(ctx context.Context, id uuid.UUID, hostname string, primary bool, actor string) (*model.TenantDomain, error) {
	if hostname == "" {
		return nil, fmt.Errorf("%w: hostname is required", ErrInvalid)
	}
	if _, err := s.GetTenant(ctx, id); err != nil {
		return nil, err
	}
	if existing, err := s.store.GetByHostname(ctx, hostname); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("domain %q %w", hostname, ErrDuplicate)
	}

	d := &model.TenantDomain{TenantID: id, Hostname: hostname, IsPrimary: primary}
	if err := s.store.AddDomain(ctx, d); err != nil {
		return nil, err
	}
	_ = s.store.CreateActivityLog(ctx, id, actor, "add_domain", map[string]interface{}{"hostname": hostname})
	return d, nil
}

func validateCreateInput(in CreateTenantInput) error {
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if in.ContactEmail == "" {
		return fmt.Errorf("%w: contact email is required", ErrInvalid)
	}
	if !isValidEmail(in.ContactEmail) {
		return fmt.Errorf("%w: invalid email format", ErrInvalid)
	}
	if in.Code != "" && !isValidCode(in.Code) {
		return fmt.Errorf("%w: invalid tenant code format", ErrInvalid)
	}
	return nil
}

// isValidCode accepts short alphanumeric tenant codes. The code becomes part
// of the schema name, so the character set is deliberately narrow.
func isValidCode(code string) bool {
	if len(code) < 2 || len(code) > 20 {
		return false
	}
	for _, r := range code {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') && r != '_' {
			return false
		}
	}
	return true
}

// isValidEmail performs a basic email validation
func isValidEmail(email string) bool {
	if len(email) < 3 || !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return false
	}
	return true
}

// generateTenantCode derives a unique-ish short code from the facility name:
// first letters plus four random digits. Collisions are caught by the
// uniqueness check in CreateTenant.
func generateTenantCode(name string) string {
	var letters []rune
	for _, r := range strings.ToUpper(name) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, r)
		}
		if len(letters) == 3 {
			break
		}
	}
	if len(letters) == 0 {
		letters = []rune("HSP")
	}
	return fmt.Sprintf("%s%04d", string(letters), rand.Intn(10000))
}

func schemaNameForCode(code string) string {
	return "tenant_" + strings.ToLower(code)
}
