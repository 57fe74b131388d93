package model

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the lifecycle state of a tenant's subscription.
type SubscriptionStatus string

const (
	StatusTrial     SubscriptionStatus = "trial"
	StatusActive    SubscriptionStatus = "active"
	StatusSuspended SubscriptionStatus = "suspended"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

// DefaultTrialDays is used when a trial tenant has no subscription end date
// and no plan-specific trial window.
const DefaultTrialDays = 30

// Tenant represents one hospital/facility in the tenants table (public schema).
type Tenant struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	Domain     string    `json:"domain"`
	SchemaName string    `json:"schema_name"`

	ContactEmail   string `json:"contact_email,omitempty"` // transient, not stored in DB
	EncryptedEmail []byte `json:"-"`
	EmailNonce     []byte `json:"-"`
	Phone          string `json:"phone,omitempty"`
	Address        string `json:"address,omitempty"`
	City           string `json:"city,omitempty"`
	Country        string `json:"country,omitempty"`

	FacilityType       string `json:"facility_type,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`

	PlanID                *uuid.UUID         `json:"plan_id,omitempty"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	SubscriptionStartDate time.Time          `json:"subscription_start_date"`
	SubscriptionEndDate   *time.Time         `json:"subscription_end_date,omitempty"`

	Provisioned bool       `json:"provisioned"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// IsTrial reports whether the tenant is in its trial period.
func (t *Tenant) IsTrial() bool {
	return t.SubscriptionStatus == StatusTrial
}

// TrialDaysRemaining computes the remaining trial days as of now. It is a pure
// function of the stored dates: max(0, end-now) when an end date is set, else
// the default trial window.
func (t *Tenant) TrialDaysRemaining(now time.Time) int {
	if !t.IsTrial() {
		return 0
	}
	if t.SubscriptionEndDate == nil {
		return DefaultTrialDays
	}
	days := int(t.SubscriptionEndDate.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// TenantDomain maps a resolvable hostname to exactly one tenant. Multiple
// domains may point at one tenant; exactly one is primary.
type TenantDomain struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Hostname  string    `json:"hostname"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

// SubscriptionPlan defines resource ceilings and billing parameters shared by
// many tenants.
type SubscriptionPlan struct {
	ID                uuid.UUID `json:"id"`
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	PriceMonthly      float64   `json:"price_monthly"`
	Currency          string    `json:"currency"`
	MaxUsers          int       `json:"max_users"`
	MaxPatients       int       `json:"max_patients"`
	MaxStorageGB      int       `json:"max_storage_gb"`
	MaxAPICallsPerDay int       `json:"max_api_calls_per_day"`
	TrialPeriodDays   int       `json:"trial_period_days"`
	IsDefault         bool      `json:"is_default"`
	CreatedAt         time.Time `json:"created_at"`
}

// TenantMembership associates an authenticated principal (token subject) with
// a tenant. Backs the membership step of request resolution.
type TenantMembership struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Department is a tenant-scoped organizational unit. A default set is seeded
// into every freshly provisioned schema.
type Department struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	IsClinical bool      `json:"is_clinical"`
	CreatedAt  time.Time `json:"created_at"`
}
