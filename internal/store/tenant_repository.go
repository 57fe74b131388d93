package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartcare-health/smartcare-hms/internal/crypto"
	"github.com/smartcare-health/smartcare-hms/internal/model"
)

const tenantCacheTTL = 1 * time.Hour

// TenantRepository handles registry-schema persistence for tenants, domains,
// plans, and memberships, with a redis read-through cache on the lookups the
// resolver performs per request.
type TenantRepository struct {
	pool   *pgxpool.Pool
	redis  RedisClient
	cipher *crypto.Cipher
}

// NewTenantRepository creates a repository over an established pool. The redis
// client may be nil; caching is then skipped entirely. The cipher protects
// contact fields at rest and must match across every process writing or
// reading them.
func NewTenantRepository(pool *pgxpool.Pool, rdb RedisClient, cipher *crypto.Cipher) *TenantRepository {
	return &TenantRepository{pool: pool, redis: rdb, cipher: cipher}
}

// Pool exposes the underlying pool for components that manage their own
// connections (provisioner, resolver session factory).
func (r *TenantRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *TenantRepository) Close() error {
	r.pool.Close()
	if r.redis != nil {
		return r.redis.Close()
	}
	return nil
}

const tenantColumns = `id, name, code, domain, schema_name,
	encrypted_email, email_nonce, phone, address, city, country,
	facility_type, registration_number,
	plan_id, subscription_status, subscription_start_date, subscription_end_date,
	provisioned, created_at, updated_at, deleted_at`

func (r *TenantRepository) scanTenant(row pgx.Row) (*model.Tenant, error) {
	t := &model.Tenant{}
	err := row.Scan(
		&t.ID, &t.Name, &t.Code, &t.Domain, &t.SchemaName,
		&t.EncryptedEmail, &t.EmailNonce, &t.Phone, &t.Address, &t.City, &t.Country,
		&t.FacilityType, &t.RegistrationNumber,
		&t.PlanID, &t.SubscriptionStatus, &t.SubscriptionStartDate, &t.SubscriptionEndDate,
		&t.Provisioned, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(t.EncryptedEmail) > 0 && len(t.EmailNonce) > 0 {
		if r.cipher == nil {
			return nil, fmt.Errorf("contact email is encrypted but no field-encryption key is configured")
		}
		email, err := r.cipher.Decrypt(t.EncryptedEmail, t.EmailNonce)
		if err != nil {
			return nil, fmt.Errorf("decrypt contact email: %w", err)
		}
		t.ContactEmail = email
	}
	return t, nil
}

// Create inserts a new tenant. The contact email is encrypted at rest.
func (r *TenantRepository) Create(ctx context.Context, tenant *model.Tenant) error {
	tenant.ID = uuid.New()
	tenant.CreatedAt = time.Now()
	tenant.UpdatedAt = tenant.CreatedAt

	if tenant.ContactEmail != "" {
		if r.cipher == nil {
			return fmt.Errorf("no field-encryption key configured")
		}
		encrypted, nonce, err := r.cipher.Encrypt(tenant.ContactEmail)
		if err != nil {
			return err
		}
		tenant.EncryptedEmail = encrypted
		tenant.EmailNonce = nonce
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenants (
			id, name, code, domain, schema_name,
			encrypted_email, email_nonce, phone, address, city, country,
			facility_type, registration_number,
			plan_id, subscription_status, subscription_start_date, subscription_end_date,
			provisioned, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		tenant.ID, tenant.Name, tenant.Code, tenant.Domain, tenant.SchemaName,
		tenant.EncryptedEmail, tenant.EmailNonce, tenant.Phone, tenant.Address, tenant.City, tenant.Country,
		tenant.FacilityType, tenant.RegistrationNumber,
		tenant.PlanID, tenant.SubscriptionStatus, tenant.SubscriptionStartDate, tenant.SubscriptionEndDate,
		tenant.Provisioned, tenant.CreatedAt, tenant.UpdatedAt,
	)
	if err != nil {
		return err
	}

	r.invalidate(ctx, tenant)
	return nil
}

// GetByID retrieves a tenant by id, consulting the cache first.
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	key := fmt.Sprintf("tenant:%s", id)
	if t, ok := r.cached(ctx, key); ok {
		return t, nil
	}

	t, err := r.scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil || t == nil {
		return t, err
	}

	r.cache(ctx, key, t)
	return t, nil
}

// GetByCode retrieves a tenant by its short code.
func (r *TenantRepository) GetByCode(ctx context.Context, code string) (*model.Tenant, error) {
	return r.scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE code = $1 AND deleted_at IS NULL`, code))
}

// GetByHostname resolves a tenant via the tenant_domains table. Hit on every
// domain-resolved request, so cached. The hostname key stores only the tenant
// id while the record itself lives under the id key, so invalidating the id
// key covers every alias a tenant resolves through.
func (r *TenantRepository) GetByHostname(ctx context.Context, hostname string) (*model.Tenant, error) {
	domainKey := fmt.Sprintf("tenant:domain:%s", hostname)
	if r.redis != nil {
		if raw, err := r.redis.Get(ctx, domainKey).Result(); err == nil {
			if id, err := uuid.Parse(raw); err == nil {
				return r.GetByID(ctx, id)
			}
		}
	}

	t, err := r.scanTenant(r.pool.QueryRow(ctx, `
		SELECT `+tenantColumns+` FROM tenants t
		WHERE t.deleted_at IS NULL
		  AND t.id = (SELECT tenant_id FROM tenant_domains WHERE hostname = $1)`,
		hostname))
	if err != nil || t == nil {
		return t, err
	}

	if r.redis != nil {
		r.redis.SetEx(ctx, domainKey, t.ID.String(), tenantCacheTTL)
	}
	r.cache(ctx, fmt.Sprintf("tenant:%s", t.ID), t)
	return t, nil
}

// GetMembershipTenant returns the tenant a principal belongs to, or nil when
// the principal has no membership record.
func (r *TenantRepository) GetMembershipTenant(ctx context.Context, userID string) (*model.Tenant, error) {
	return r.scanTenant(r.pool.QueryRow(ctx, `
		SELECT `+tenantColumns+` FROM tenants t
		WHERE t.deleted_at IS NULL
		  AND t.id = (SELECT tenant_id FROM tenant_memberships WHERE user_id = $1 LIMIT 1)`,
		userID))
}

// Update persists mutable tenant fields. The schema name is immutable once
// assigned and is deliberately absent from the SET list.
func (r *TenantRepository) Update(ctx context.Context, tenant *model.Tenant) error {
	if tenant.ContactEmail != "" {
		if r.cipher == nil {
			return fmt.Errorf("no field-encryption key configured")
		}
		encrypted, nonce, err := r.cipher.Encrypt(tenant.ContactEmail)
		if err != nil {
			return err
		}
		tenant.EncryptedEmail = encrypted
		tenant.EmailNonce = nonce
	}

	tenant.UpdatedAt = time.Now()
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenants SET
			name = $2, domain = $3,
			encrypted_email = $4, email_nonce = $5, phone = $6, address = $7, city = $8, country = $9,
			facility_type = $10, registration_number = $11,
			plan_id = $12, subscription_status = $13,
			subscription_start_date = $14, subscription_end_date = $15,
			provisioned = $16, updated_at = $17
		WHERE id = $1 AND deleted_at IS NULL`,
		tenant.ID, tenant.Name, tenant.Domain,
		tenant.EncryptedEmail, tenant.EmailNonce, tenant.Phone, tenant.Address, tenant.City, tenant.Country,
		tenant.FacilityType, tenant.RegistrationNumber,
		tenant.PlanID, tenant.SubscriptionStatus,
		tenant.SubscriptionStartDate, tenant.SubscriptionEndDate,
		tenant.Provisioned, tenant.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	r.invalidate(ctx, tenant)
	return nil
}

// Delete soft-deletes a tenant record. Schema teardown is a separate, explicit
// provisioner operation.
func (r *TenantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tenant, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if tenant == nil {
		return pgx.ErrNoRows
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	r.invalidate(ctx, tenant)
	return nil
}

// List returns tenants, optionally filtered by subscription status.
func (r *TenantRepository) List(ctx context.Context, status model.SubscriptionStatus, limit, offset int) ([]*model.Tenant, int, error) {
	// An empty status matches every row, so one query shape serves both cases.
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM tenants
		WHERE deleted_at IS NULL AND ($1 = '' OR subscription_status = $1)`,
		string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+tenantColumns+` FROM tenants
		WHERE deleted_at IS NULL AND ($1 = '' OR subscription_status = $1)
		ORDER BY name LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tenants []*model.Tenant
	for rows.Next() {
		t, err := r.scanTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		tenants = append(tenants, t)
	}
	return tenants, total, rows.Err()
}

// ListDirectory returns the public login-page listing: active and trial
// tenants, minimal fields only.
func (r *TenantRepository) ListDirectory(ctx context.Context) ([]*model.Tenant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, code, domain FROM tenants
		WHERE deleted_at IS NULL AND subscription_status IN ('active', 'trial')
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*model.Tenant
	for rows.Next() {
		t := &model.Tenant{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Code, &t.Domain); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// SetProvisioned flips the provisioned flag after schema provisioning
// completes (or fails partway).
func (r *TenantRepository) SetProvisioned(ctx context.Context, id uuid.UUID, provisioned bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tenants SET provisioned = $2, updated_at = now() WHERE id = $1`, id, provisioned)
	if err != nil {
		return err
	}
	if r.redis != nil {
		r.redis.Del(ctx, fmt.Sprintf("tenant:%s", id))
	}
	return nil
}

// -- domains --

// AddDomain maps a hostname to a tenant. Demoting the previous primary is the
// caller's concern; the partial unique index enforces one primary per tenant.
func (r *TenantRepository) AddDomain(ctx context.Context, d *model.TenantDomain) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenant_domains (id, tenant_id, hostname, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.TenantID, d.Hostname, d.IsPrimary, d.CreatedAt)
	if err != nil {
		return err
	}
	if r.redis != nil {
		r.redis.Del(ctx, fmt.Sprintf("tenant:domain:%s", d.Hostname))
	}
	return nil
}

// ListDomains returns all hostnames mapped to a tenant.
func (r *TenantRepository) ListDomains(ctx context.Context, tenantID uuid.UUID) ([]*model.TenantDomain, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, hostname, is_primary, created_at
		FROM tenant_domains WHERE tenant_id = $1 ORDER BY is_primary DESC, hostname`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []*model.TenantDomain
	for rows.Next() {
		d := &model.TenantDomain{}
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Hostname, &d.IsPrimary, &d.CreatedAt); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// -- plans --

func scanPlan(row pgx.Row) (*model.SubscriptionPlan, error) {
	p := &model.SubscriptionPlan{}
	err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.PriceMonthly, &p.Currency,
		&p.MaxUsers, &p.MaxPatients, &p.MaxStorageGB, &p.MaxAPICallsPerDay,
		&p.TrialPeriodDays, &p.IsDefault, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

const planColumns = `id, code, name, price_monthly, currency,
	max_users, max_patients, max_storage_gb, max_api_calls_per_day,
	trial_period_days, is_default, created_at`

// GetPlan retrieves a subscription plan by id.
func (r *TenantRepository) GetPlan(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	return scanPlan(r.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, id))
}

// GetDefaultPlan returns the plan new tenants start their trial on.
func (r *TenantRepository) GetDefaultPlan(ctx context.Context) (*model.SubscriptionPlan, error) {
	return scanPlan(r.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE is_default ORDER BY created_at LIMIT 1`))
}

// -- audit trails --

// CreateProvisioningLog records one provisioning step. These rows are the
// durable evidence of a partially provisioned tenant.
func (r *TenantRepository) CreateProvisioningLog(ctx context.Context, tenantID uuid.UUID, step, status string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO tenant_provisioning_logs (tenant_id, step, status, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		tenantID, step, status, detailsJSON, time.Now())
	return err
}

// CreateActivityLog records an administrative action against a tenant.
func (r *TenantRepository) CreateActivityLog(ctx context.Context, tenantID uuid.UUID, actor, action string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO tenant_activity_logs (tenant_id, actor, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		tenantID, actor, action, detailsJSON, time.Now())
	return err
}

// -- cache helpers --

// tenantCacheEntry is the redis payload shape. The contact email travels only
// as ciphertext, exactly as it does in the tenants table; the plaintext field
// is cleared before marshaling and reconstructed on read.
type tenantCacheEntry struct {
	Tenant         model.Tenant `json:"tenant"`
	EncryptedEmail []byte       `json:"encrypted_email,omitempty"`
	EmailNonce     []byte       `json:"email_nonce,omitempty"`
}

func (r *TenantRepository) cached(ctx context.Context, key string) (*model.Tenant, bool) {
	if r.redis == nil {
		return nil, false
	}
	raw, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	var entry tenantCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false
	}
	if entry.Tenant.ID == uuid.Nil {
		return nil, false
	}

	t := entry.Tenant
	t.EncryptedEmail = entry.EncryptedEmail
	t.EmailNonce = entry.EmailNonce
	if len(t.EncryptedEmail) > 0 && len(t.EmailNonce) > 0 {
		if r.cipher == nil {
			return nil, false
		}
		email, err := r.cipher.Decrypt(t.EncryptedEmail, t.EmailNonce)
		if err != nil {
			return nil, false
		}
		t.ContactEmail = email
	}
	return &t, true
}

func (r *TenantRepository) cache(ctx context.Context, key string, t *model.Tenant) {
	if r.redis == nil {
		return
	}
	entry := tenantCacheEntry{
		Tenant:         *t,
		EncryptedEmail: t.EncryptedEmail,
		EmailNonce:     t.EmailNonce,
	}
	entry.Tenant.ContactEmail = ""
	if data, err := json.Marshal(entry); err == nil {
		r.redis.SetEx(ctx, key, data, tenantCacheTTL)
	}
}

// invalidate drops the cached record after any registry write. Hostname keys
// map hostnames to ids and never carry subscription state, so they may
// outlive the write; once the id key is gone, nothing stale can be served
// through them.
func (r *TenantRepository) invalidate(ctx context.Context, t *model.Tenant) {
	if r.redis == nil {
		return
	}
	r.redis.Del(ctx, fmt.Sprintf("tenant:%s", t.ID))
}
