package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/smartcare-health/smartcare-hms/internal/tenantctx"
)

// ErrNoTenantSession means the request context carries no schema-scoped
// session. Patient data is only reachable through a resolved tenant.
var ErrNoTenantSession = errors.New("no tenant session in context")

// RepoPG persists patients through the request's tenant session. It holds no
// connection of its own: the schema-scoped connection travels in the
// context, so a repo instance can safely serve every tenant.
type RepoPG struct{}

func NewRepoPG() *RepoPG {
	return &RepoPG{}
}

func (r *RepoPG) conn(ctx context.Context) (tenantctx.Querier, error) {
	if q := tenantctx.SessionFromContext(ctx); q != nil {
		return q, nil
	}
	return nil, ErrNoTenantSession
}

const patientCols = `id, mrn, first_name, last_name, date_of_birth, gender,
	phone, email, address, blood_group, department_id, active,
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Phone, &p.Email, &p.Address, &p.BloodGroup, &p.DepartmentID, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RepoPG) Create(ctx context.Context, p *Patient) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err = conn.Exec(ctx, `
		INSERT INTO patients (id, mrn, first_name, last_name, date_of_birth, gender,
			phone, email, address, blood_group, department_id, active,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
		p.Phone, p.Email, p.Address, p.BloodGroup, p.DepartmentID, p.Active,
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM patients WHERE id = $1", patientCols)
	return scanPatient(conn.QueryRow(ctx, q, id))
}

func (r *RepoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM patients WHERE mrn = $1", patientCols)
	return scanPatient(conn.QueryRow(ctx, q, mrn))
}

func (r *RepoPG) Update(ctx context.Context, p *Patient) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	tag, err := conn.Exec(ctx, `
		UPDATE patients SET first_name = $2, last_name = $3, date_of_birth = $4,
			gender = $5, phone = $6, email = $7, address = $8, blood_group = $9,
			department_id = $10, active = $11, updated_at = $12
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth,
		p.Gender, p.Phone, p.Email, p.Address, p.BloodGroup,
		p.DepartmentID, p.Active, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *RepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	_, err = conn.Exec(ctx, `UPDATE patients SET active = false, updated_at = now() WHERE id = $1`, id)
	return err
}

func (r *RepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, 0, err
	}

	where := `WHERE ($1 = '' OR mrn ILIKE '%' || $1 || '%'
		OR first_name ILIKE '%' || $1 || '%' OR last_name ILIKE '%' || $1 || '%')`

	var total int
	if err := conn.QueryRow(ctx, "SELECT count(*) FROM patients "+where, search).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM patients %s ORDER BY last_name, first_name LIMIT $2 OFFSET $3`,
		patientCols, where)
	rows, err := conn.Query(ctx, q, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		var p Patient
		err := rows.Scan(
			&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
			&p.Phone, &p.Email, &p.Address, &p.BloodGroup, &p.DepartmentID, &p.Active,
			&p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, &p)
	}
	return out, total, rows.Err()
}
