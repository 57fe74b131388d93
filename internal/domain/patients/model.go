package patients

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a clinical record stored in the tenant's own schema. Rows for
// one hospital are never visible to another because every query runs on a
// connection whose search_path points at that hospital's schema.
type Patient struct {
	ID            uuid.UUID  `json:"id"`
	MRN           string     `json:"mrn"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
	Gender        string     `json:"gender,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Email         string     `json:"email,omitempty"`
	Address       string     `json:"address,omitempty"`
	BloodGroup    string     `json:"blood_group,omitempty"`
	DepartmentID  *uuid.UUID `json:"department_id,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// FullName returns the display name for listings.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}
