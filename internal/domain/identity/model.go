package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table, scoped to a structure.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	StructureID string     `db:"structure_id" json:"structure_id"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	BirthDate   *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender      *string    `db:"gender" json:"gender,omitempty"`
	PhoneMobile *string    `db:"phone_mobile" json:"phone_mobile,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Active      bool       `db:"active" json:"active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Practitioner maps to the practitioner table.
type Practitioner struct {
	ID          uuid.UUID `db:"id" json:"id"`
	StructureID string    `db:"structure_id" json:"structure_id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	Role        string    `db:"role" json:"role"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

var ErrNotFound = errors.New("record not found")
