package admin

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Structure is a tenant row: one clinic or practice, carrying its own
// database schema.
type Structure struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Timezone  string    `db:"timezone" json:"timezone"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TeamMember attaches a user to a structure with a role.
type TeamMember struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	StructureID string    `db:"structure_id" json:"structure_id"`
	Role        string    `db:"role" json:"role"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RolePermission maps a role to a named permission within a structure.
type RolePermission struct {
	ID          uuid.UUID `db:"id" json:"id"`
	StructureID string    `db:"structure_id" json:"structure_id"`
	Role        string    `db:"role" json:"role"`
	Permission  string    `db:"permission" json:"permission"`
}

var ErrNotFound = errors.New("admin record not found")
