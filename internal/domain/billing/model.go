package billing

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// BillingCode is a catalog entry for a billable act.
type BillingCode struct {
	ID          uuid.UUID `db:"id" json:"id"`
	StructureID string    `db:"structure_id" json:"structure_id"`
	Code        string    `db:"code" json:"code"`
	Label       string    `db:"label" json:"label"`
	PriceCents  int       `db:"price_cents" json:"price_cents"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// BillingLine attaches a billable act to an encounter. Lines must all be
// validated before the linked queue entry may close.
type BillingLine struct {
	ID          uuid.UUID `db:"id" json:"id"`
	EncounterID uuid.UUID `db:"encounter_id" json:"encounter_id"`
	Code        string    `db:"code" json:"code"`
	Quantity    int       `db:"quantity" json:"quantity"`
	PriceCents  int       `db:"price_cents" json:"price_cents"`
	Validated   bool      `db:"validated" json:"validated"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

var ErrNotFound = errors.New("billing record not found")
