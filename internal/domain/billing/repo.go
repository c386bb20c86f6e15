package billing

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateCode(ctx context.Context, code *BillingCode) error
	GetCode(ctx context.Context, id uuid.UUID) (*BillingCode, error)
	GetCodeByCode(ctx context.Context, structureID, code string) (*BillingCode, error)
	UpdateCode(ctx context.Context, code *BillingCode) error
	ListCodes(ctx context.Context, limit, offset int) ([]*BillingCode, int, error)

	AddLine(ctx context.Context, line *BillingLine) error
	RemoveLine(ctx context.Context, id uuid.UUID) error
	LinesByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*BillingLine, error)
	// ValidateLines marks every line of the encounter validated, returning
	// the number touched.
	ValidateLines(ctx context.Context, encounterID uuid.UUID) (int, error)
}
