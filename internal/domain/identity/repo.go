package identity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	UpdatePatient(ctx context.Context, p *Patient) error
	DeletePatient(ctx context.Context, id uuid.UUID) error
	ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	// SearchPatients matches first or last name, case-insensitive prefix.
	SearchPatients(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error)

	CreatePractitioner(ctx context.Context, p *Practitioner) error
	GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	UpdatePractitioner(ctx context.Context, p *Practitioner) error
	DeletePractitioner(ctx context.Context, id uuid.UUID) error
	ListPractitioners(ctx context.Context, limit, offset int) ([]*Practitioner, int, error)
}
