package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status ApptStatus) error
	List(ctx context.Context, limit, offset int) ([]*Appointment, int, error)
	// ListByDay returns appointments starting within [day, day+24h), ordered
	// by start_time; feeds the front-desk day view.
	ListByDay(ctx context.Context, day time.Time, limit, offset int) ([]*Appointment, int, error)
	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	// Overlaps reports whether the practitioner already has a non-cancelled
	// appointment intersecting [start, end).
	Overlaps(ctx context.Context, practitionerID uuid.UUID, start, end time.Time) (bool, error)
}
