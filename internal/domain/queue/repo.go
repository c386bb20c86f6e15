package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the entry and its initial journey step atomically.
	Create(ctx context.Context, entry *QueueEntry, step *JourneyStep) error
	GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	// ApplyTransition performs the conditional status update and the journey
	// step insert in one transaction. The update only lands when the entry
	// still has the expected status; otherwise ErrConcurrentModification (or
	// ErrNotFound) is returned and nothing is written.
	ApplyTransition(ctx context.Context, entryID uuid.UUID, expected Status, step *JourneyStep) (*QueueEntry, error)
	// SetReadyAt stamps ready_at; used when a linked encounter signals
	// preconsult-ready.
	SetReadyAt(ctx context.Context, entryID uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*QueueEntry, int, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*QueueEntry, int, error)
	// ListActive returns entries whose status is not terminal, ordered by
	// priority then arrival; feeds the waiting-room board.
	ListActive(ctx context.Context, structureID string) ([]*QueueEntry, error)
	JourneySteps(ctx context.Context, entryID uuid.UUID) ([]*JourneyStep, error)
}
