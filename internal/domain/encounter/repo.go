package encounter

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// OpenOrCreate inserts the encounter unless a non-terminal one already
	// exists for (patient, structure, opened_on); the existing row wins and
	// is returned with created=false. On insert the initial history entry is
	// written in the same transaction.
	OpenOrCreate(ctx context.Context, enc *Encounter, hist *StatusHistoryEntry) (*Encounter, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error)
	// GetByQueueEntry resolves the encounter linked to a queue entry; used by
	// billing before the queue closes an entry.
	GetByQueueEntry(ctx context.Context, queueEntryID uuid.UUID) (*Encounter, error)
	// ApplyStatus performs the conditional status update and the history
	// insert in one transaction, mirroring the queue repository's
	// compare-and-swap discipline.
	ApplyStatus(ctx context.Context, id uuid.UUID, expected EncStatus, hist *StatusHistoryEntry) (*Encounter, error)
	List(ctx context.Context, limit, offset int) ([]*Encounter, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error)
	StatusHistory(ctx context.Context, encounterID uuid.UUID) ([]*StatusHistoryEntry, error)
}
