package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority bounds for queue entries (1 = urgent, 3 = normal).
const (
	PriorityUrgent = 1
	PriorityNormal = 3
)

// QueueEntry maps to the queue_entry table: one row per patient
// visit-in-progress at the front desk.
type QueueEntry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	StructureID string     `db:"structure_id" json:"structure_id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Status      Status     `db:"status" json:"status"`
	Priority    int        `db:"priority" json:"priority"`
	ArrivalTime time.Time  `db:"arrival_time" json:"arrival_time"`
	CheckedInAt *time.Time `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CalledAt    *time.Time `db:"called_at" json:"called_at,omitempty"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ReadyAt     *time.Time `db:"ready_at" json:"ready_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// JourneyStep maps to the patient_journey_step table: the append-only audit
// trail of a queue entry. Rows are immutable once written.
type JourneyStep struct {
	ID           uuid.UUID `db:"id" json:"id"`
	QueueEntryID uuid.UUID `db:"queue_entry_id" json:"queue_entry_id"`
	StepType     Status    `db:"step_type" json:"step_type"`
	StepAt       time.Time `db:"step_at" json:"step_at"`
	PerformedBy  string    `db:"performed_by" json:"performed_by"`
	Notes        string    `db:"notes" json:"notes,omitempty"`
}

// TransitionDeniedError reports an illegal transition attempt. The entry is
// left untouched.
type TransitionDeniedError struct {
	From Status
	To   Status
}

func (e *TransitionDeniedError) Error() string {
	return fmt.Sprintf("transition denied: %s -> %s", e.From, e.To)
}

// ErrNotFound is returned when a queue entry does not exist.
var ErrNotFound = errors.New("queue entry not found")

// ErrConcurrentModification is returned when the entry's status changed
// between the read and the conditional update; callers re-read and retry.
var ErrConcurrentModification = errors.New("queue entry modified concurrently")
