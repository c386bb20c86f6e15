package encounter

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Encounter maps to the encounter table: one clinical episode per patient
// per day, resumed rather than duplicated while non-terminal.
type Encounter struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	StructureID    string     `db:"structure_id" json:"structure_id"`
	Mode           Mode       `db:"mode" json:"mode"`
	Status         EncStatus  `db:"status" json:"status"`
	QueueEntryID   *uuid.UUID `db:"queue_entry_id" json:"queue_entry_id,omitempty"`
	AppointmentID  *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	PractitionerID *uuid.UUID `db:"assigned_practitioner_id" json:"assigned_practitioner_id,omitempty"`
	AssistantID    *uuid.UUID `db:"assigned_assistant_id" json:"assigned_assistant_id,omitempty"`
	OpenedOn       time.Time  `db:"opened_on" json:"opened_on"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	EndedAt        *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Linkage carries the optional references attached to a freshly opened
// encounter.
type Linkage struct {
	QueueEntryID   *uuid.UUID `json:"queue_entry_id,omitempty"`
	AppointmentID  *uuid.UUID `json:"appointment_id,omitempty"`
	PractitionerID *uuid.UUID `json:"assigned_practitioner_id,omitempty"`
	AssistantID    *uuid.UUID `json:"assigned_assistant_id,omitempty"`
}

// StatusHistoryEntry maps to the encounter_status_history table. Rows are
// immutable once written.
type StatusHistoryEntry struct {
	ID          uuid.UUID `db:"id" json:"id"`
	EncounterID uuid.UUID `db:"encounter_id" json:"encounter_id"`
	Status      EncStatus `db:"status" json:"status"`
	ChangedAt   time.Time `db:"changed_at" json:"changed_at"`
	ChangedBy   string    `db:"changed_by" json:"changed_by"`
	Notes       string    `db:"notes" json:"notes,omitempty"`
}

// CreationFailedError reports that an encounter could not be opened, either
// because required identifiers were missing or the store rejected the write.
type CreationFailedError struct {
	Reason string
	Err    error
}

func (e *CreationFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encounter creation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("encounter creation failed: %s", e.Reason)
}

func (e *CreationFailedError) Unwrap() error { return e.Err }

// TransitionDeniedError reports an illegal status change attempt.
type TransitionDeniedError struct {
	From EncStatus
	To   EncStatus
}

func (e *TransitionDeniedError) Error() string {
	return fmt.Sprintf("transition denied: %s -> %s", e.From, e.To)
}

// ErrNotFound is returned when an encounter does not exist.
var ErrNotFound = errors.New("encounter not found")

// ErrConcurrentModification is returned when the encounter's status changed
// between the read and the conditional update.
var ErrConcurrentModification = errors.New("encounter modified concurrently")
