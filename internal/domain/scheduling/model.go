package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApptStatus is the closed set of appointment statuses.
type ApptStatus string

const (
	StatusBooked    ApptStatus = "booked"
	StatusArrived   ApptStatus = "arrived"
	StatusFulfilled ApptStatus = "fulfilled"
	StatusCancelled ApptStatus = "cancelled"
	StatusNoShow    ApptStatus = "noshow"
)

var transitions = map[ApptStatus][]ApptStatus{
	StatusBooked:    {StatusArrived, StatusCancelled, StatusNoShow},
	StatusArrived:   {StatusFulfilled, StatusCancelled},
	StatusFulfilled: {},
	StatusCancelled: {},
	StatusNoShow:    {},
}

func (s ApptStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether target is reachable from current; unknown
// statuses have no legal transitions.
func CanTransition(current, target ApptStatus) bool {
	for _, t := range transitions[current] {
		if t == target {
			return true
		}
	}
	return false
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	StructureID    string     `db:"structure_id" json:"structure_id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	PractitionerID *uuid.UUID `db:"practitioner_id" json:"practitioner_id,omitempty"`
	StartTime      time.Time  `db:"start_time" json:"start_time"`
	EndTime        time.Time  `db:"end_time" json:"end_time"`
	Reason         string     `db:"reason" json:"reason,omitempty"`
	Status         ApptStatus `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// TransitionDeniedError reports an illegal appointment status change.
type TransitionDeniedError struct {
	From ApptStatus
	To   ApptStatus
}

func (e *TransitionDeniedError) Error() string {
	return fmt.Sprintf("transition denied: %s -> %s", e.From, e.To)
}

var ErrNotFound = errors.New("appointment not found")
