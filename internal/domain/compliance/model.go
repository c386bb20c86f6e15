package compliance

import (
	"time"

	"github.com/google/uuid"
)

// TransitionCount is one cell of the per-day transition report.
type TransitionCount struct {
	Day      time.Time `db:"day" json:"day"`
	StepType string    `db:"step_type" json:"step_type"`
	Count    int       `db:"count" json:"count"`
}

// DurationStats aggregates waiting-room and consultation durations over a
// reporting window.
type DurationStats struct {
	From                time.Time `json:"from"`
	To                  time.Time `json:"to"`
	Entries             int       `json:"entries"`
	AvgWaitSeconds      float64   `json:"avg_wait_seconds"`
	AvgConsultSeconds   float64   `json:"avg_consult_seconds"`
	MaxWaitSeconds      float64   `json:"max_wait_seconds"`
	CompletedEncounters int       `json:"completed_encounters"`
}

// Divergence flags a queue entry whose stored status disagrees with the
// latest journey step, which should be impossible once transitions are
// transactional; rows here point at out-of-band writes.
type Divergence struct {
	QueueEntryID uuid.UUID `db:"queue_entry_id" json:"queue_entry_id"`
	EntryStatus  string    `db:"entry_status" json:"entry_status"`
	LastStepType string    `db:"last_step_type" json:"last_step_type"`
	LastStepAt   time.Time `db:"last_step_at" json:"last_step_at"`
}
