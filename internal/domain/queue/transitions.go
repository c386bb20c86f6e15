package queue

// Status is the lifecycle state of a queue entry. The set is closed: anything
// outside it has no legal transitions.
type Status string

const (
	StatusPresent        Status = "present"
	StatusWaiting        Status = "waiting"
	StatusCalled         Status = "called"
	StatusInConsultation Status = "in_consultation"
	StatusAwaitingExam   Status = "awaiting_exam"
	StatusCompleted      Status = "completed"
	StatusClosed         Status = "closed"
	StatusCancelled      Status = "cancelled"
	StatusNoShow         Status = "no_show"
)

// transitions is the authoritative adjacency table. A transition is legal iff
// the target appears in the source's list.
var transitions = map[Status][]Status{
	StatusPresent:        {StatusWaiting, StatusCalled, StatusInConsultation, StatusNoShow, StatusCancelled},
	StatusWaiting:        {StatusCalled, StatusInConsultation, StatusNoShow, StatusCancelled},
	StatusCalled:         {StatusInConsultation, StatusWaiting, StatusNoShow},
	StatusInConsultation: {StatusAwaitingExam, StatusCompleted, StatusCancelled},
	StatusAwaitingExam:   {StatusInConsultation, StatusCompleted},
	StatusCompleted:      {StatusClosed},
	StatusClosed:         {},
	StatusCancelled:      {},
	StatusNoShow:         {},
}

// IsValid reports whether s is a member of the status enum.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s admits no further transitions.
func (s Status) IsTerminal() bool {
	targets, ok := transitions[s]
	return ok && len(targets) == 0
}

// CanTransition reports whether from→to is legal. Unknown statuses fail
// closed on either side.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the legal targets from a status, for UIs offering
// the next actions. The result is a copy; empty for terminal or unknown
// statuses.
func AllowedTargets(from Status) []Status {
	targets := transitions[from]
	out := make([]Status, len(targets))
	copy(out, targets)
	return out
}

// Timestamp columns stamped as a side effect of entering a status.
const (
	stampNone      = ""
	stampCalledAt  = "called_at"
	stampStartedAt = "started_at"
	stampDoneAt    = "completed_at"
)

// stampColumn returns which queue_entry timestamp column entering the target
// status sets, or stampNone.
func stampColumn(target Status) string {
	switch target {
	case StatusCalled:
		return stampCalledAt
	case StatusInConsultation:
		return stampStartedAt
	case StatusCompleted, StatusClosed, StatusCancelled, StatusNoShow:
		return stampDoneAt
	default:
		return stampNone
	}
}
