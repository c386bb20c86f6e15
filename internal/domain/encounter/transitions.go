package encounter

// EncStatus is the closed set of encounter lifecycle statuses.
type EncStatus string

const (
	StatusCreated                EncStatus = "created"
	StatusPreconsultInProgress   EncStatus = "preconsult_in_progress"
	StatusPreconsultReady        EncStatus = "preconsult_ready"
	StatusConsultationInProgress EncStatus = "consultation_in_progress"
	StatusCompleted              EncStatus = "completed"
	StatusCancelled              EncStatus = "cancelled"
)

// Mode selects the consultation workflow: solo is practitioner-only,
// assisted adds an assistant-run preconsultation phase.
type Mode string

const (
	ModeSolo     Mode = "solo"
	ModeAssisted Mode = "assisted"
)

func (m Mode) IsValid() bool { return m == ModeSolo || m == ModeAssisted }

// initialStatus picks where a fresh encounter starts for the given mode.
func initialStatus(mode Mode) EncStatus {
	if mode == ModeAssisted {
		return StatusPreconsultInProgress
	}
	return StatusConsultationInProgress
}

var transitions = map[EncStatus][]EncStatus{
	StatusCreated:                {StatusPreconsultInProgress, StatusConsultationInProgress, StatusCancelled},
	StatusPreconsultInProgress:   {StatusPreconsultReady, StatusCancelled},
	StatusPreconsultReady:        {StatusConsultationInProgress, StatusCancelled},
	StatusConsultationInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:              {},
	StatusCancelled:              {},
}

func (s EncStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s EncStatus) IsTerminal() bool {
	targets, ok := transitions[s]
	return ok && len(targets) == 0
}

// CanTransition reports whether target is reachable from current. Unknown
// statuses have no legal transitions.
func CanTransition(current, target EncStatus) bool {
	for _, t := range transitions[current] {
		if t == target {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable from current.
func AllowedTargets(current EncStatus) []EncStatus {
	targets := transitions[current]
	out := make([]EncStatus, len(targets))
	copy(out, targets)
	return out
}
