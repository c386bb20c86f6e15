package encounter

import "testing"

var allStatuses = []EncStatus{
	StatusCreated, StatusPreconsultInProgress, StatusPreconsultReady,
	StatusConsultationInProgress, StatusCompleted, StatusCancelled,
}

var expected = map[EncStatus]map[EncStatus]bool{
	StatusCreated:                {StatusPreconsultInProgress: true, StatusConsultationInProgress: true, StatusCancelled: true},
	StatusPreconsultInProgress:   {StatusPreconsultReady: true, StatusCancelled: true},
	StatusPreconsultReady:        {StatusConsultationInProgress: true, StatusCancelled: true},
	StatusConsultationInProgress: {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted:              {},
	StatusCancelled:              {},
}

func TestCanTransition_TableClosure(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := expected[from][to]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_UnknownStatusesFailClosed(t *testing.T) {
	for _, to := range allStatuses {
		if CanTransition(EncStatus("bogus"), to) {
			t.Errorf("unknown source must have no legal transitions, allowed -> %s", to)
		}
	}
	if CanTransition(StatusCreated, EncStatus("bogus")) {
		t.Error("unknown target must be denied")
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []EncStatus{StatusCompleted, StatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s must be terminal", s)
		}
		if targets := AllowedTargets(s); len(targets) != 0 {
			t.Errorf("%s must have no targets, got %v", s, targets)
		}
	}
	for _, s := range []EncStatus{StatusCreated, StatusPreconsultInProgress, StatusPreconsultReady, StatusConsultationInProgress} {
		if s.IsTerminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestInitialStatus(t *testing.T) {
	if got := initialStatus(ModeAssisted); got != StatusPreconsultInProgress {
		t.Errorf("assisted initial status = %s", got)
	}
	if got := initialStatus(ModeSolo); got != StatusConsultationInProgress {
		t.Errorf("solo initial status = %s", got)
	}
}

func TestModeIsValid(t *testing.T) {
	if !ModeSolo.IsValid() || !ModeAssisted.IsValid() {
		t.Error("solo and assisted must be valid modes")
	}
	if Mode("hybrid").IsValid() || Mode("").IsValid() {
		t.Error("unknown modes must be invalid")
	}
}
