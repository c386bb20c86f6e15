package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/queue"
)

type mockRepo struct {
	appointments map[uuid.UUID]*Appointment
}

func newMockRepo() *mockRepo {
	return &mockRepo{appointments: make(map[uuid.UUID]*Appointment)}
}

func (m *mockRepo) Create(ctx context.Context, appt *Appointment) error {
	appt.ID = uuid.New()
	cp := *appt
	m.appointments[appt.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, ok := m.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *appt
	return &cp, nil
}

func (m *mockRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status ApptStatus) error {
	appt, ok := m.appointments[id]
	if !ok {
		return ErrNotFound
	}
	appt.Status = status
	return nil
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range m.appointments {
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByDay(ctx context.Context, day time.Time, limit, offset int) ([]*Appointment, int, error) {
	from := day.Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)
	var out []*Appointment
	for _, a := range m.appointments {
		if !a.StartTime.Before(from) && a.StartTime.Before(to) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range m.appointments {
		if a.PractitionerID != nil && *a.PractitionerID == practitionerID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) Overlaps(ctx context.Context, practitionerID uuid.UUID, start, end time.Time) (bool, error) {
	for _, a := range m.appointments {
		if a.PractitionerID == nil || *a.PractitionerID != practitionerID {
			continue
		}
		if a.Status == StatusCancelled || a.Status == StatusNoShow {
			continue
		}
		if a.StartTime.Before(end) && a.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

type mockCheckIn struct {
	patientID   uuid.UUID
	structureID string
	calls       int
	err         error
}

func (m *mockCheckIn) CheckIn(ctx context.Context, patientID uuid.UUID, structureID string, priority int, actorID string) (*queue.QueueEntry, error) {
	m.calls++
	m.patientID = patientID
	m.structureID = structureID
	if m.err != nil {
		return nil, m.err
	}
	return &queue.QueueEntry{ID: uuid.New(), PatientID: patientID, StructureID: structureID, Status: queue.StatusPresent}, nil
}

func book(t *testing.T, svc *Service, practitionerID *uuid.UUID, start time.Time) *Appointment {
	t.Helper()
	appt := &Appointment{
		StructureID:    "clinic-1",
		PatientID:      uuid.New(),
		PractitionerID: practitionerID,
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
	}
	if err := svc.Book(context.Background(), appt); err != nil {
		t.Fatalf("Book: %v", err)
	}
	return appt
}

func TestBook(t *testing.T) {
	svc := NewService(newMockRepo(), nil, zerolog.Nop())
	appt := book(t, svc, nil, time.Now().UTC().Add(time.Hour))
	if appt.Status != StatusBooked {
		t.Errorf("status = %s, want booked", appt.Status)
	}
}

func TestBook_Validation(t *testing.T) {
	svc := NewService(newMockRepo(), nil, zerolog.Nop())
	ctx := context.Background()
	start := time.Now().UTC()

	cases := []struct {
		name string
		appt Appointment
	}{
		{"missing patient", Appointment{StructureID: "clinic-1", StartTime: start}},
		{"missing structure", Appointment{PatientID: uuid.New(), StartTime: start}},
		{"missing start", Appointment{StructureID: "clinic-1", PatientID: uuid.New()}},
		{"end before start", Appointment{StructureID: "clinic-1", PatientID: uuid.New(), StartTime: start, EndTime: start.Add(-time.Minute)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appt := tc.appt
			if err := svc.Book(ctx, &appt); err == nil {
				t.Error("want validation error")
			}
		})
	}
}

func TestBook_RejectsOverlap(t *testing.T) {
	svc := NewService(newMockRepo(), nil, zerolog.Nop())
	practitionerID := uuid.New()
	start := time.Now().UTC().Add(time.Hour)
	book(t, svc, &practitionerID, start)

	overlap := &Appointment{
		StructureID:    "clinic-1",
		PatientID:      uuid.New(),
		PractitionerID: &practitionerID,
		StartTime:      start.Add(10 * time.Minute),
		EndTime:        start.Add(40 * time.Minute),
	}
	if err := svc.Book(context.Background(), overlap); err == nil {
		t.Error("overlapping slot must be rejected")
	}

	// A different practitioner is free to take the slot.
	otherID := uuid.New()
	book(t, svc, &otherID, start)
}

func TestUpdateStatus_ArrivedChecksIntoQueue(t *testing.T) {
	checkIn := &mockCheckIn{}
	svc := NewService(newMockRepo(), checkIn, zerolog.Nop())
	appt := book(t, svc, nil, time.Now().UTC())

	updated, err := svc.UpdateStatus(context.Background(), appt.ID, StatusArrived, "reception-1")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != StatusArrived {
		t.Errorf("status = %s", updated.Status)
	}
	if checkIn.calls != 1 || checkIn.patientID != appt.PatientID || checkIn.structureID != "clinic-1" {
		t.Errorf("check-in calls = %d for %s", checkIn.calls, checkIn.patientID)
	}
}

func TestUpdateStatus_CheckInFailureIsNonFatal(t *testing.T) {
	checkIn := &mockCheckIn{err: errors.New("queue unavailable")}
	svc := NewService(newMockRepo(), checkIn, zerolog.Nop())
	appt := book(t, svc, nil, time.Now().UTC())

	updated, err := svc.UpdateStatus(context.Background(), appt.ID, StatusArrived, "reception-1")
	if err != nil {
		t.Fatalf("arrival must land even when queue check-in fails: %v", err)
	}
	if updated.Status != StatusArrived {
		t.Errorf("status = %s", updated.Status)
	}
}

func TestUpdateStatus_Denied(t *testing.T) {
	checkIn := &mockCheckIn{}
	svc := NewService(newMockRepo(), checkIn, zerolog.Nop())
	appt := book(t, svc, nil, time.Now().UTC())

	_, err := svc.UpdateStatus(context.Background(), appt.ID, StatusFulfilled, "a")
	var denied *TransitionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("booked -> fulfilled must be denied, got %v", err)
	}
	if checkIn.calls != 0 {
		t.Error("denied transition must not trigger check-in")
	}

	after, _ := svc.Appointment(context.Background(), appt.ID)
	if after.Status != StatusBooked {
		t.Errorf("status = %s, denied transition must not mutate", after.Status)
	}
}

func TestUpdateStatus_NoCheckInForOtherTargets(t *testing.T) {
	checkIn := &mockCheckIn{}
	svc := NewService(newMockRepo(), checkIn, zerolog.Nop())
	appt := book(t, svc, nil, time.Now().UTC())

	if _, err := svc.UpdateStatus(context.Background(), appt.ID, StatusCancelled, "a"); err != nil {
		t.Fatal(err)
	}
	if checkIn.calls != 0 {
		t.Error("cancellation must not check the patient in")
	}
}
