package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/board"
	"github.com/clinicdesk/clinicdesk/internal/platform/telemetry"
)

type mockRepo struct {
	entries map[uuid.UUID]*QueueEntry
	steps   map[uuid.UUID][]*JourneyStep

	applyErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		entries: make(map[uuid.UUID]*QueueEntry),
		steps:   make(map[uuid.UUID][]*JourneyStep),
	}
}

func (m *mockRepo) Create(ctx context.Context, entry *QueueEntry, step *JourneyStep) error {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()
	entry.UpdatedAt = entry.CreatedAt
	cp := *entry
	m.entries[entry.ID] = &cp

	step.ID = uuid.New()
	step.QueueEntryID = entry.ID
	sc := *step
	m.steps[entry.ID] = append(m.steps[entry.ID], &sc)
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (m *mockRepo) ApplyTransition(ctx context.Context, entryID uuid.UUID, expected Status, step *JourneyStep) (*QueueEntry, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	entry, ok := m.entries[entryID]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.Status != expected {
		return nil, ErrConcurrentModification
	}

	entry.Status = step.StepType
	at := step.StepAt
	switch stampColumn(step.StepType) {
	case stampCalledAt:
		entry.CalledAt = &at
	case stampStartedAt:
		entry.StartedAt = &at
	case stampDoneAt:
		entry.CompletedAt = &at
	}
	entry.UpdatedAt = at

	step.ID = uuid.New()
	step.QueueEntryID = entryID
	sc := *step
	m.steps[entryID] = append(m.steps[entryID], &sc)

	cp := *entry
	return &cp, nil
}

func (m *mockRepo) SetReadyAt(ctx context.Context, entryID uuid.UUID, at time.Time) error {
	entry, ok := m.entries[entryID]
	if !ok {
		return ErrNotFound
	}
	entry.ReadyAt = &at
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	delete(m.steps, id)
	return nil
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*QueueEntry, int, error) {
	var out []*QueueEntry
	for _, e := range m.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*QueueEntry, int, error) {
	var out []*QueueEntry
	for _, e := range m.entries {
		if e.Status == status {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListActive(ctx context.Context, structureID string) ([]*QueueEntry, error) {
	var out []*QueueEntry
	for _, e := range m.entries {
		if e.StructureID == structureID && !e.Status.IsTerminal() {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) JourneySteps(ctx context.Context, entryID uuid.UUID) ([]*JourneyStep, error) {
	steps := make([]*JourneyStep, len(m.steps[entryID]))
	copy(steps, m.steps[entryID])
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].StepAt.Before(steps[j].StepAt) })
	return steps, nil
}

type mockPublisher struct {
	events []board.Event
}

func (m *mockPublisher) Publish(ctx context.Context, event board.Event) error {
	m.events = append(m.events, event)
	return nil
}

type denyGate struct{ reason string }

func (g denyGate) AllowClosure(context.Context, *QueueEntry) error {
	return errors.New(g.reason)
}

func newTestService(repo Repository, gate ClosureGate) (*Service, *mockPublisher) {
	pub := &mockPublisher{}
	svc := NewService(repo, gate, telemetry.New(), pub, zerolog.Nop())
	return svc, pub
}

func checkIn(t *testing.T, svc *Service) *QueueEntry {
	t.Helper()
	entry, err := svc.CheckIn(context.Background(), uuid.New(), "clinic-1", 0, "reception-1")
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	return entry
}

func TestCheckIn(t *testing.T) {
	repo := newMockRepo()
	svc, pub := newTestService(repo, nil)

	entry := checkIn(t, svc)
	if entry.Status != StatusPresent {
		t.Errorf("status = %s, want present", entry.Status)
	}
	if entry.Priority != PriorityNormal {
		t.Errorf("priority = %d, want default %d", entry.Priority, PriorityNormal)
	}
	if entry.CheckedInAt == nil || entry.ArrivalTime.IsZero() {
		t.Error("check-in must stamp arrival and checked_in_at")
	}

	steps, _ := svc.JourneySteps(context.Background(), entry.ID)
	if len(steps) != 1 {
		t.Fatalf("steps = %d, want 1 initial step", len(steps))
	}
	if steps[0].StepType != StatusPresent || steps[0].PerformedBy != "reception-1" {
		t.Errorf("initial step = %+v", steps[0])
	}

	if len(pub.events) == 0 || pub.events[0].Type != board.EventQueueCheckIn {
		t.Error("check-in must publish a board event")
	}
}

func TestCheckIn_Validation(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, uuid.Nil, "clinic-1", 0, "a"); err == nil {
		t.Error("nil patient must be rejected")
	}
	if _, err := svc.CheckIn(ctx, uuid.New(), "", 0, "a"); err == nil {
		t.Error("empty structure must be rejected")
	}
	if _, err := svc.CheckIn(ctx, uuid.New(), "clinic-1", 7, "a"); err == nil {
		t.Error("out-of-range priority must be rejected")
	}
}

func TestRecordTransition_TimestampStamps(t *testing.T) {
	cases := []struct {
		name  string
		path  []Status
		check func(t *testing.T, e *QueueEntry)
	}{
		{
			name: "called stamps called_at",
			path: []Status{StatusWaiting, StatusCalled},
			check: func(t *testing.T, e *QueueEntry) {
				if e.CalledAt == nil {
					t.Error("called_at not stamped")
				}
				if e.StartedAt != nil || e.CompletedAt != nil {
					t.Error("only called_at should be stamped")
				}
			},
		},
		{
			name: "in_consultation stamps started_at",
			path: []Status{StatusInConsultation},
			check: func(t *testing.T, e *QueueEntry) {
				if e.StartedAt == nil {
					t.Error("started_at not stamped")
				}
				if e.CompletedAt != nil {
					t.Error("completed_at must stay empty")
				}
			},
		},
		{
			name: "completed stamps completed_at",
			path: []Status{StatusInConsultation, StatusCompleted},
			check: func(t *testing.T, e *QueueEntry) {
				if e.CompletedAt == nil {
					t.Error("completed_at not stamped")
				}
			},
		},
		{
			name: "no_show stamps completed_at",
			path: []Status{StatusNoShow},
			check: func(t *testing.T, e *QueueEntry) {
				if e.CompletedAt == nil {
					t.Error("completed_at not stamped")
				}
				if e.CalledAt != nil || e.StartedAt != nil {
					t.Error("called_at/started_at must stay empty")
				}
			},
		},
		{
			name: "waiting stamps nothing",
			path: []Status{StatusWaiting},
			check: func(t *testing.T, e *QueueEntry) {
				if e.CalledAt != nil || e.StartedAt != nil || e.CompletedAt != nil {
					t.Error("waiting must not stamp any timestamp")
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockRepo()
			svc, _ := newTestService(repo, nil)
			entry := checkIn(t, svc)

			var updated *QueueEntry
			var err error
			for _, target := range tc.path {
				updated, err = svc.RecordTransition(context.Background(), entry.ID, target, "actor", "")
				if err != nil {
					t.Fatalf("transition to %s: %v", target, err)
				}
			}
			tc.check(t, updated)
		})
	}
}

func TestRecordTransition_DeniedIsNoOp(t *testing.T) {
	repo := newMockRepo()
	svc, pub := newTestService(repo, nil)
	entry := checkIn(t, svc)
	publishedBefore := len(pub.events)

	_, err := svc.RecordTransition(context.Background(), entry.ID, StatusClosed, "actor", "")
	var denied *TransitionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want TransitionDeniedError", err)
	}
	if denied.From != StatusPresent || denied.To != StatusClosed {
		t.Errorf("denied = %v", denied)
	}

	after, _ := svc.Entry(context.Background(), entry.ID)
	if after.Status != StatusPresent {
		t.Errorf("status changed to %s on denied transition", after.Status)
	}
	if after.CompletedAt != nil {
		t.Error("denied transition must not stamp timestamps")
	}
	steps, _ := svc.JourneySteps(context.Background(), entry.ID)
	if len(steps) != 1 {
		t.Errorf("steps = %d, denied transition must not append", len(steps))
	}
	if len(pub.events) != publishedBefore {
		t.Error("denied transition must not publish board events")
	}
}

func TestRecordTransition_JourneyStepPerAcceptedTransition(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)
	entry := checkIn(t, svc)

	path := []Status{StatusWaiting, StatusCalled, StatusInConsultation, StatusAwaitingExam, StatusInConsultation, StatusCompleted, StatusClosed}
	for _, target := range path {
		if _, err := svc.RecordTransition(context.Background(), entry.ID, target, "actor", ""); err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
	}

	steps, err := svc.JourneySteps(context.Background(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if want := 1 + len(path); len(steps) != want {
		t.Fatalf("steps = %d, want %d (check-in + each transition)", len(steps), want)
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].StepAt.Before(steps[i-1].StepAt) {
			t.Error("journey steps must be ordered by step_at")
		}
		if steps[i].StepType != path[i-1] {
			t.Errorf("step %d = %s, want %s", i, steps[i].StepType, path[i-1])
		}
	}
}

func TestRecordTransition_ClosureGate(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, denyGate{reason: "unvalidated billing lines"})
	entry := checkIn(t, svc)
	ctx := context.Background()

	// The gate only applies to completed→closed; earlier steps pass through.
	for _, target := range []Status{StatusInConsultation, StatusCompleted} {
		if _, err := svc.RecordTransition(ctx, entry.ID, target, "actor", ""); err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
	}

	_, err := svc.RecordTransition(ctx, entry.ID, StatusClosed, "actor", "")
	if err == nil {
		t.Fatal("closure must be vetoed by the gate")
	}
	if got := err.Error(); got != "closure not allowed: unvalidated billing lines" {
		t.Errorf("err = %q", got)
	}

	after, _ := svc.Entry(ctx, entry.ID)
	if after.Status != StatusCompleted {
		t.Errorf("status = %s, vetoed closure must not change it", after.Status)
	}

	// A permissive gate lets the same closure through.
	svc2, _ := newTestService(repo, PermissiveGate{})
	if _, err := svc2.RecordTransition(ctx, entry.ID, StatusClosed, "actor", ""); err != nil {
		t.Fatalf("closure with permissive gate: %v", err)
	}
}

func TestRecordTransition_ConcurrentModification(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)
	entry := checkIn(t, svc)

	repo.applyErr = ErrConcurrentModification
	_, err := svc.RecordTransition(context.Background(), entry.ID, StatusWaiting, "actor", "")
	if !errors.Is(err, ErrConcurrentModification) {
		t.Errorf("err = %v, want ErrConcurrentModification", err)
	}
}

func TestRecordTransition_NotFound(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)

	_, err := svc.RecordTransition(context.Background(), uuid.New(), StatusWaiting, "actor", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// Mirrors the front-desk flow: check in, send to waiting, a premature
// completion is denied, then the patient is called.
func TestFrontDeskScenario(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()
	entry := checkIn(t, svc)

	if _, err := svc.RecordTransition(ctx, entry.ID, StatusWaiting, "reception-1", ""); err != nil {
		t.Fatalf("present -> waiting: %v", err)
	}

	_, err := svc.RecordTransition(ctx, entry.ID, StatusCompleted, "reception-1", "")
	var denied *TransitionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("waiting -> completed must be denied, got %v", err)
	}

	updated, err := svc.RecordTransition(ctx, entry.ID, StatusCalled, "doctor-1", "room 2")
	if err != nil {
		t.Fatalf("waiting -> called: %v", err)
	}
	if updated.Status != StatusCalled || updated.CalledAt == nil {
		t.Errorf("entry = %+v, want called with called_at stamped", updated)
	}

	steps, _ := svc.JourneySteps(ctx, entry.ID)
	if len(steps) != 3 {
		t.Fatalf("steps = %d, want 3 (check-in, waiting, called)", len(steps))
	}
	if steps[2].Notes != "room 2" {
		t.Errorf("notes = %q", steps[2].Notes)
	}
}

func TestMarkReady(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)
	entry := checkIn(t, svc)

	at := time.Now().UTC()
	if err := svc.MarkReady(context.Background(), entry.ID, at); err != nil {
		t.Fatal(err)
	}
	after, _ := svc.Entry(context.Background(), entry.ID)
	if after.ReadyAt == nil || !after.ReadyAt.Equal(at) {
		t.Errorf("ready_at = %v, want %v", after.ReadyAt, at)
	}

	if err := svc.MarkReady(context.Background(), uuid.New(), at); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListByStatus_InvalidStatus(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)

	_, _, err := svc.ListByStatus(context.Background(), Status("bogus"), 10, 0)
	if err == nil {
		t.Error("invalid status must be rejected")
	}
	if fmt.Sprint(err) != "invalid status: bogus" {
		t.Errorf("err = %v", err)
	}
}

func TestRemove(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)
	entry := checkIn(t, svc)

	if err := svc.Remove(context.Background(), entry.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Entry(context.Background(), entry.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after removal", err)
	}
}
