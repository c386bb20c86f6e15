package encounter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/board"
	"github.com/clinicdesk/clinicdesk/internal/platform/telemetry"
)

type mockRepo struct {
	encounters map[uuid.UUID]*Encounter
	history    map[uuid.UUID][]*StatusHistoryEntry

	openErr  error
	applyErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		encounters: make(map[uuid.UUID]*Encounter),
		history:    make(map[uuid.UUID][]*StatusHistoryEntry),
	}
}

func (m *mockRepo) OpenOrCreate(ctx context.Context, enc *Encounter, hist *StatusHistoryEntry) (*Encounter, bool, error) {
	if m.openErr != nil {
		return nil, false, m.openErr
	}
	for _, existing := range m.encounters {
		if existing.PatientID == enc.PatientID &&
			existing.StructureID == enc.StructureID &&
			existing.OpenedOn.Equal(enc.OpenedOn) &&
			!existing.Status.IsTerminal() {
			cp := *existing
			return &cp, false, nil
		}
	}

	enc.ID = uuid.New()
	enc.CreatedAt = time.Now().UTC()
	enc.UpdatedAt = enc.CreatedAt
	cp := *enc
	m.encounters[enc.ID] = &cp

	hist.ID = uuid.New()
	hist.EncounterID = enc.ID
	hc := *hist
	m.history[enc.ID] = append(m.history[enc.ID], &hc)

	out := cp
	return &out, true, nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	enc, ok := m.encounters[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *enc
	return &cp, nil
}

func (m *mockRepo) GetByQueueEntry(ctx context.Context, queueEntryID uuid.UUID) (*Encounter, error) {
	for _, enc := range m.encounters {
		if enc.QueueEntryID != nil && *enc.QueueEntryID == queueEntryID {
			cp := *enc
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) ApplyStatus(ctx context.Context, id uuid.UUID, expected EncStatus, hist *StatusHistoryEntry) (*Encounter, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	enc, ok := m.encounters[id]
	if !ok {
		return nil, ErrNotFound
	}
	if enc.Status != expected {
		return nil, ErrConcurrentModification
	}

	enc.Status = hist.Status
	if hist.Status.IsTerminal() {
		at := hist.ChangedAt
		enc.EndedAt = &at
	}
	enc.UpdatedAt = hist.ChangedAt

	hist.ID = uuid.New()
	hist.EncounterID = id
	hc := *hist
	m.history[id] = append(m.history[id], &hc)

	cp := *enc
	return &cp, nil
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*Encounter, int, error) {
	var out []*Encounter
	for _, enc := range m.encounters {
		cp := *enc
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error) {
	var out []*Encounter
	for _, enc := range m.encounters {
		if enc.PatientID == patientID {
			cp := *enc
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) StatusHistory(ctx context.Context, encounterID uuid.UUID) ([]*StatusHistoryEntry, error) {
	out := make([]*StatusHistoryEntry, len(m.history[encounterID]))
	copy(out, m.history[encounterID])
	return out, nil
}

type mockReadyMarker struct {
	entryID uuid.UUID
	at      time.Time
	calls   int
	err     error
}

func (m *mockReadyMarker) MarkReady(ctx context.Context, entryID uuid.UUID, at time.Time) error {
	m.calls++
	m.entryID = entryID
	m.at = at
	return m.err
}

type mockPublisher struct {
	events []board.Event
}

func (m *mockPublisher) Publish(ctx context.Context, event board.Event) error {
	m.events = append(m.events, event)
	return nil
}

func newTestService(repo Repository, marker ReadyMarker) (*Service, *mockPublisher) {
	pub := &mockPublisher{}
	svc := NewService(repo, marker, telemetry.New(), pub, zerolog.Nop())
	return svc, pub
}

func TestOpenOrCreate_InitialStatusPerMode(t *testing.T) {
	cases := []struct {
		mode Mode
		want EncStatus
	}{
		{ModeAssisted, StatusPreconsultInProgress},
		{ModeSolo, StatusConsultationInProgress},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			repo := newMockRepo()
			svc, pub := newTestService(repo, nil)

			enc, resumed, err := svc.OpenOrCreate(context.Background(), uuid.New(), "clinic-1", tc.mode, Linkage{}, "doctor-1")
			if err != nil {
				t.Fatalf("OpenOrCreate: %v", err)
			}
			if resumed {
				t.Error("fresh encounter must not report resumed")
			}
			if enc.Status != tc.want {
				t.Errorf("status = %s, want %s", enc.Status, tc.want)
			}
			if enc.StartedAt.IsZero() || enc.OpenedOn.IsZero() {
				t.Error("started_at and opened_on must be stamped")
			}

			hist, _ := svc.StatusHistory(context.Background(), enc.ID)
			if len(hist) != 1 || hist[0].Status != tc.want || hist[0].ChangedBy != "doctor-1" {
				t.Errorf("history = %+v, want one initial entry", hist)
			}
			if len(pub.events) != 1 || pub.events[0].Type != board.EventEncounterOpened {
				t.Error("opening must publish an encounter.opened event")
			}
		})
	}
}

func TestOpenOrCreate_ResumesSameDayEncounter(t *testing.T) {
	repo := newMockRepo()
	svc, pub := newTestService(repo, nil)
	ctx := context.Background()
	patientID := uuid.New()

	first, _, err := svc.OpenOrCreate(ctx, patientID, "clinic-1", ModeAssisted, Linkage{}, "assistant-1")
	if err != nil {
		t.Fatal(err)
	}

	second, resumed, err := svc.OpenOrCreate(ctx, patientID, "clinic-1", ModeSolo, Linkage{}, "doctor-1")
	if err != nil {
		t.Fatal(err)
	}
	if !resumed {
		t.Error("second open must resume")
	}
	if second.ID != first.ID {
		t.Errorf("resumed id = %s, want %s", second.ID, first.ID)
	}
	if len(repo.encounters) != 1 {
		t.Errorf("encounters = %d, resume must not insert", len(repo.encounters))
	}
	if len(pub.events) != 1 {
		t.Error("resume must not publish a second opened event")
	}
}

func TestOpenOrCreate_NewEncounterAfterTerminal(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()
	patientID := uuid.New()

	first, _, err := svc.OpenOrCreate(ctx, patientID, "clinic-1", ModeSolo, Linkage{}, "doctor-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateStatus(ctx, first.ID, StatusCancelled, "doctor-1", ""); err != nil {
		t.Fatal(err)
	}

	second, resumed, err := svc.OpenOrCreate(ctx, patientID, "clinic-1", ModeSolo, Linkage{}, "doctor-1")
	if err != nil {
		t.Fatal(err)
	}
	if resumed || second.ID == first.ID {
		t.Error("a terminal encounter must not be resumed")
	}
}

func TestOpenOrCreate_Validation(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	cases := []struct {
		name        string
		patientID   uuid.UUID
		structureID string
		mode        Mode
	}{
		{"missing patient", uuid.Nil, "clinic-1", ModeSolo},
		{"missing structure", uuid.New(), "", ModeSolo},
		{"invalid mode", uuid.New(), "clinic-1", Mode("hybrid")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.OpenOrCreate(ctx, tc.patientID, tc.structureID, tc.mode, Linkage{}, "a")
			var failed *CreationFailedError
			if !errors.As(err, &failed) {
				t.Errorf("err = %v, want CreationFailedError", err)
			}
		})
	}
}

func TestOpenOrCreate_StoreFailure(t *testing.T) {
	repo := newMockRepo()
	repo.openErr = errors.New("connection reset")
	svc, _ := newTestService(repo, nil)

	_, _, err := svc.OpenOrCreate(context.Background(), uuid.New(), "clinic-1", ModeSolo, Linkage{}, "a")
	var failed *CreationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want CreationFailedError", err)
	}
	if !errors.Is(err, repo.openErr) {
		t.Error("store error must be wrapped")
	}
}

func TestOpenOrCreate_CarriesLinkage(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)

	queueEntryID := uuid.New()
	practitionerID := uuid.New()
	link := Linkage{QueueEntryID: &queueEntryID, PractitionerID: &practitionerID}

	enc, _, err := svc.OpenOrCreate(context.Background(), uuid.New(), "clinic-1", ModeAssisted, link, "a")
	if err != nil {
		t.Fatal(err)
	}
	if enc.QueueEntryID == nil || *enc.QueueEntryID != queueEntryID {
		t.Error("queue_entry_id linkage lost")
	}
	if enc.PractitionerID == nil || *enc.PractitionerID != practitionerID {
		t.Error("practitioner linkage lost")
	}

	byQueue, err := svc.ByQueueEntry(context.Background(), queueEntryID)
	if err != nil || byQueue.ID != enc.ID {
		t.Errorf("ByQueueEntry = %v, %v", byQueue, err)
	}
}

func TestUpdateStatus_Denied(t *testing.T) {
	repo := newMockRepo()
	svc, pub := newTestService(repo, nil)
	ctx := context.Background()

	enc, _, err := svc.OpenOrCreate(ctx, uuid.New(), "clinic-1", ModeAssisted, Linkage{}, "a")
	if err != nil {
		t.Fatal(err)
	}
	publishedBefore := len(pub.events)

	// preconsult_in_progress cannot jump straight to completed.
	_, err = svc.UpdateStatus(ctx, enc.ID, StatusCompleted, "a", "")
	var denied *TransitionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want TransitionDeniedError", err)
	}
	if denied.From != StatusPreconsultInProgress || denied.To != StatusCompleted {
		t.Errorf("denied = %v", denied)
	}

	after, _ := svc.Encounter(ctx, enc.ID)
	if after.Status != StatusPreconsultInProgress {
		t.Errorf("status changed to %s on denied transition", after.Status)
	}
	hist, _ := svc.StatusHistory(ctx, enc.ID)
	if len(hist) != 1 {
		t.Errorf("history = %d entries, denied transition must not append", len(hist))
	}
	if len(pub.events) != publishedBefore {
		t.Error("denied transition must not publish")
	}
}

func TestUpdateStatus_AssistedFlow(t *testing.T) {
	repo := newMockRepo()
	marker := &mockReadyMarker{}
	svc, _ := newTestService(repo, marker)
	ctx := context.Background()

	queueEntryID := uuid.New()
	enc, _, err := svc.OpenOrCreate(ctx, uuid.New(), "clinic-1", ModeAssisted, Linkage{QueueEntryID: &queueEntryID}, "assistant-1")
	if err != nil {
		t.Fatal(err)
	}

	path := []EncStatus{StatusPreconsultReady, StatusConsultationInProgress, StatusCompleted}
	var updated *Encounter
	for _, target := range path {
		updated, err = svc.UpdateStatus(ctx, enc.ID, target, "actor", "")
		if err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
	}

	if updated.Status != StatusCompleted {
		t.Errorf("status = %s", updated.Status)
	}
	if updated.EndedAt == nil {
		t.Error("completed must stamp ended_at")
	}
	if marker.calls != 1 || marker.entryID != queueEntryID {
		t.Errorf("MarkReady calls = %d for %s, want once for linked entry", marker.calls, marker.entryID)
	}

	hist, _ := svc.StatusHistory(ctx, enc.ID)
	if want := 1 + len(path); len(hist) != want {
		t.Fatalf("history = %d entries, want %d", len(hist), want)
	}
	for i, target := range path {
		if hist[i+1].Status != target {
			t.Errorf("history[%d] = %s, want %s", i+1, hist[i+1].Status, target)
		}
	}
}

func TestUpdateStatus_ReadyMarkerFailureIsNonFatal(t *testing.T) {
	repo := newMockRepo()
	marker := &mockReadyMarker{err: errors.New("queue entry gone")}
	svc, _ := newTestService(repo, marker)
	ctx := context.Background()

	queueEntryID := uuid.New()
	enc, _, err := svc.OpenOrCreate(ctx, uuid.New(), "clinic-1", ModeAssisted, Linkage{QueueEntryID: &queueEntryID}, "a")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.UpdateStatus(ctx, enc.ID, StatusPreconsultReady, "a", "")
	if err != nil {
		t.Fatalf("ready_at stamping failure must not fail the status change: %v", err)
	}
	if updated.Status != StatusPreconsultReady {
		t.Errorf("status = %s", updated.Status)
	}
}

func TestUpdateStatus_NoReadyMarkWithoutLinkedEntry(t *testing.T) {
	repo := newMockRepo()
	marker := &mockReadyMarker{}
	svc, _ := newTestService(repo, marker)
	ctx := context.Background()

	enc, _, err := svc.OpenOrCreate(ctx, uuid.New(), "clinic-1", ModeAssisted, Linkage{}, "a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateStatus(ctx, enc.ID, StatusPreconsultReady, "a", ""); err != nil {
		t.Fatal(err)
	}
	if marker.calls != 0 {
		t.Error("MarkReady must not fire without a linked queue entry")
	}
}

func TestUpdateStatus_ConcurrentModification(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	enc, _, err := svc.OpenOrCreate(ctx, uuid.New(), "clinic-1", ModeSolo, Linkage{}, "a")
	if err != nil {
		t.Fatal(err)
	}

	repo.applyErr = ErrConcurrentModification
	if _, err := svc.UpdateStatus(ctx, enc.ID, StatusCompleted, "a", ""); !errors.Is(err, ErrConcurrentModification) {
		t.Errorf("err = %v, want ErrConcurrentModification", err)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo, nil)

	if _, err := svc.UpdateStatus(context.Background(), uuid.New(), StatusCancelled, "a", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
