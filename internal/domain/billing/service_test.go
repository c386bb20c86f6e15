package billing

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/domain/encounter"
	"github.com/clinicdesk/clinicdesk/internal/domain/queue"
)

type mockRepo struct {
	codes map[uuid.UUID]*BillingCode
	lines map[uuid.UUID]*BillingLine
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		codes: make(map[uuid.UUID]*BillingCode),
		lines: make(map[uuid.UUID]*BillingLine),
	}
}

func (m *mockRepo) CreateCode(ctx context.Context, code *BillingCode) error {
	code.ID = uuid.New()
	cp := *code
	m.codes[code.ID] = &cp
	return nil
}

func (m *mockRepo) GetCode(ctx context.Context, id uuid.UUID) (*BillingCode, error) {
	code, ok := m.codes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *code
	return &cp, nil
}

func (m *mockRepo) GetCodeByCode(ctx context.Context, structureID, c string) (*BillingCode, error) {
	for _, code := range m.codes {
		if code.StructureID == structureID && code.Code == c {
			cp := *code
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) UpdateCode(ctx context.Context, code *BillingCode) error {
	if _, ok := m.codes[code.ID]; !ok {
		return ErrNotFound
	}
	cp := *code
	m.codes[code.ID] = &cp
	return nil
}

func (m *mockRepo) ListCodes(ctx context.Context, limit, offset int) ([]*BillingCode, int, error) {
	var out []*BillingCode
	for _, c := range m.codes {
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockRepo) AddLine(ctx context.Context, line *BillingLine) error {
	line.ID = uuid.New()
	cp := *line
	m.lines[line.ID] = &cp
	return nil
}

func (m *mockRepo) RemoveLine(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.lines[id]; !ok {
		return ErrNotFound
	}
	delete(m.lines, id)
	return nil
}

func (m *mockRepo) LinesByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*BillingLine, error) {
	var out []*BillingLine
	for _, l := range m.lines {
		if l.EncounterID == encounterID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) ValidateLines(ctx context.Context, encounterID uuid.UUID) (int, error) {
	n := 0
	for _, l := range m.lines {
		if l.EncounterID == encounterID && !l.Validated {
			l.Validated = true
			n++
		}
	}
	return n, nil
}

type mockResolver struct {
	byQueueEntry map[uuid.UUID]*encounter.Encounter
}

func (m *mockResolver) ByQueueEntry(ctx context.Context, queueEntryID uuid.UUID) (*encounter.Encounter, error) {
	enc, ok := m.byQueueEntry[queueEntryID]
	if !ok {
		return nil, encounter.ErrNotFound
	}
	return enc, nil
}

func seedCode(t *testing.T, svc *Service, code string, priceCents int) {
	t.Helper()
	if err := svc.CreateCode(context.Background(), &BillingCode{
		StructureID: "clinic-1", Code: code, Label: "consultation", PriceCents: priceCents,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestAddLine_SnapshotsCatalogPrice(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil)
	seedCode(t, svc, "C25", 2500)

	encounterID := uuid.New()
	line, err := svc.AddLine(context.Background(), "clinic-1", encounterID, "C25", 2)
	if err != nil {
		t.Fatal(err)
	}
	if line.PriceCents != 5000 {
		t.Errorf("price_cents = %d, want quantity x catalog price", line.PriceCents)
	}
	if line.Validated {
		t.Error("new lines must start unvalidated")
	}
}

func TestAddLine_UnknownOrInactiveCode(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil)
	seedCode(t, svc, "C25", 2500)
	ctx := context.Background()

	if _, err := svc.AddLine(ctx, "clinic-1", uuid.New(), "XXX", 1); err == nil || !strings.Contains(err.Error(), "unknown billing code") {
		t.Errorf("err = %v, want unknown code", err)
	}

	for _, code := range repo.codes {
		code.Active = false
	}
	if _, err := svc.AddLine(ctx, "clinic-1", uuid.New(), "C25", 1); err == nil || !strings.Contains(err.Error(), "inactive") {
		t.Errorf("err = %v, want inactive code", err)
	}
}

func TestValidateEncounter(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil)
	seedCode(t, svc, "C25", 2500)
	ctx := context.Background()
	encounterID := uuid.New()

	if _, err := svc.ValidateEncounter(ctx, encounterID); err == nil {
		t.Error("validating an encounter without lines must fail")
	}

	if _, err := svc.AddLine(ctx, "clinic-1", encounterID, "C25", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddLine(ctx, "clinic-1", encounterID, "C25", 1); err != nil {
		t.Fatal(err)
	}

	n, err := svc.ValidateEncounter(ctx, encounterID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("validated = %d, want 2", n)
	}

	lines, _ := svc.Lines(ctx, encounterID)
	for _, l := range lines {
		if !l.Validated {
			t.Error("all lines must be validated")
		}
	}
}

func TestAllowClosure(t *testing.T) {
	repo := newMockRepo()
	queueEntryID := uuid.New()
	encounterID := uuid.New()
	resolver := &mockResolver{byQueueEntry: map[uuid.UUID]*encounter.Encounter{
		queueEntryID: {ID: encounterID},
	}}
	svc := NewService(repo, resolver)
	seedCode(t, svc, "C25", 2500)
	ctx := context.Background()
	entry := &queue.QueueEntry{ID: queueEntryID, Status: queue.StatusCompleted}

	// No billing lines yet: closure vetoed.
	if err := svc.AllowClosure(ctx, entry); err == nil {
		t.Error("closure with no lines must be vetoed")
	}

	if _, err := svc.AddLine(ctx, "clinic-1", encounterID, "C25", 1); err != nil {
		t.Fatal(err)
	}
	if err := svc.AllowClosure(ctx, entry); err == nil || !strings.Contains(err.Error(), "not validated") {
		t.Errorf("err = %v, closure with unvalidated lines must be vetoed", err)
	}

	if _, err := svc.ValidateEncounter(ctx, encounterID); err != nil {
		t.Fatal(err)
	}
	if err := svc.AllowClosure(ctx, entry); err != nil {
		t.Errorf("closure with validated lines must pass: %v", err)
	}
}

func TestAllowClosure_NoLinkedEncounter(t *testing.T) {
	svc := NewService(newMockRepo(), &mockResolver{byQueueEntry: map[uuid.UUID]*encounter.Encounter{}})
	entry := &queue.QueueEntry{ID: uuid.New(), Status: queue.StatusCompleted}
	if err := svc.AllowClosure(context.Background(), entry); err != nil {
		t.Errorf("entries without an encounter must close freely: %v", err)
	}
}

func TestCreateCode_Validation(t *testing.T) {
	svc := NewService(newMockRepo(), nil)
	ctx := context.Background()

	if err := svc.CreateCode(ctx, &BillingCode{Code: "C25", Label: "x"}); err == nil {
		t.Error("missing structure must be rejected")
	}
	if err := svc.CreateCode(ctx, &BillingCode{StructureID: "clinic-1", Label: "x"}); err == nil {
		t.Error("missing code must be rejected")
	}
	if err := svc.CreateCode(ctx, &BillingCode{StructureID: "clinic-1", Code: "C25", Label: "x", PriceCents: -1}); err == nil {
		t.Error("negative price must be rejected")
	}
}
