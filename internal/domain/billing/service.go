package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/domain/encounter"
	"github.com/clinicdesk/clinicdesk/internal/domain/queue"
)

// EncounterResolver maps a queue entry to its linked encounter; the
// encounter service implements it.
type EncounterResolver interface {
	ByQueueEntry(ctx context.Context, queueEntryID uuid.UUID) (*encounter.Encounter, error)
}

type Service struct {
	repo       Repository
	encounters EncounterResolver
}

func NewService(repo Repository, encounters EncounterResolver) *Service {
	return &Service{repo: repo, encounters: encounters}
}

func (s *Service) CreateCode(ctx context.Context, code *BillingCode) error {
	if code.StructureID == "" {
		return fmt.Errorf("structure_id is required")
	}
	if code.Code == "" || code.Label == "" {
		return fmt.Errorf("code and label are required")
	}
	if code.PriceCents < 0 {
		return fmt.Errorf("price_cents must not be negative")
	}
	code.Active = true
	return s.repo.CreateCode(ctx, code)
}

func (s *Service) GetCode(ctx context.Context, id uuid.UUID) (*BillingCode, error) {
	return s.repo.GetCode(ctx, id)
}

func (s *Service) UpdateCode(ctx context.Context, code *BillingCode) error {
	if code.Label == "" {
		return fmt.Errorf("label is required")
	}
	return s.repo.UpdateCode(ctx, code)
}

func (s *Service) ListCodes(ctx context.Context, limit, offset int) ([]*BillingCode, int, error) {
	return s.repo.ListCodes(ctx, limit, offset)
}

// AddLine attaches a billable act to an encounter, snapshotting the catalog
// price at the time the line is written.
func (s *Service) AddLine(ctx context.Context, structureID string, encounterID uuid.UUID, code string, quantity int) (*BillingLine, error) {
	if encounterID == uuid.Nil {
		return nil, fmt.Errorf("encounter_id is required")
	}
	if quantity <= 0 {
		quantity = 1
	}

	catalog, err := s.repo.GetCodeByCode(ctx, structureID, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("unknown billing code: %s", code)
		}
		return nil, err
	}
	if !catalog.Active {
		return nil, fmt.Errorf("billing code %s is inactive", code)
	}

	line := &BillingLine{
		EncounterID: encounterID,
		Code:        catalog.Code,
		Quantity:    quantity,
		PriceCents:  catalog.PriceCents * quantity,
	}
	if err := s.repo.AddLine(ctx, line); err != nil {
		return nil, err
	}
	return line, nil
}

func (s *Service) RemoveLine(ctx context.Context, id uuid.UUID) error {
	return s.repo.RemoveLine(ctx, id)
}

func (s *Service) Lines(ctx context.Context, encounterID uuid.UUID) ([]*BillingLine, error) {
	return s.repo.LinesByEncounter(ctx, encounterID)
}

// ValidateEncounter marks every billing line of the encounter validated.
func (s *Service) ValidateEncounter(ctx context.Context, encounterID uuid.UUID) (int, error) {
	lines, err := s.repo.LinesByEncounter(ctx, encounterID)
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return 0, fmt.Errorf("encounter has no billing lines")
	}
	return s.repo.ValidateLines(ctx, encounterID)
}

// AllowClosure implements queue.ClosureGate: a queue entry may close only
// when its linked encounter carries at least one billing line and every line
// is validated. Entries without a linked encounter close freely.
func (s *Service) AllowClosure(ctx context.Context, entry *queue.QueueEntry) error {
	if s.encounters == nil {
		return nil
	}
	enc, err := s.encounters.ByQueueEntry(ctx, entry.ID)
	if err != nil {
		if errors.Is(err, encounter.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("resolving encounter: %w", err)
	}

	lines, err := s.repo.LinesByEncounter(ctx, enc.ID)
	if err != nil {
		return fmt.Errorf("loading billing lines: %w", err)
	}
	if len(lines) == 0 {
		return fmt.Errorf("encounter %s has no billing lines", enc.ID)
	}
	for _, line := range lines {
		if !line.Validated {
			return fmt.Errorf("billing line %s (%s) not validated", line.ID, line.Code)
		}
	}
	return nil
}
