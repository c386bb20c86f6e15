package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/board"
	"github.com/clinicdesk/clinicdesk/internal/platform/telemetry"
)

// ClosureGate is consulted before the completed→closed transition. Billing
// implements it; AllowClosure returns a descriptive error to veto closure.
type ClosureGate interface {
	AllowClosure(ctx context.Context, entry *QueueEntry) error
}

// PermissiveGate allows every closure; the default when billing is not wired.
type PermissiveGate struct{}

func (PermissiveGate) AllowClosure(context.Context, *QueueEntry) error { return nil }

type Service struct {
	repo    Repository
	gate    ClosureGate
	metrics *telemetry.Metrics
	board   board.Publisher
	logger  zerolog.Logger
}

func NewService(repo Repository, gate ClosureGate, metrics *telemetry.Metrics, publisher board.Publisher, logger zerolog.Logger) *Service {
	if gate == nil {
		gate = PermissiveGate{}
	}
	return &Service{
		repo:    repo,
		gate:    gate,
		metrics: metrics,
		board:   publisher,
		logger:  logger,
	}
}

// CheckIn creates a queue entry in status present, stamping arrival and
// check-in times, with the initial journey step recorded atomically.
func (s *Service) CheckIn(ctx context.Context, patientID uuid.UUID, structureID string, priority int, actorID string) (*QueueEntry, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if structureID == "" {
		return nil, fmt.Errorf("structure_id is required")
	}
	if priority == 0 {
		priority = PriorityNormal
	}
	if priority < PriorityUrgent || priority > PriorityNormal {
		return nil, fmt.Errorf("priority must be between %d and %d", PriorityUrgent, PriorityNormal)
	}

	now := time.Now().UTC()
	entry := &QueueEntry{
		StructureID: structureID,
		PatientID:   patientID,
		Status:      StatusPresent,
		Priority:    priority,
		ArrivalTime: now,
		CheckedInAt: &now,
	}
	step := &JourneyStep{
		StepType:    StatusPresent,
		StepAt:      now,
		PerformedBy: actorID,
	}
	if err := s.repo.Create(ctx, entry, step); err != nil {
		return nil, err
	}

	s.publish(ctx, board.EventQueueCheckIn, entry)
	return entry, nil
}

// RecordTransition validates and applies a status transition, appending the
// journey step atomically with the status update. A denied transition leaves
// the entry untouched and returns TransitionDeniedError.
func (s *Service) RecordTransition(ctx context.Context, entryID uuid.UUID, target Status, actorID, notes string) (*QueueEntry, error) {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(entry.Status, target) {
		if s.metrics != nil {
			s.metrics.TransitionsDenied.WithLabelValues(string(entry.Status), string(target)).Inc()
		}
		return nil, &TransitionDeniedError{From: entry.Status, To: target}
	}

	if entry.Status == StatusCompleted && target == StatusClosed {
		if err := s.gate.AllowClosure(ctx, entry); err != nil {
			return nil, fmt.Errorf("closure not allowed: %w", err)
		}
	}

	step := &JourneyStep{
		StepType:    target,
		StepAt:      time.Now().UTC(),
		PerformedBy: actorID,
		Notes:       notes,
	}
	updated, err := s.repo.ApplyTransition(ctx, entryID, entry.Status, step)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TransitionsAccepted.WithLabelValues(string(entry.Status), string(target)).Inc()
	}
	s.publish(ctx, board.EventQueueTransition, updated)
	return updated, nil
}

// Entry returns a queue entry by id.
func (s *Service) Entry(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	return s.repo.GetByID(ctx, id)
}

// Remove physically deletes an entry and its journey steps. This is distinct
// from status-based closure and is meant for mistaken check-ins.
func (s *Service) Remove(ctx context.Context, entryID uuid.UUID) error {
	return s.repo.Delete(ctx, entryID)
}

// JourneySteps returns the audit trail ordered by step_at ascending.
func (s *Service) JourneySteps(ctx context.Context, entryID uuid.UUID) ([]*JourneyStep, error) {
	return s.repo.JourneySteps(ctx, entryID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*QueueEntry, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*QueueEntry, int, error) {
	if !status.IsValid() {
		return nil, 0, fmt.Errorf("invalid status: %s", status)
	}
	return s.repo.ListByStatus(ctx, status, limit, offset)
}

// MarkReady stamps ready_at on an entry; invoked by the encounter flow when
// preconsultation finishes.
func (s *Service) MarkReady(ctx context.Context, entryID uuid.UUID, at time.Time) error {
	return s.repo.SetReadyAt(ctx, entryID, at)
}

// Snapshot returns the current board state for a structure: all active
// entries, priority-ordered. Freshly connected displays replay this before
// receiving live events.
func (s *Service) Snapshot(ctx context.Context, structureID string) (*board.Event, error) {
	active, err := s.repo.ListActive(ctx, structureID)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(active)
	if err != nil {
		return nil, err
	}
	return &board.Event{
		Type:        board.EventSnapshot,
		StructureID: structureID,
		Timestamp:   time.Now().UTC(),
		Data:        data,
	}, nil
}

// publish pushes a board event and a fresh snapshot for the entry's
// structure. Failures are logged, never surfaced: the board is best-effort.
func (s *Service) publish(ctx context.Context, eventType string, entry *QueueEntry) {
	if s.board == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	event := board.Event{
		Type:        eventType,
		StructureID: entry.StructureID,
		EntryID:     entry.ID.String(),
		Timestamp:   time.Now().UTC(),
		Data:        data,
	}
	if err := s.board.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("entry_id", entry.ID.String()).Msg("queue: publishing board event")
		return
	}

	active, err := s.repo.ListActive(ctx, entry.StructureID)
	if err != nil {
		s.logger.Warn().Err(err).Str("structure_id", entry.StructureID).Msg("queue: listing active entries for snapshot")
		return
	}
	if s.metrics != nil {
		depth := make(map[Status]int)
		for _, e := range active {
			depth[e.Status]++
		}
		for status, n := range depth {
			s.metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(n))
		}
	}

	snapData, err := json.Marshal(active)
	if err != nil {
		return
	}
	snapshot := board.Event{
		Type:        board.EventSnapshot,
		StructureID: entry.StructureID,
		Timestamp:   time.Now().UTC(),
		Data:        snapData,
	}
	if err := s.board.Publish(ctx, snapshot); err != nil {
		s.logger.Warn().Err(err).Str("structure_id", entry.StructureID).Msg("queue: publishing board snapshot")
	}
}
