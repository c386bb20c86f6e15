package encounter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/board"
	"github.com/clinicdesk/clinicdesk/internal/platform/telemetry"
)

// ReadyMarker stamps ready_at on a queue entry when preconsultation
// finishes; the queue service implements it.
type ReadyMarker interface {
	MarkReady(ctx context.Context, entryID uuid.UUID, at time.Time) error
}

type Service struct {
	repo    Repository
	queue   ReadyMarker
	metrics *telemetry.Metrics
	board   board.Publisher
	logger  zerolog.Logger
}

func NewService(repo Repository, queue ReadyMarker, metrics *telemetry.Metrics, publisher board.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		queue:   queue,
		metrics: metrics,
		board:   publisher,
		logger:  logger,
	}
}

// OpenOrCreate resumes today's non-terminal encounter for the patient, or
// creates a fresh one whose initial status depends on mode. The returned
// bool is true when an existing encounter was resumed.
func (s *Service) OpenOrCreate(ctx context.Context, patientID uuid.UUID, structureID string, mode Mode, link Linkage, actorID string) (*Encounter, bool, error) {
	if patientID == uuid.Nil {
		return nil, false, &CreationFailedError{Reason: "patient_id is required"}
	}
	if structureID == "" {
		return nil, false, &CreationFailedError{Reason: "structure_id is required"}
	}
	if !mode.IsValid() {
		return nil, false, &CreationFailedError{Reason: "mode must be solo or assisted"}
	}

	now := time.Now().UTC()
	enc := &Encounter{
		PatientID:      patientID,
		StructureID:    structureID,
		Mode:           mode,
		Status:         initialStatus(mode),
		QueueEntryID:   link.QueueEntryID,
		AppointmentID:  link.AppointmentID,
		PractitionerID: link.PractitionerID,
		AssistantID:    link.AssistantID,
		OpenedOn:       now.Truncate(24 * time.Hour),
		StartedAt:      now,
	}
	hist := &StatusHistoryEntry{
		Status:    enc.Status,
		ChangedAt: now,
		ChangedBy: actorID,
	}

	out, created, err := s.repo.OpenOrCreate(ctx, enc, hist)
	if err != nil {
		return nil, false, &CreationFailedError{Reason: "opening encounter", Err: err}
	}

	if s.metrics != nil {
		if created {
			s.metrics.EncountersOpened.Inc()
		} else {
			s.metrics.EncountersResumed.Inc()
		}
	}
	if created {
		s.publish(ctx, board.EventEncounterOpened, out)
	}
	return out, !created, nil
}

// UpdateStatus validates and applies a status change, appending the history
// entry atomically. Reaching preconsult_ready also stamps ready_at on the
// linked queue entry so the waiting-room board can surface the patient.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, target EncStatus, actorID, notes string) (*Encounter, error) {
	enc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(enc.Status, target) {
		return nil, &TransitionDeniedError{From: enc.Status, To: target}
	}

	now := time.Now().UTC()
	hist := &StatusHistoryEntry{
		Status:    target,
		ChangedAt: now,
		ChangedBy: actorID,
		Notes:     notes,
	}
	updated, err := s.repo.ApplyStatus(ctx, id, enc.Status, hist)
	if err != nil {
		return nil, err
	}

	if target == StatusPreconsultReady && updated.QueueEntryID != nil && s.queue != nil {
		if err := s.queue.MarkReady(ctx, *updated.QueueEntryID, now); err != nil {
			s.logger.Warn().Err(err).
				Str("encounter_id", id.String()).
				Str("queue_entry_id", updated.QueueEntryID.String()).
				Msg("encounter: stamping ready_at on queue entry")
		}
	}

	s.publish(ctx, board.EventEncounterUpdated, updated)
	return updated, nil
}

func (s *Service) Encounter(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return s.repo.GetByID(ctx, id)
}

// ByQueueEntry resolves the encounter linked to a queue entry.
func (s *Service) ByQueueEntry(ctx context.Context, queueEntryID uuid.UUID) (*Encounter, error) {
	return s.repo.GetByQueueEntry(ctx, queueEntryID)
}

func (s *Service) StatusHistory(ctx context.Context, id uuid.UUID) ([]*StatusHistoryEntry, error) {
	return s.repo.StatusHistory(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Encounter, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) publish(ctx context.Context, eventType string, enc *Encounter) {
	if s.board == nil {
		return
	}
	data, err := json.Marshal(enc)
	if err != nil {
		return
	}
	event := board.Event{
		Type:        eventType,
		StructureID: enc.StructureID,
		EntryID:     enc.ID.String(),
		Timestamp:   time.Now().UTC(),
		Data:        data,
	}
	if err := s.board.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("encounter_id", enc.ID.String()).Msg("encounter: publishing board event")
	}
}
