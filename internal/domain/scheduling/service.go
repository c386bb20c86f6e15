package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/queue"
)

// QueueCheckIn seeds a queue entry when a patient arrives for an
// appointment; the queue service implements it.
type QueueCheckIn interface {
	CheckIn(ctx context.Context, patientID uuid.UUID, structureID string, priority int, actorID string) (*queue.QueueEntry, error)
}

type Service struct {
	repo   Repository
	queue  QueueCheckIn
	logger zerolog.Logger
}

func NewService(repo Repository, q QueueCheckIn, logger zerolog.Logger) *Service {
	return &Service{repo: repo, queue: q, logger: logger}
}

func (s *Service) Book(ctx context.Context, appt *Appointment) error {
	if appt.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if appt.StructureID == "" {
		return fmt.Errorf("structure_id is required")
	}
	if appt.StartTime.IsZero() {
		return fmt.Errorf("start_time is required")
	}
	if appt.EndTime.IsZero() {
		appt.EndTime = appt.StartTime.Add(30 * time.Minute)
	}
	if !appt.EndTime.After(appt.StartTime) {
		return fmt.Errorf("end_time must be after start_time")
	}

	if appt.PractitionerID != nil {
		overlaps, err := s.repo.Overlaps(ctx, *appt.PractitionerID, appt.StartTime, appt.EndTime)
		if err != nil {
			return err
		}
		if overlaps {
			return fmt.Errorf("practitioner already booked for this slot")
		}
	}

	appt.Status = StatusBooked
	return s.repo.Create(ctx, appt)
}

// UpdateStatus applies an appointment status change. Marking an appointment
// arrived also checks the patient into the front-desk queue; a check-in
// failure is logged but does not undo the arrival.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, target ApptStatus, actorID string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, target) {
		return nil, &TransitionDeniedError{From: appt.Status, To: target}
	}

	if err := s.repo.UpdateStatus(ctx, id, target); err != nil {
		return nil, err
	}
	appt.Status = target

	if target == StatusArrived && s.queue != nil {
		if _, err := s.queue.CheckIn(ctx, appt.PatientID, appt.StructureID, 0, actorID); err != nil {
			s.logger.Warn().Err(err).
				Str("appointment_id", id.String()).
				Msg("scheduling: checking arrived patient into queue")
		}
	}
	return appt, nil
}

func (s *Service) Appointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByDay(ctx context.Context, day time.Time, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByDay(ctx, day, limit, offset)
}

func (s *Service) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPractitioner(ctx, practitionerID, limit, offset)
}
