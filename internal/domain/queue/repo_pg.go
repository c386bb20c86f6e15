package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const entryCols = `id, structure_id, patient_id, status, priority, arrival_time,
	checked_in_at, called_at, started_at, completed_at, ready_at, created_at, updated_at`

const stepCols = `id, queue_entry_id, step_type, step_at, performed_by, notes`

func (r *repoPG) Create(ctx context.Context, entry *QueueEntry, step *JourneyStep) error {
	entry.ID = uuid.New()
	step.ID = uuid.New()
	step.QueueEntryID = entry.ID

	return db.InTx(ctx, func(txCtx context.Context) error {
		tx := db.TxFromContext(txCtx)
		if _, err := tx.Exec(txCtx, `
			INSERT INTO queue_entry (
				id, structure_id, patient_id, status, priority, arrival_time, checked_in_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			entry.ID, entry.StructureID, entry.PatientID, entry.Status,
			entry.Priority, entry.ArrivalTime, entry.CheckedInAt,
		); err != nil {
			return fmt.Errorf("inserting queue entry: %w", err)
		}
		if err := insertStep(txCtx, tx, step); err != nil {
			return err
		}
		return nil
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	entry, err := scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entry WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

func (r *repoPG) ApplyTransition(ctx context.Context, entryID uuid.UUID, expected Status, step *JourneyStep) (*QueueEntry, error) {
	step.ID = uuid.New()
	step.QueueEntryID = entryID

	var updated *QueueEntry
	err := db.InTx(ctx, func(txCtx context.Context) error {
		tx := db.TxFromContext(txCtx)

		// The stamped column is fixed per target status; never derived from
		// caller input.
		setClause := `status = $1, updated_at = NOW()`
		switch stampColumn(step.StepType) {
		case stampCalledAt:
			setClause += `, called_at = $4`
		case stampStartedAt:
			setClause += `, started_at = $4`
		case stampDoneAt:
			setClause += `, completed_at = $4`
		}

		args := []interface{}{step.StepType, entryID, expected}
		if stampColumn(step.StepType) != stampNone {
			args = append(args, step.StepAt)
		}

		tag, err := tx.Exec(txCtx,
			`UPDATE queue_entry SET `+setClause+` WHERE id = $2 AND status = $3`, args...)
		if err != nil {
			return fmt.Errorf("updating queue entry: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Distinguish a missing entry from a lost race.
			var exists bool
			if err := tx.QueryRow(txCtx,
				`SELECT EXISTS (SELECT 1 FROM queue_entry WHERE id = $1)`, entryID).Scan(&exists); err != nil {
				return fmt.Errorf("checking queue entry: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConcurrentModification
		}

		if err := insertStep(txCtx, tx, step); err != nil {
			return err
		}

		entry, err := scanEntry(tx.QueryRow(txCtx,
			`SELECT `+entryCols+` FROM queue_entry WHERE id = $1`, entryID))
		if err != nil {
			return fmt.Errorf("rereading queue entry: %w", err)
		}
		updated = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *repoPG) SetReadyAt(ctx context.Context, entryID uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE queue_entry SET ready_at = $2, updated_at = NOW() WHERE id = $1`, entryID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return db.InTx(ctx, func(txCtx context.Context) error {
		tx := db.TxFromContext(txCtx)
		if _, err := tx.Exec(txCtx, `DELETE FROM patient_journey_step WHERE queue_entry_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(txCtx, `DELETE FROM queue_entry WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*QueueEntry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM queue_entry`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryCols+` FROM queue_entry ORDER BY arrival_time DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectEntries(rows, total)
}

func (r *repoPG) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*QueueEntry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM queue_entry WHERE status = $1`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryCols+` FROM queue_entry WHERE status = $1 ORDER BY priority, arrival_time LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectEntries(rows, total)
}

func (r *repoPG) ListActive(ctx context.Context, structureID string) ([]*QueueEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryCols+` FROM queue_entry
		 WHERE structure_id = $1 AND status NOT IN ($2, $3, $4)
		 ORDER BY priority, arrival_time`,
		structureID, StatusClosed, StatusCancelled, StatusNoShow)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries, _, err := collectEntries(rows, 0)
	return entries, err
}

func (r *repoPG) JourneySteps(ctx context.Context, entryID uuid.UUID) ([]*JourneyStep, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+stepCols+` FROM patient_journey_step WHERE queue_entry_id = $1 ORDER BY step_at`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*JourneyStep
	for rows.Next() {
		var s JourneyStep
		if err := rows.Scan(&s.ID, &s.QueueEntryID, &s.StepType, &s.StepAt, &s.PerformedBy, &s.Notes); err != nil {
			return nil, err
		}
		steps = append(steps, &s)
	}
	return steps, rows.Err()
}

func insertStep(ctx context.Context, q querier, step *JourneyStep) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO patient_journey_step (id, queue_entry_id, step_type, step_at, performed_by, notes)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		step.ID, step.QueueEntryID, step.StepType, step.StepAt, step.PerformedBy, step.Notes,
	); err != nil {
		return fmt.Errorf("inserting journey step: %w", err)
	}
	return nil
}

func scanEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry
	err := row.Scan(
		&e.ID, &e.StructureID, &e.PatientID, &e.Status, &e.Priority, &e.ArrivalTime,
		&e.CheckedInAt, &e.CalledAt, &e.StartedAt, &e.CompletedAt, &e.ReadyAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEntries(rows pgx.Rows, total int) ([]*QueueEntry, int, error) {
	var entries []*QueueEntry
	for rows.Next() {
		var e QueueEntry
		err := rows.Scan(
			&e.ID, &e.StructureID, &e.PatientID, &e.Status, &e.Priority, &e.ArrivalTime,
			&e.CheckedInAt, &e.CalledAt, &e.StartedAt, &e.CompletedAt, &e.ReadyAt,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}
