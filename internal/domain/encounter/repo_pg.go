package encounter

import (
	"context"
	"errors"
	"fmt"

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

const encCols = `id, patient_id, structure_id, mode, status, queue_entry_id, appointment_id,
	assigned_practitioner_id, assigned_assistant_id, opened_on, started_at, ended_at,
	created_at, updated_at`

const histCols = `id, encounter_id, status, changed_at, changed_by, notes`

func (r *repoPG) OpenOrCreate(ctx context.Context, enc *Encounter, hist *StatusHistoryEntry) (*Encounter, bool, error) {
	enc.ID = uuid.New()

	var out *Encounter
	var created bool
	err := db.InTx(ctx, func(txCtx context.Context) error {
		tx := db.TxFromContext(txCtx)

		// The partial unique index on (patient_id, structure_id, opened_on)
		// over non-terminal rows turns the find-or-create race into "the
		// existing row wins".
		tag, err := tx.Exec(txCtx, `
			INSERT INTO encounter (
				id, patient_id, structure_id, mode, status, queue_entry_id, appointment_id,
				assigned_practitioner_id, assigned_assistant_id, opened_on, started_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (patient_id, structure_id, opened_on)
				WHERE status NOT IN ('completed', 'cancelled')
				DO NOTHING`,
			enc.ID, enc.PatientID, enc.StructureID, enc.Mode, enc.Status,
			enc.QueueEntryID, enc.AppointmentID, enc.PractitionerID, enc.AssistantID,
			enc.OpenedOn, enc.StartedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting encounter: %w", err)
		}

		if tag.RowsAffected() == 1 {
			created = true
			hist.ID = uuid.New()
			hist.EncounterID = enc.ID
			if err := insertHistory(txCtx, tx, hist); err != nil {
				return err
			}
			row, err := scanEncounter(tx.QueryRow(txCtx,
				`SELECT `+encCols+` FROM encounter WHERE id = $1`, enc.ID))
			if err != nil {
				return fmt.Errorf("rereading encounter: %w", err)
			}
			out = row
			return nil
		}

		row, err := scanEncounter(tx.QueryRow(txCtx, `
			SELECT `+encCols+` FROM encounter
			WHERE patient_id = $1 AND structure_id = $2 AND opened_on = $3
			  AND status NOT IN ($4, $5)
			ORDER BY started_at DESC
			LIMIT 1`,
			enc.PatientID, enc.StructureID, enc.OpenedOn, StatusCompleted, StatusCancelled))
		if errors.Is(err, pgx.ErrNoRows) {
			// The conflicting row turned terminal between the insert and the
			// re-read; the caller retries.
			return ErrConcurrentModification
		}
		if err != nil {
			return fmt.Errorf("loading open encounter: %w", err)
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	enc, err := scanEncounter(r.conn(ctx).QueryRow(ctx,
		`SELECT `+encCols+` FROM encounter WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return enc, err
}

func (r *repoPG) GetByQueueEntry(ctx context.Context, queueEntryID uuid.UUID) (*Encounter, error) {
	enc, err := scanEncounter(r.conn(ctx).QueryRow(ctx,
		`SELECT `+encCols+` FROM encounter WHERE queue_entry_id = $1 ORDER BY started_at DESC LIMIT 1`,
		queueEntryID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return enc, err
}

func (r *repoPG) ApplyStatus(ctx context.Context, id uuid.UUID, expected EncStatus, hist *StatusHistoryEntry) (*Encounter, error) {
	hist.ID = uuid.New()
	hist.EncounterID = id

	var updated *Encounter
	err := db.InTx(ctx, func(txCtx context.Context) error {
		tx := db.TxFromContext(txCtx)

		setClause := `status = $1, updated_at = NOW()`
		args := []interface{}{hist.Status, id, expected}
		if hist.Status.IsTerminal() {
			setClause += `, ended_at = $4`
			args = append(args, hist.ChangedAt)
		}

		tag, err := tx.Exec(txCtx,
			`UPDATE encounter SET `+setClause+` WHERE id = $2 AND status = $3`, args...)
		if err != nil {
			return fmt.Errorf("updating encounter: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(txCtx,
				`SELECT EXISTS (SELECT 1 FROM encounter WHERE id = $1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("checking encounter: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConcurrentModification
		}

		if err := insertHistory(txCtx, tx, hist); err != nil {
			return err
		}

		enc, err := scanEncounter(tx.QueryRow(txCtx,
			`SELECT `+encCols+` FROM encounter WHERE id = $1`, id))
		if err != nil {
			return fmt.Errorf("rereading encounter: %w", err)
		}
		updated = enc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Encounter, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM encounter`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+encCols+` FROM encounter ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectEncounters(rows, total)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM encounter WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+encCols+` FROM encounter WHERE patient_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectEncounters(rows, total)
}

func (r *repoPG) StatusHistory(ctx context.Context, encounterID uuid.UUID) ([]*StatusHistoryEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+histCols+` FROM encounter_status_history WHERE encounter_id = $1 ORDER BY changed_at`,
		encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hist []*StatusHistoryEntry
	for rows.Next() {
		var h StatusHistoryEntry
		if err := rows.Scan(&h.ID, &h.EncounterID, &h.Status, &h.ChangedAt, &h.ChangedBy, &h.Notes); err != nil {
			return nil, err
		}
		hist = append(hist, &h)
	}
	return hist, rows.Err()
}

func insertHistory(ctx context.Context, q querier, hist *StatusHistoryEntry) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO encounter_status_history (id, encounter_id, status, changed_at, changed_by, notes)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		hist.ID, hist.EncounterID, hist.Status, hist.ChangedAt, hist.ChangedBy, hist.Notes,
	); err != nil {
		return fmt.Errorf("inserting status history: %w", err)
	}
	return nil
}

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(
		&e.ID, &e.PatientID, &e.StructureID, &e.Mode, &e.Status,
		&e.QueueEntryID, &e.AppointmentID, &e.PractitionerID, &e.AssistantID,
		&e.OpenedOn, &e.StartedAt, &e.EndedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEncounters(rows pgx.Rows, total int) ([]*Encounter, int, error) {
	var encounters []*Encounter
	for rows.Next() {
		var e Encounter
		err := rows.Scan(
			&e.ID, &e.PatientID, &e.StructureID, &e.Mode, &e.Status,
			&e.QueueEntryID, &e.AppointmentID, &e.PractitionerID, &e.AssistantID,
			&e.OpenedOn, &e.StartedAt, &e.EndedAt, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		encounters = append(encounters, &e)
	}
	return encounters, total, rows.Err()
}
