package billing

import (
	"context"
	"errors"

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

const codeCols = `id, structure_id, code, label, price_cents, active, created_at, updated_at`

const lineCols = `id, encounter_id, code, quantity, price_cents, validated, created_at`

func (r *repoPG) CreateCode(ctx context.Context, code *BillingCode) error {
	code.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO billing_code (id, structure_id, code, label, price_cents, active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		code.ID, code.StructureID, code.Code, code.Label, code.PriceCents, code.Active,
	)
	return err
}

func (r *repoPG) GetCode(ctx context.Context, id uuid.UUID) (*BillingCode, error) {
	code, err := scanCode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+codeCols+` FROM billing_code WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return code, err
}

func (r *repoPG) GetCodeByCode(ctx context.Context, structureID, c string) (*BillingCode, error) {
	code, err := scanCode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+codeCols+` FROM billing_code WHERE structure_id = $1 AND code = $2`, structureID, c))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return code, err
}

func (r *repoPG) UpdateCode(ctx context.Context, code *BillingCode) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE billing_code SET label = $2, price_cents = $3, active = $4, updated_at = NOW()
		WHERE id = $1`,
		code.ID, code.Label, code.PriceCents, code.Active,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListCodes(ctx context.Context, limit, offset int) ([]*BillingCode, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing_code`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+codeCols+` FROM billing_code ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var codes []*BillingCode
	for rows.Next() {
		var c BillingCode
		if err := rows.Scan(&c.ID, &c.StructureID, &c.Code, &c.Label, &c.PriceCents, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		codes = append(codes, &c)
	}
	return codes, total, rows.Err()
}

func (r *repoPG) AddLine(ctx context.Context, line *BillingLine) error {
	line.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO encounter_billing_line (id, encounter_id, code, quantity, price_cents, validated)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		line.ID, line.EncounterID, line.Code, line.Quantity, line.PriceCents, line.Validated,
	)
	return err
}

func (r *repoPG) RemoveLine(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM encounter_billing_line WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) LinesByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*BillingLine, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+lineCols+` FROM encounter_billing_line WHERE encounter_id = $1 ORDER BY created_at`,
		encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*BillingLine
	for rows.Next() {
		var l BillingLine
		if err := rows.Scan(&l.ID, &l.EncounterID, &l.Code, &l.Quantity, &l.PriceCents, &l.Validated, &l.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, &l)
	}
	return lines, rows.Err()
}

func (r *repoPG) ValidateLines(ctx context.Context, encounterID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE encounter_billing_line SET validated = TRUE WHERE encounter_id = $1 AND NOT validated`,
		encounterID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanCode(row pgx.Row) (*BillingCode, error) {
	var c BillingCode
	err := row.Scan(&c.ID, &c.StructureID, &c.Code, &c.Label, &c.PriceCents, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
