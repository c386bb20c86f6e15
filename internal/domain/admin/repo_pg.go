package admin

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// The structure, team_member and role_permission tables live in the shared
// public schema, not the per-tenant schemas.
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

const structureCols = `id, name, timezone, active, created_at, updated_at`

func (r *repoPG) CreateStructure(ctx context.Context, s *Structure) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO public.structure (id, name, timezone, active)
		VALUES ($1,$2,$3,$4)`,
		s.ID, s.Name, s.Timezone, s.Active,
	)
	return err
}

func (r *repoPG) GetStructure(ctx context.Context, id string) (*Structure, error) {
	var s Structure
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+structureCols+` FROM public.structure WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Timezone, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) UpdateStructure(ctx context.Context, s *Structure) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE public.structure SET name = $2, timezone = $3, active = $4, updated_at = NOW()
		WHERE id = $1`,
		s.ID, s.Name, s.Timezone, s.Active,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListStructures(ctx context.Context, limit, offset int) ([]*Structure, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM public.structure`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+structureCols+` FROM public.structure ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Structure
	for rows.Next() {
		var s Structure
		if err := rows.Scan(&s.ID, &s.Name, &s.Timezone, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &s)
	}
	return out, total, rows.Err()
}

func (r *repoPG) AddMember(ctx context.Context, m *TeamMember) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO public.team_member (id, user_id, structure_id, role)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id, structure_id) DO UPDATE SET role = EXCLUDED.role`,
		m.ID, m.UserID, m.StructureID, m.Role,
	)
	return err
}

func (r *repoPG) RemoveMember(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM public.team_member WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListMembers(ctx context.Context, structureID string, limit, offset int) ([]*TeamMember, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM public.team_member WHERE structure_id = $1`, structureID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, user_id, structure_id, role, created_at FROM public.team_member
		 WHERE structure_id = $1 ORDER BY created_at LIMIT $2 OFFSET $3`,
		structureID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*TeamMember
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.ID, &m.UserID, &m.StructureID, &m.Role, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &m)
	}
	return out, total, rows.Err()
}

func (r *repoPG) MemberRole(ctx context.Context, userID, structureID string) (string, error) {
	var role string
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT role FROM public.team_member WHERE user_id = $1 AND structure_id = $2`,
		userID, structureID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return role, err
}

func (r *repoPG) GrantPermission(ctx context.Context, p *RolePermission) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO public.role_permission (id, structure_id, role, permission)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (structure_id, role, permission) DO NOTHING`,
		p.ID, p.StructureID, p.Role, p.Permission,
	)
	return err
}

func (r *repoPG) RevokePermission(ctx context.Context, structureID, role, permission string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM public.role_permission WHERE structure_id = $1 AND role = $2 AND permission = $3`,
		structureID, role, permission)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) HasPermission(ctx context.Context, structureID, role, permission string) (bool, error) {
	var has bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM public.role_permission
			WHERE structure_id = $1 AND role = $2 AND permission = $3
		)`,
		structureID, role, permission).Scan(&has)
	return has, err
}

func (r *repoPG) ListPermissions(ctx context.Context, structureID, role string) ([]*RolePermission, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, structure_id, role, permission FROM public.role_permission
		 WHERE structure_id = $1 AND role = $2 ORDER BY permission`,
		structureID, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RolePermission
	for rows.Next() {
		var p RolePermission
		if err := rows.Scan(&p.ID, &p.StructureID, &p.Role, &p.Permission); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
