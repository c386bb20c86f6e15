package compliance

import (
	"context"
	"time"

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

func (r *repoPG) TransitionCounts(ctx context.Context, from, to time.Time) ([]*TransitionCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT date_trunc('day', step_at) AS day, step_type, COUNT(*)
		FROM patient_journey_step
		WHERE step_at >= $1 AND step_at < $2
		GROUP BY day, step_type
		ORDER BY day, step_type`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []*TransitionCount
	for rows.Next() {
		var c TransitionCount
		if err := rows.Scan(&c.Day, &c.StepType, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, &c)
	}
	return counts, rows.Err()
}

func (r *repoPG) DurationStats(ctx context.Context, from, to time.Time) (*DurationStats, error) {
	stats := &DurationStats{From: from, To: to}
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(AVG(EXTRACT(EPOCH FROM (called_at - checked_in_at))) FILTER (WHERE called_at IS NOT NULL AND checked_in_at IS NOT NULL), 0),
			COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at))) FILTER (WHERE completed_at IS NOT NULL AND started_at IS NOT NULL), 0),
			COALESCE(MAX(EXTRACT(EPOCH FROM (called_at - checked_in_at))) FILTER (WHERE called_at IS NOT NULL AND checked_in_at IS NOT NULL), 0),
			COUNT(*) FILTER (WHERE status IN ('completed', 'closed'))
		FROM queue_entry
		WHERE arrival_time >= $1 AND arrival_time < $2`,
		from, to).Scan(
		&stats.Entries, &stats.AvgWaitSeconds, &stats.AvgConsultSeconds,
		&stats.MaxWaitSeconds, &stats.CompletedEncounters,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *repoPG) Divergences(ctx context.Context, limit int) ([]*Divergence, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT q.id, q.status, s.step_type, s.step_at
		FROM queue_entry q
		JOIN LATERAL (
			SELECT step_type, step_at
			FROM patient_journey_step
			WHERE queue_entry_id = q.id
			ORDER BY step_at DESC
			LIMIT 1
		) s ON TRUE
		WHERE q.status <> s.step_type
		ORDER BY s.step_at DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Divergence
	for rows.Next() {
		var d Divergence
		if err := rows.Scan(&d.QueueEntryID, &d.EntryStatus, &d.LastStepType, &d.LastStepAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
