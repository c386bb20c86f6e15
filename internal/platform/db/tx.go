package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNoConnection is returned when a transactional helper is invoked on a
// context that carries no structure-scoped connection.
var ErrNoConnection = errors.New("db: no connection in context")

// DBTxKey carries an open transaction through a request context so that
// repositories participate in it instead of talking to the pool directly.
const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves the active transaction from context, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// ContextWithTx returns a child context carrying tx.
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, DBTxKey, tx)
}

// WithTx begins a transaction on the structure-scoped connection held by the
// context and returns a child context carrying it. The caller owns commit and
// rollback. Returns an error when the context holds no connection.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	conn := ConnFromContext(ctx)
	if conn == nil {
		return ctx, nil, ErrNoConnection
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return ctx, nil, err
	}
	return ContextWithTx(ctx, tx), tx, nil
}

// InTx runs fn inside a transaction scoped to the request's connection,
// committing on success and rolling back on error or panic. When the context
// already carries a transaction, fn joins it and the outer owner commits.
func InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	txCtx, tx, err := WithTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(txCtx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
