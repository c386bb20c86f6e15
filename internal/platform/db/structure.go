package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	StructureIDKey contextKey = "structure_id"
	DBConnKey      contextKey = "db_conn"
)

var structureIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// StructureMiddleware resolves the acting structure (tenant) for a request,
// acquires a pooled connection, and pins its search_path to the structure's
// schema. Every repository query issued through the request context is
// therefore isolated to that structure's rows.
func StructureMiddleware(pool *pgxpool.Pool, defaultStructure string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			structureID := extractStructureID(c, defaultStructure)

			if !structureIDPattern.MatchString(structureID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid structure identifier")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			schema := fmt.Sprintf("structure_%s", structureID)
			_, err = conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, shared, public", schema))
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "structure resolution failed")
			}

			ctx = context.WithValue(ctx, StructureIDKey, structureID)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("structure_id", structureID)
			c.Set("db", conn)

			return next(c)
		}
	}
}

func extractStructureID(c echo.Context, defaultStructure string) string {
	// 1. JWT claim (set by auth middleware)
	if sid, ok := c.Get("jwt_structure_id").(string); ok && sid != "" {
		return sid
	}

	// 2. X-Structure-ID header
	if sid := c.Request().Header.Get("X-Structure-ID"); sid != "" {
		return sid
	}

	// 3. Query parameter
	if sid := c.QueryParam("structure_id"); sid != "" {
		return sid
	}

	return defaultStructure
}

// ConnFromContext retrieves the structure-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// StructureFromContext retrieves the structure ID from context.
func StructureFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(StructureIDKey).(string)
	return sid
}

// CreateStructureSchema creates a new schema for a structure and optionally
// runs all migrations against it. If migrationsDir is empty, migrations are
// skipped.
func CreateStructureSchema(ctx context.Context, pool *pgxpool.Pool, structureID string, migrationsDir string) error {
	if !structureIDPattern.MatchString(structureID) {
		return fmt.Errorf("invalid structure identifier: %s", structureID)
	}

	schema := fmt.Sprintf("structure_%s", structureID)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	if err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, migrationsDir)
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}

	return nil
}
