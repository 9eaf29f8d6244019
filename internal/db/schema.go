// Package db carries the Postgres schema the worker and intake run against.
package db

import (
	"context"
	_ "embed"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var Schema string

// Execer is satisfied by *pgxpool.Pool and *pgx.Conn.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Apply runs the idempotent schema script. Without arguments pgx sends it over
// the simple protocol, so the multi-statement script runs in one round trip.
func Apply(ctx context.Context, db Execer) error {
	if db == nil {
		return errors.New("db: executor is required")
	}
	_, err := db.Exec(ctx, Schema)
	return err
}
