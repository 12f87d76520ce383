package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the exams table. Exams are authored by the platform backend;
// this worker only reads them, so the schema here is deliberately minimal and
// idempotent. Column defaults mirror the values applied at scan time so a
// partially populated record read by an older worker behaves identically.
const schema = `
CREATE TABLE IF NOT EXISTS exams (
    id               CHAR(24) PRIMARY KEY,
    name             TEXT,
    questions        JSONB NOT NULL DEFAULT '[]'::jsonb,
    duration_minutes INTEGER,
    difficulty       TEXT,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate ensures the exams table exists.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create exams table: %w", err)
	}
	return nil
}
