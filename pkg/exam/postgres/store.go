// Package postgres implements exam.Store on top of a PostgreSQL exams table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coral-ai/proctor/pkg/exam"
)

// Compile-time check that *Store satisfies exam.Store.
var _ exam.Store = (*Store)(nil)

// Store is a PostgreSQL-backed exam store. It holds a single [pgxpool.Pool]
// opened once per worker process and shared by all room sessions.
//
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, verifies connectivity, and runs [Migrate] to ensure the
// exams table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("exam store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("exam store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("exam store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("exam store: migrate: %w", err)
	}

	slog.Info("exam store connected", "database", cfg.ConnConfig.Database)
	return &Store{pool: pool}, nil
}

// GetExamByID implements exam.Store. The id format is validated before the
// database is queried; a malformed id never reaches the backend.
func (s *Store) GetExamByID(ctx context.Context, id string) (*exam.Exam, error) {
	if !exam.ValidID(id) {
		return nil, fmt.Errorf("%w: %q", exam.ErrInvalidID, id)
	}

	const q = `
		SELECT id,
		       COALESCE(name, $2),
		       COALESCE(questions, '[]'::jsonb),
		       COALESCE(duration_minutes, 0),
		       COALESCE(difficulty, $3)
		FROM   exams
		WHERE  id = $1`

	var (
		e            exam.Exam
		rawQuestions []byte
	)
	err := s.pool.QueryRow(ctx, q, id, exam.DefaultName, exam.DefaultDifficulty).
		Scan(&e.ID, &e.Name, &rawQuestions, &e.Duration, &e.Difficulty)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %s", exam.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query exam %s: %v", exam.ErrUnavailable, id, err)
	}

	if err := json.Unmarshal(rawQuestions, &e.Questions); err != nil {
		return nil, fmt.Errorf("%w: decode questions for %s: %v", exam.ErrUnavailable, id, err)
	}

	slog.Debug("exam loaded", "id", e.ID, "name", e.Name, "questions", len(e.Questions))
	return &e, nil
}

// Ping verifies database connectivity. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
