// Package postgres is the durable journal.Store backend: pgx/v5 for query
// execution, golang-migrate with embedded SQL for schema management.
// Grounded on codeready-toolchain-tarsy's pkg/database/client.go pattern
// (stdsql.Open("pgx", dsn) to drive golang-migrate, go:embed for migration
// files applied on startup) adapted to use pgxpool directly for queries
// instead of an ORM, since journal.Store's surface is a handful of simple
// statements that don't warrant a code-generated schema layer.
package postgres

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/agentcore/agentcore/journal"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds connection parameters for the journal's Postgres store.
type Config struct {
	DSN string
}

// Store implements journal.Store against PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects, applies pending migrations, and returns a ready Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := migrateUp(cfg.DSN); err != nil {
		return nil, fmt.Errorf("journal/postgres: migrate: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("journal/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal/postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func migrateUp(dsn string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	defer source.Close()

	m, err := migrate.NewWithInstance("iofs", source, "journal", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply: %w", err)
	}
	return nil
}

// Insert implements journal.Store.
func (s *Store) Insert(ctx context.Context, fc journal.FileChange) (string, error) {
	const q = `
		INSERT INTO file_changes
			(session_id, turn_number, tool_call_id, file_path, operation,
			 content_before, content_after, diff, stored)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	var id int64
	err := s.pool.QueryRow(ctx, q,
		fc.SessionID, fc.TurnNumber, fc.ToolCallID, fc.FilePath, fc.Operation,
		fc.ContentBefore, fc.ContentAfter, fc.Diff, fc.Stored,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("journal/postgres: insert: %w", err)
	}
	return fmt.Sprintf("%d", id), nil
}

// Get implements journal.Store.
func (s *Store) Get(ctx context.Context, id string) (journal.FileChange, error) {
	const q = `
		SELECT id, session_id, turn_number, tool_call_id, file_path, operation,
		       content_before, content_after, diff, stored, created_at, undone
		FROM file_changes WHERE id = $1`
	row := s.pool.QueryRow(ctx, q, id)
	fc, err := scanChange(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return journal.FileChange{}, fmt.Errorf("journal/postgres: change %q not found", id)
		}
		return journal.FileChange{}, fmt.Errorf("journal/postgres: get: %w", err)
	}
	return fc, nil
}

// ListByTurn implements journal.Store.
func (s *Store) ListByTurn(ctx context.Context, sessionID string, turnNumber int) ([]journal.FileChange, error) {
	const q = `
		SELECT id, session_id, turn_number, tool_call_id, file_path, operation,
		       content_before, content_after, diff, stored, created_at, undone
		FROM file_changes
		WHERE session_id = $1 AND turn_number = $2 AND undone = false
		ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, q, sessionID, turnNumber)
	if err != nil {
		return nil, fmt.Errorf("journal/postgres: list: %w", err)
	}
	defer rows.Close()

	var out []journal.FileChange
	for rows.Next() {
		fc, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("journal/postgres: scan: %w", err)
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

// MarkUndone implements journal.Store.
func (s *Store) MarkUndone(ctx context.Context, id string) error {
	const q = `UPDATE file_changes SET undone = true WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("journal/postgres: mark undone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("journal/postgres: change %q not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChange(row rowScanner) (journal.FileChange, error) {
	var (
		id         int64
		fc         journal.FileChange
		operation  string
		stored     string
	)
	if err := row.Scan(
		&id, &fc.SessionID, &fc.TurnNumber, &fc.ToolCallID, &fc.FilePath, &operation,
		&fc.ContentBefore, &fc.ContentAfter, &fc.Diff, &stored, &fc.CreatedAt, &fc.Undone,
	); err != nil {
		return journal.FileChange{}, err
	}
	fc.ID = fmt.Sprintf("%d", id)
	fc.Operation = journal.Operation(operation)
	fc.Stored = journal.StorageMode(stored)
	return fc, nil
}
