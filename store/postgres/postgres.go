// Package postgres is the durable backend for store.SessionStore and a
// plan.CheckpointStore, sharing journal/postgres's connect-and-migrate
// pattern (pgx/v5 + golang-migrate with embedded SQL).
package postgres

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/agentcore/agentcore/plan"
	"github.com/agentcore/agentcore/store"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds connection parameters shared by Store and CheckpointStore.
type Config struct {
	DSN string
}

// Store implements store.SessionStore against PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects, applies pending migrations, and returns a ready Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := migrateUp(cfg.DSN); err != nil {
		return nil, fmt.Errorf("store/postgres: migrate: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store/postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Checkpoints returns a plan.CheckpointStore sharing this Store's pool.
func (s *Store) Checkpoints() *CheckpointStore {
	return &CheckpointStore{pool: s.pool}
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

	m, err := migrate.NewWithInstance("iofs", source, "store", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply: %w", err)
	}
	return nil
}

// Create implements store.SessionStore.
func (s *Store) Create(ctx context.Context, id, task string) (store.Session, error) {
	const q = `
		INSERT INTO sessions (id, task)
		VALUES ($1, $2)
		RETURNING id, task, status, created_at, updated_at, completed_at`
	row := s.pool.QueryRow(ctx, q, id, task)
	sess, err := scanSession(row)
	if err != nil {
		return store.Session{}, fmt.Errorf("store/postgres: create: %w", err)
	}
	return sess, nil
}

// Get implements store.SessionStore.
func (s *Store) Get(ctx context.Context, id string) (store.Session, error) {
	const q = `
		SELECT id, task, status, created_at, updated_at, completed_at
		FROM sessions WHERE id = $1`
	row := s.pool.QueryRow(ctx, q, id)
	sess, err := scanSession(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return store.Session{}, fmt.Errorf("store/postgres: session %q not found", id)
		}
		return store.Session{}, fmt.Errorf("store/postgres: get: %w", err)
	}
	return sess, nil
}

// UpdateStatus implements store.SessionStore.
func (s *Store) UpdateStatus(ctx context.Context, id string, status store.SessionStatus) error {
	const q = `
		UPDATE sessions
		SET status = $2,
		    updated_at = now(),
		    completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE completed_at END
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, string(status))
	if err != nil {
		return fmt.Errorf("store/postgres: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store/postgres: session %q not found", id)
	}
	return nil
}

// List implements store.SessionStore.
func (s *Store) List(ctx context.Context, limit int) ([]store.Session, error) {
	q := `
		SELECT id, task, status, created_at, updated_at, completed_at
		FROM sessions ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: list: %w", err)
	}
	defer rows.Close()

	var out []store.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("store/postgres: scan: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (store.Session, error) {
	var sess store.Session
	var status string
	if err := row.Scan(&sess.ID, &sess.Task, &status, &sess.CreatedAt, &sess.UpdatedAt, &sess.CompletedAt); err != nil {
		return store.Session{}, err
	}
	sess.Status = store.SessionStatus(status)
	return sess, nil
}

// CheckpointStore implements plan.CheckpointStore against PostgreSQL,
// giving InteractivePlan rollback (spec §4.8) durability across process
// restarts. Steps are stored as JSONB; RollbackTo deletes the matched row
// and every row after it, mirroring InmemCheckpointStore's stack-truncate
// semantics.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

var _ plan.CheckpointStore = (*CheckpointStore)(nil)

func (c *CheckpointStore) Save(ctx context.Context, planID string, cp plan.Checkpoint) error {
	stepsJSON, err := json.Marshal(cp.Steps)
	if err != nil {
		return fmt.Errorf("store/postgres: marshal steps: %w", err)
	}
	const q = `
		INSERT INTO plan_checkpoints (plan_id, step_id, steps, status, current_step_index)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = c.pool.Exec(ctx, q, planID, cp.StepID, stepsJSON, string(cp.Status), cp.CurrentStepIndex)
	if err != nil {
		return fmt.Errorf("store/postgres: save checkpoint: %w", err)
	}
	return nil
}

func (c *CheckpointStore) Latest(ctx context.Context, planID string) (plan.Checkpoint, bool, error) {
	const q = `
		SELECT step_id, steps, status, current_step_index, taken_at
		FROM plan_checkpoints WHERE plan_id = $1 ORDER BY id DESC LIMIT 1`
	row := c.pool.QueryRow(ctx, q, planID)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return plan.Checkpoint{}, false, nil
		}
		return plan.Checkpoint{}, false, fmt.Errorf("store/postgres: latest checkpoint: %w", err)
	}
	return cp, true, nil
}

func (c *CheckpointStore) RollbackTo(ctx context.Context, planID, stepID string) (plan.Checkpoint, bool, error) {
	const selectQ = `
		SELECT id, step_id, steps, status, current_step_index, taken_at
		FROM plan_checkpoints WHERE plan_id = $1 AND step_id = $2
		ORDER BY id DESC LIMIT 1`
	row := c.pool.QueryRow(ctx, selectQ, planID, stepID)

	var (
		rowID int64
		cp    plan.Checkpoint
		stepsJSON []byte
		status    string
	)
	if err := row.Scan(&rowID, &cp.StepID, &stepsJSON, &status, &cp.CurrentStepIndex, &cp.TakenAt); err != nil {
		if err == pgx.ErrNoRows {
			return plan.Checkpoint{}, false, nil
		}
		return plan.Checkpoint{}, false, fmt.Errorf("store/postgres: rollback lookup: %w", err)
	}
	if err := json.Unmarshal(stepsJSON, &cp.Steps); err != nil {
		return plan.Checkpoint{}, false, fmt.Errorf("store/postgres: unmarshal steps: %w", err)
	}
	cp.Status = plan.InteractivePlanStatus(status)

	const deleteQ = `DELETE FROM plan_checkpoints WHERE plan_id = $1 AND id >= $2`
	if _, err := c.pool.Exec(ctx, deleteQ, planID, rowID); err != nil {
		return plan.Checkpoint{}, false, fmt.Errorf("store/postgres: rollback truncate: %w", err)
	}
	return cp, true, nil
}

func scanCheckpoint(row rowScanner) (plan.Checkpoint, error) {
	var (
		cp        plan.Checkpoint
		stepsJSON []byte
		status    string
	)
	if err := row.Scan(&cp.StepID, &stepsJSON, &status, &cp.CurrentStepIndex, &cp.TakenAt); err != nil {
		return plan.Checkpoint{}, err
	}
	if err := json.Unmarshal(stepsJSON, &cp.Steps); err != nil {
		return plan.Checkpoint{}, err
	}
	cp.Status = plan.InteractivePlanStatus(status)
	return cp, nil
}
