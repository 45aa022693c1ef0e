package store

import "context"

// SessionStore persists Session rows. Concrete implementations live in
// store/inmem (tests) and store/postgres (durable).
type SessionStore interface {
	// Create inserts a new session in SessionActive status.
	Create(ctx context.Context, id, task string) (Session, error)
	// Get returns a session by id.
	Get(ctx context.Context, id string) (Session, error)
	// UpdateStatus transitions a session's status, stamping CompletedAt
	// when status is SessionCompleted or SessionFailed.
	UpdateStatus(ctx context.Context, id string, status SessionStatus) error
	// List returns sessions ordered by creation time, most recent first.
	List(ctx context.Context, limit int) ([]Session, error)
}
