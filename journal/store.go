package journal

import "context"

// Store persists FileChange rows and supports the queries U needs for undo.
// Concrete implementations live in journal/inmem (tests, local dev) and
// journal/postgres (durable).
type Store interface {
	// Insert assigns a new ID to fc (any ID already set is ignored) and
	// persists it, returning that ID.
	Insert(ctx context.Context, fc FileChange) (string, error)
	// Get returns a single change by ID.
	Get(ctx context.Context, id string) (FileChange, error)
	// ListByTurn returns all non-undone changes for a turn in insertion
	// order.
	ListByTurn(ctx context.Context, sessionID string, turnNumber int) ([]FileChange, error)
	// MarkUndone flips a change's Undone flag; callers only call this after
	// successfully reverse-applying it.
	MarkUndone(ctx context.Context, id string) error
}
