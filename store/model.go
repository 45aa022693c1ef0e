// Package store implements the relational session store that spec §6's
// ambient configuration model sits on top of: durable Session rows (one
// per kernel session) and a Postgres-backed plan.CheckpointStore, so
// InteractivePlan rollback survives a process restart the way FileChange
// already does in the journal. Grounded on codeready-toolchain-tarsy's
// pkg/database client/migration pattern, mirroring journal/postgres.
package store

import "time"

// SessionStatus is the lifecycle state of a kernel session row.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Session is the durable record of one kernel run: enough to resume
// journal and checkpoint lookups against the right session id after a
// restart. The kernel's in-memory iteration/budget state is not
// persisted here (spec §5 treats it as per-process), only the identity
// and outcome of the session.
type Session struct {
	ID          string
	Task        string
	Status      SessionStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}
