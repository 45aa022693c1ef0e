// Package journal implements the U component: a file-change journal that
// captures before/after content for every mutating tool call, generates
// unified diffs for large content, and supports per-change and per-turn
// undo. Grounded on the teacher's runtime/agent/run and runlog packages'
// Store-interface-plus-inmem-implementation convention.
package journal

import "time"

// Operation names the kind of file mutation a change record captures.
type Operation string

const (
	OpCreate Operation = "create"
	OpWrite  Operation = "write"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
)

// StorageMode records how a change's content is held.
type StorageMode string

const (
	StorageVerbatim StorageMode = "verbatim"
	StorageDiff     StorageMode = "diff"
)

// FileChange is one captured mutation, matching spec §4.4's
// (contentBefore, operation, contentAfter, turnNumber, toolCallId) tuple
// plus the bookkeeping needed to undo it later.
type FileChange struct {
	ID         string
	SessionID  string
	TurnNumber int
	ToolCallID string
	FilePath   string
	Operation  Operation

	// ContentBefore is nil when the file did not exist before the change
	// (e.g. OpCreate), and for a non-delete change stored as StorageDiff
	// (the pre-image is then rebuilt from Diff and ContentAfter).
	ContentBefore *string
	// ContentAfter is nil when the file no longer exists after the change
	// (e.g. OpDelete).
	ContentAfter *string
	// Diff holds a unified diff from ContentBefore to ContentAfter when
	// Stored is StorageDiff; empty when Stored is StorageVerbatim (both
	// sides are already held verbatim so a diff is redundant).
	Diff   string
	Stored StorageMode

	CreatedAt time.Time
	Undone    bool
}
