package journal

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/agentcore/agentcore/agenttools"
	"github.com/agentcore/agentcore/telemetry"
)

// FileSystem is the narrow filesystem surface U needs: read the pre-image
// before a mutation, and write/delete files during undo. A production
// kernel wires the real OS filesystem; tests wire an in-memory fake.
type FileSystem interface {
	ReadFile(path string) (content string, exists bool, err error)
	WriteFile(path string, content string) error
	DeleteFile(path string) error
}

// OSFileSystem implements FileSystem against the local disk.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(path string) (string, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(b), true, nil
}

func (OSFileSystem) WriteFile(path string, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func (OSFileSystem) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Config tunes the journal's storage policy.
type Config struct {
	// SizeThreshold is the combined before+after byte size above which
	// only ContentAfter + a diff are stored, per spec §4.4. Defaults to
	// 50 KiB.
	SizeThreshold int
}

func (c Config) withDefaults() Config {
	if c.SizeThreshold <= 0 {
		c.SizeThreshold = 50 * 1024
	}
	return c
}

// Journal is the U component: it wraps a Store and a FileSystem to capture
// every mutating tool call and support turn-scoped undo. It implements
// agenttools.FileTracker so tool Execute functions can call BeginChange
// directly.
type Journal struct {
	store Store
	fs    FileSystem
	cfg   Config
	tel   telemetry.Bundle

	mu         sync.Mutex
	sessionID  string
	turnNumber int
}

// New constructs a Journal bound to one session. TurnNumber is supplied per
// call via SetTurn since a session spans many turns.
func New(store Store, fs FileSystem, cfg Config, tel telemetry.Bundle, sessionID string) *Journal {
	return &Journal{
		store: store,
		fs:    fs,
		cfg:   cfg.withDefaults(),
		tel:   telemetry.WithDefaults(tel),
		sessionID: sessionID,
	}
}

// SetTurn records the current turn number, attached to every change
// captured until the next SetTurn call.
func (j *Journal) SetTurn(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.turnNumber = n
}

// scopedTracker binds a single toolCallID to BeginChange calls; the kernel
// constructs one per tool invocation since agenttools.FileTracker's
// signature carries no call identity of its own.
type scopedTracker struct {
	j          *Journal
	toolCallID string
}

// ForToolCall returns a FileTracker whose captured changes are tagged with
// toolCallID.
func (j *Journal) ForToolCall(toolCallID string) agenttools.FileTracker {
	return &scopedTracker{j: j, toolCallID: toolCallID}
}

func (s *scopedTracker) BeginChange(ctx context.Context, filePath string, op string) (agenttools.ChangeHandle, error) {
	h, err := s.j.BeginChange(ctx, filePath, op)
	if err != nil {
		return nil, err
	}
	h.(*changeHandle).toolCallID = s.toolCallID
	return h, nil
}

type changeHandle struct {
	j             *Journal
	filePath      string
	op            agenttoolsOperation
	toolCallID    string
	contentBefore string
	existedBefore bool
	done          bool
}

type agenttoolsOperation = string

// BeginChange implements agenttools.FileTracker. It captures the pre-image
// before the tool runs; the tool calls Commit with the post-image once it
// has made the change, or Abandon if it decides not to proceed.
func (j *Journal) BeginChange(ctx context.Context, filePath string, op string) (agenttools.ChangeHandle, error) {
	before, existed, err := j.fs.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("journal: read pre-image of %q: %w", filePath, err)
	}
	return &changeHandle{
		j:             j,
		filePath:      filePath,
		op:            op,
		contentBefore: before,
		existedBefore: existed,
	}, nil
}

// Commit implements agenttools.ChangeHandle. It persists the captured
// before/after pair, applying the storage-threshold policy from spec §4.4.
func (h *changeHandle) Commit(ctx context.Context, contentAfter []byte) error {
	if h.done {
		return fmt.Errorf("journal: change for %q already settled", h.filePath)
	}
	h.done = true

	j := h.j
	j.mu.Lock()
	sessionID, turn := j.sessionID, j.turnNumber
	j.mu.Unlock()

	after := string(contentAfter)
	fc := FileChange{
		SessionID:  sessionID,
		TurnNumber: turn,
		ToolCallID: h.toolCallID,
		FilePath:   h.filePath,
		Operation:  Operation(h.op),
	}
	if h.existedBefore {
		before := h.contentBefore
		fc.ContentBefore = &before
	}
	if h.op != string(OpDelete) {
		fc.ContentAfter = &after
	}

	combined := len(h.contentBefore) + len(after)
	if combined <= j.cfg.SizeThreshold {
		fc.Stored = StorageVerbatim
	} else {
		fc.Stored = StorageDiff
		diff, err := unifiedDiff(h.contentBefore, after)
		if err != nil {
			return fmt.Errorf("journal: compute diff for %q: %w", h.filePath, err)
		}
		fc.Diff = diff
		// A delete has no ContentAfter to rebuild from, so its pre-image is
		// kept; every other operation rebuilds it from Diff + ContentAfter.
		if h.op != string(OpDelete) {
			fc.ContentBefore = nil
		}
	}

	if _, err := j.store.Insert(ctx, fc); err != nil {
		return fmt.Errorf("journal: record change for %q: %w", h.filePath, err)
	}
	return nil
}

// Abandon implements agenttools.ChangeHandle for a tool call that decided
// not to mutate the file after all; nothing was captured, so there is
// nothing to do.
func (h *changeHandle) Abandon() {
	h.done = true
}

// UndoChange reverses a single change by ID. Undo is atomic per change: on
// I/O failure the row is not marked undone (spec §4.4 failure policy).
func (j *Journal) UndoChange(ctx context.Context, id string) error {
	fc, err := j.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if fc.Undone {
		return nil
	}
	if err := j.applyUndo(fc); err != nil {
		return fmt.Errorf("journal: undo %q (%s): %w", fc.FilePath, fc.ID, err)
	}
	return j.store.MarkUndone(ctx, fc.ID)
}

func (j *Journal) applyUndo(fc FileChange) error {
	switch fc.Operation {
	case OpCreate:
		return j.fs.DeleteFile(fc.FilePath)
	case OpDelete:
		if fc.ContentBefore == nil {
			return fmt.Errorf("delete undo missing pre-image")
		}
		return j.fs.WriteFile(fc.FilePath, *fc.ContentBefore)
	case OpWrite, OpEdit:
		pre, err := j.reconstructBefore(fc)
		if err != nil {
			return err
		}
		if pre == "" && fc.ContentBefore == nil {
			return j.fs.DeleteFile(fc.FilePath)
		}
		return j.fs.WriteFile(fc.FilePath, pre)
	default:
		return fmt.Errorf("unknown operation %q", fc.Operation)
	}
}

// reconstructBefore returns the pre-image, either directly (verbatim
// storage) or by reverse-applying the stored diff against ContentAfter.
func (j *Journal) reconstructBefore(fc FileChange) (string, error) {
	if fc.Stored == StorageVerbatim {
		if fc.ContentBefore == nil {
			return "", nil
		}
		return *fc.ContentBefore, nil
	}
	if fc.ContentAfter == nil {
		return "", fmt.Errorf("diff-stored change missing content_after")
	}
	return reverseApply(fc.Diff, *fc.ContentAfter)
}

// UndoResult reports the outcome of undoing one change within a UndoTurn call.
type UndoResult struct {
	ChangeID string
	FilePath string
	Err      error
}

// UndoTurn undoes all non-undone changes for a turn in reverse insertion
// order, stopping at the first failure (spec §4.4). It returns the results
// for every change attempted, including the failing one.
func (j *Journal) UndoTurn(ctx context.Context, sessionID string, turnNumber int) ([]UndoResult, error) {
	changes, err := j.store.ListByTurn(ctx, sessionID, turnNumber)
	if err != nil {
		return nil, fmt.Errorf("journal: list turn %d: %w", turnNumber, err)
	}

	var results []UndoResult
	for i := len(changes) - 1; i >= 0; i-- {
		fc := changes[i]
		err := j.UndoChange(ctx, fc.ID)
		results = append(results, UndoResult{ChangeID: fc.ID, FilePath: fc.FilePath, Err: err})
		if err != nil {
			return results, fmt.Errorf("journal: undo turn %d stopped at change %q: %w", turnNumber, fc.ID, err)
		}
	}
	return results, nil
}
