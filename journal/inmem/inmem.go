// Package inmem provides an in-memory implementation of journal.Store for
// tests and local development. Not durable; modeled on the teacher's
// runtime/agent/run/inmem and runlog/inmem stores (mutex-guarded map,
// defensive copies, monotonic per-key sequence for IDs).
package inmem

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/agentcore/agentcore/journal"
)

// Store implements journal.Store in memory with no durability.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	changes map[string]journal.FileChange
	// byTurn indexes change IDs per (sessionID, turnNumber) in insertion order.
	byTurn map[string][]string
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		changes: make(map[string]journal.FileChange),
		byTurn:  make(map[string][]string),
	}
}

func turnKey(sessionID string, turn int) string {
	return sessionID + "#" + strconv.Itoa(turn)
}

// Insert implements journal.Store.
func (s *Store) Insert(_ context.Context, fc journal.FileChange) (string, error) {
	if fc.SessionID == "" {
		return "", fmt.Errorf("journal/inmem: session_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	fc.ID = strconv.FormatInt(s.nextID, 10)
	if fc.CreatedAt.IsZero() {
		fc.CreatedAt = time.Now()
	}
	s.changes[fc.ID] = fc
	key := turnKey(fc.SessionID, fc.TurnNumber)
	s.byTurn[key] = append(s.byTurn[key], fc.ID)
	return fc.ID, nil
}

// Get implements journal.Store.
func (s *Store) Get(_ context.Context, id string) (journal.FileChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fc, ok := s.changes[id]
	if !ok {
		return journal.FileChange{}, fmt.Errorf("journal/inmem: change %q not found", id)
	}
	return fc, nil
}

// ListByTurn implements journal.Store.
func (s *Store) ListByTurn(_ context.Context, sessionID string, turnNumber int) ([]journal.FileChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byTurn[turnKey(sessionID, turnNumber)]
	out := make([]journal.FileChange, 0, len(ids))
	for _, id := range ids {
		if fc, ok := s.changes[id]; ok && !fc.Undone {
			out = append(out, fc)
		}
	}
	return out, nil
}

// MarkUndone implements journal.Store.
func (s *Store) MarkUndone(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fc, ok := s.changes[id]
	if !ok {
		return fmt.Errorf("journal/inmem: change %q not found", id)
	}
	fc.Undone = true
	s.changes[id] = fc
	return nil
}
