// Package inmem provides an in-memory store.SessionStore for tests and
// local development, modeled on journal/inmem's mutex-guarded map
// convention.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentcore/agentcore/store"
)

// Store implements store.SessionStore in memory with no durability.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]store.Session
}

// New constructs an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]store.Session)}
}

// Create implements store.SessionStore.
func (s *Store) Create(_ context.Context, id, task string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; exists {
		return store.Session{}, fmt.Errorf("store/inmem: session %q already exists", id)
	}
	now := time.Now()
	sess := store.Session{ID: id, Task: task, Status: store.SessionActive, CreatedAt: now, UpdatedAt: now}
	s.sessions[id] = sess
	return sess, nil
}

// Get implements store.SessionStore.
func (s *Store) Get(_ context.Context, id string) (store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.Session{}, fmt.Errorf("store/inmem: session %q not found", id)
	}
	return sess, nil
}

// UpdateStatus implements store.SessionStore.
func (s *Store) UpdateStatus(_ context.Context, id string, status store.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("store/inmem: session %q not found", id)
	}
	sess.Status = status
	now := time.Now()
	sess.UpdatedAt = now
	if status == store.SessionCompleted || status == store.SessionFailed {
		sess.CompletedAt = &now
	}
	s.sessions[id] = sess
	return nil
}

// List implements store.SessionStore.
func (s *Store) List(_ context.Context, limit int) ([]store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
