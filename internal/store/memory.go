// Package store holds the session store implementations used by the
// workflow service.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/workflow"
)

// MemoryStore keeps sessions in process memory. Sessions are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*workflow.Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[uuid.UUID]*workflow.Session)}
}

// Create stores a new session at version 1.
func (m *MemoryStore) Create(_ context.Context, s *workflow.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return workflow.ErrConflict
	}
	s.Version = 1
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

// Get returns a copy of the stored session.
func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*workflow.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, workflow.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// Update replaces the stored session if its version still matches.
func (m *MemoryStore) Update(_ context.Context, s *workflow.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[s.ID]
	if !ok {
		return workflow.ErrSessionNotFound
	}
	if current.Version != s.Version {
		return workflow.ErrConflict
	}
	s.Version++
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

// FindByOrderID returns submitted sessions with the given order id,
// newest first.
func (m *MemoryStore) FindByOrderID(_ context.Context, orderID string) ([]*workflow.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*workflow.Session
	for _, s := range m.sessions {
		if s.Result != nil && s.Result.OrderID == orderID {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Prune deletes sessions last updated before the given time.
func (m *MemoryStore) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func cloneSession(s *workflow.Session) *workflow.Session {
	c := *s
	if s.Draft != nil {
		c.Draft = s.Draft.Clone()
	}
	if s.Result != nil {
		r := *s.Result
		if r.Draft != nil {
			r.Draft = r.Draft.Clone()
		}
		c.Result = &r
	}
	return &c
}
