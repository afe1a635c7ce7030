package store

import (
	"context"
	"sync"

	"github.com/vietddude/notefetch/internal/core/domain"
)

// MemoryStore keeps the token set in process memory. Useful for tests and
// for runs that must not leave credentials on disk.
type MemoryStore struct {
	mu sync.RWMutex
	ts *domain.TokenSet
}

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load retrieves the stored token set.
func (s *MemoryStore) Load(_ context.Context) (*domain.TokenSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ts == nil {
		return nil, ErrNotFound
	}
	cp := *s.ts
	return &cp, nil
}

// Save replaces the stored token set.
func (s *MemoryStore) Save(_ context.Context, ts *domain.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ts
	s.ts = &cp
	return nil
}

// Clear removes the stored token set.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ts = nil
	return nil
}
