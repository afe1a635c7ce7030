package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vietddude/notefetch/internal/core/domain"
)

// FileStore persists the token set as a JSON file with 0600 permissions.
// Writes go to a temporary file first and are renamed into place so a crash
// never leaves a truncated cache.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed token store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load retrieves the persisted token set.
func (s *FileStore) Load(_ context.Context) (*domain.TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token cache: %w", err)
	}

	var ts domain.TokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("failed to parse token cache: %w", err)
	}
	if ts.AccessToken == "" {
		return nil, ErrNotFound
	}
	return &ts, nil
}

// Save replaces the persisted token set atomically.
func (s *FileStore) Save(_ context.Context, ts *domain.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("failed to encode token set: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".token_cache-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set cache permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close token cache: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace token cache: %w", err)
	}
	return nil
}

// Clear removes the persisted token set.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token cache: %w", err)
	}
	return nil
}
