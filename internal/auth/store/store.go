// Package store provides pluggable persistence for the live credential set.
package store

import (
	"context"
	"errors"

	"github.com/vietddude/notefetch/internal/core/domain"
)

// ErrNotFound is returned when no token set has been persisted yet.
var ErrNotFound = errors.New("no cached token set")

// TokenStore persists the current TokenSet. Exactly one set is stored;
// Save replaces any previous one. Implementations must never log token
// material.
type TokenStore interface {
	// Load retrieves the persisted token set, or ErrNotFound.
	Load(ctx context.Context) (*domain.TokenSet, error)

	// Save replaces the persisted token set.
	Save(ctx context.Context, ts *domain.TokenSet) error

	// Clear removes the persisted token set.
	Clear(ctx context.Context) error
}
