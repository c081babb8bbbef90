package memory

import (
	"context"
	"sync"

	"solana-position-tracker/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]storage.SyncCursor
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{
		cursors: make(map[string]storage.SyncCursor),
	}
}

// Get returns the wallet's cursor.
func (s *CursorStore) Get(_ context.Context, wallet string) (*storage.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cursors[wallet]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

// Set saves the wallet's cursor.
func (s *CursorStore) Set(_ context.Context, c *storage.SyncCursor) error {
	if c == nil || c.Wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[c.Wallet] = *c
	return nil
}

// Delete removes the wallet's cursor.
func (s *CursorStore) Delete(_ context.Context, wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, wallet)
	return nil
}

// Verify interface compliance at compile time.
var _ storage.CursorStore = (*CursorStore)(nil)
