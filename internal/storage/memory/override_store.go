package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/storage"
)

type overrideKey struct {
	Wallet     string
	PositionID string
}

// OverrideStore is an in-memory implementation of storage.OverrideStore.
type OverrideStore struct {
	mu   sync.RWMutex
	data map[overrideKey]*domain.Override
	now  func() time.Time
}

// NewOverrideStore creates a new in-memory override store.
func NewOverrideStore() *OverrideStore {
	return &OverrideStore{
		data: make(map[overrideKey]*domain.Override),
		now:  time.Now,
	}
}

// Upsert inserts or replaces an override, keeping the original CreatedAt.
func (s *OverrideStore) Upsert(_ context.Context, o *domain.Override) error {
	if o == nil || o.WalletAddress == "" || o.PositionID == "" {
		return storage.ErrInvalidInput
	}

	key := overrideKey{Wallet: o.WalletAddress, PositionID: o.PositionID}
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyOverride(o)
	stored.UpdatedAt = now
	if existing, ok := s.data[key]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	s.data[key] = stored
	return nil
}

// GetByWallet returns the wallet's overrides ordered by position id.
func (s *OverrideStore) GetByWallet(_ context.Context, wallet string) ([]*domain.Override, error) {
	s.mu.RLock()
	var result []*domain.Override
	for key, o := range s.data {
		if key.Wallet == wallet {
			result = append(result, copyOverride(o))
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].PositionID < result[j].PositionID
	})
	return result, nil
}

// Delete removes one override.
func (s *OverrideStore) Delete(_ context.Context, wallet, positionID string) error {
	key := overrideKey{Wallet: wallet, PositionID: positionID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, key)
	return nil
}

func copyOverride(o *domain.Override) *domain.Override {
	c := *o
	if o.PnLPercent != nil {
		v := *o.PnLPercent
		c.PnLPercent = &v
	}
	return &c
}

// Verify interface compliance at compile time.
var _ storage.OverrideStore = (*OverrideStore)(nil)
