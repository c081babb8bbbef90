package memory

import (
	"context"
	"sort"
	"sync"

	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/storage"
)

// eventKey is the composite key for event deduplication.
type eventKey struct {
	Wallet    string
	Signature string
}

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[eventKey]*domain.Event
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[eventKey]*domain.Event),
	}
}

// Upsert stores e unless (wallet, signature) already exists.
func (s *EventStore) Upsert(_ context.Context, e *domain.Event) (bool, error) {
	if e == nil || e.Signature == "" || e.WalletAddress == "" {
		return false, storage.ErrInvalidInput
	}

	key := eventKey{Wallet: e.WalletAddress, Signature: e.Signature}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = e.Clone()
	return true, nil
}

// DeleteByWallet removes all events of wallet.
func (s *EventStore) DeleteByWallet(_ context.Context, wallet string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key := range s.data {
		if key.Wallet == wallet {
			delete(s.data, key)
			n++
		}
	}
	return n, nil
}

// Query returns copies of the wallet's events matching filter.
func (s *EventStore) Query(_ context.Context, wallet string, filter storage.EventFilter) ([]*domain.Event, error) {
	s.mu.RLock()
	var result []*domain.Event
	for key, e := range s.data {
		if key.Wallet == wallet && filter.Matches(e) {
			result = append(result, e.Clone())
		}
	}
	s.mu.RUnlock()

	sortEvents(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Ping always succeeds.
func (s *EventStore) Ping(_ context.Context) error {
	return nil
}

// Count returns the number of stored events across wallets.
func (s *EventStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// sortEvents sorts events by (block_time, signature).
func sortEvents(events []*domain.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockTime != events[j].BlockTime {
			return events[i].BlockTime < events[j].BlockTime
		}
		return events[i].Signature < events[j].Signature
	})
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
