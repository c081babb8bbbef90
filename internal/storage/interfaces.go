package storage

import (
	"context"

	"solana-position-tracker/internal/domain"
)

// EventStore provides access to position_events storage.
// Events are immutable: the only mutations are insert-if-absent and a
// wallet-scoped clear.
type EventStore interface {
	// Upsert stores e if (wallet_address, signature) is not present yet.
	// Returns false without error when the event already exists.
	Upsert(ctx context.Context, e *domain.Event) (bool, error)

	// DeleteByWallet removes every event of wallet and returns how many were removed.
	DeleteByWallet(ctx context.Context, wallet string) (int64, error)

	// Query returns the wallet's events matching filter, ordered by block_time ASC, signature ASC.
	Query(ctx context.Context, wallet string, filter EventFilter) ([]*domain.Event, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// OverrideStore provides access to position_overrides storage.
type OverrideStore interface {
	// Upsert inserts or replaces the override for (wallet_address, position_id).
	// CreatedAt of an existing override is preserved.
	Upsert(ctx context.Context, o *domain.Override) error

	// GetByWallet returns all overrides of wallet ordered by position_id.
	GetByWallet(ctx context.Context, wallet string) ([]*domain.Override, error)

	// Delete removes one override. Returns ErrNotFound if absent.
	Delete(ctx context.Context, wallet, positionID string) error
}

// EventFilter narrows an event query. Zero values mean "no constraint".
type EventFilter struct {
	Protocol   domain.Protocol
	Kinds      []domain.EventKind
	PositionID string
	From       int64 // block_time >= From (unix seconds)
	To         int64 // block_time <= To (unix seconds)
	Limit      int
}

// Matches reports whether e satisfies the filter. Shared by in-memory
// implementations and tests.
func (f EventFilter) Matches(e *domain.Event) bool {
	if f.Protocol != "" && e.Protocol != f.Protocol {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if e.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PositionID != "" && (e.PositionID == nil || *e.PositionID != f.PositionID) {
		return false
	}
	if f.From > 0 && e.BlockTime < f.From {
		return false
	}
	if f.To > 0 && e.BlockTime > f.To {
		return false
	}
	return true
}
