package postgres

import (
	"context"
	"fmt"

	"solana-position-tracker/internal/storage"
)

// CursorStore implements storage.CursorStore using PostgreSQL.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new CursorStore.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the wallet's cursor. Returns storage.ErrNotFound if none was saved.
func (s *CursorStore) Get(ctx context.Context, wallet string) (*storage.SyncCursor, error) {
	query := `
		SELECT wallet_address, newest, oldest, exhausted, gap_before, gap_until, updated_at
		FROM sync_cursors
		WHERE wallet_address = $1
	`

	var c storage.SyncCursor
	err := s.pool.QueryRow(ctx, query, wallet).Scan(
		&c.Wallet, &c.Newest, &c.Oldest, &c.Exhausted, &c.GapBefore, &c.GapUntil, &c.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sync cursor: %w", err)
	}
	return &c, nil
}

// Set inserts or replaces the wallet's cursor.
func (s *CursorStore) Set(ctx context.Context, c *storage.SyncCursor) error {
	if c == nil || c.Wallet == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO sync_cursors (wallet_address, newest, oldest, exhausted, gap_before, gap_until, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (wallet_address) DO UPDATE SET
			newest     = EXCLUDED.newest,
			oldest     = EXCLUDED.oldest,
			exhausted  = EXCLUDED.exhausted,
			gap_before = EXCLUDED.gap_before,
			gap_until  = EXCLUDED.gap_until,
			updated_at = now()
	`

	if _, err := s.pool.Exec(ctx, query, c.Wallet, c.Newest, c.Oldest, c.Exhausted, c.GapBefore, c.GapUntil); err != nil {
		return fmt.Errorf("set sync cursor: %w", err)
	}
	return nil
}

// Delete removes the wallet's cursor.
func (s *CursorStore) Delete(ctx context.Context, wallet string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sync_cursors WHERE wallet_address = $1`, wallet); err != nil {
		return fmt.Errorf("delete sync cursor: %w", err)
	}
	return nil
}
