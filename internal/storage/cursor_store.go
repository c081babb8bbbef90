package storage

import (
	"context"
	"time"
)

// SyncCursor records how far a wallet's history has been walked, so long
// histories can be ingested by repeated bounded syncs. A head listing that
// stops short of the previous Newest leaves a gap; resumed syncs drain it
// before anything else.
type SyncCursor struct {
	Wallet    string
	Newest    string    // most recent signature ever listed
	Oldest    string    // oldest signature listed so far; resume point for the next page
	Exhausted bool      // the ledger reported no history older than Oldest
	GapBefore string    // unwalked range left by a truncated head listing: below this signature
	GapUntil  string    // and above this one
	UpdatedAt time.Time
}

// CursorStore persists sync cursors per wallet.
type CursorStore interface {
	// Get returns the wallet's cursor. Returns ErrNotFound if none was saved yet.
	Get(ctx context.Context, wallet string) (*SyncCursor, error)

	// Set inserts or replaces the wallet's cursor.
	Set(ctx context.Context, c *SyncCursor) error

	// Delete removes the wallet's cursor. Missing cursors are not an error.
	Delete(ctx context.Context, wallet string) error
}
