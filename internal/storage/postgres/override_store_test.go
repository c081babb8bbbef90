package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/storage"
)

func TestOverrideStore_UpsertReplacesAndKeepsCreatedAt(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOverrideStore(pool)

	pct := decimal.RequireFromString("12.5")
	err := store.Upsert(ctx, &domain.Override{
		WalletAddress: "walletA",
		PositionID:    "PosMint1",
		Protocol:      domain.ProtocolMeteoraDLMM,
		ProfitUSD:     decimal.RequireFromString("42.123456789"),
		PnLPercent:    &pct,
		Note:          "first",
	})
	require.NoError(t, err)

	first, err := store.GetByWallet(ctx, "walletA")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, domain.OverrideSourceManual, first[0].Source)
	assert.True(t, first[0].ProfitUSD.Equal(decimal.RequireFromString("42.123456789")))
	require.NotNil(t, first[0].PnLPercent)
	assert.True(t, first[0].PnLPercent.Equal(pct))

	time.Sleep(10 * time.Millisecond)

	err = store.Upsert(ctx, &domain.Override{
		WalletAddress: "walletA",
		PositionID:    "PosMint1",
		Protocol:      domain.ProtocolMeteoraDLMM,
		ProfitUSD:     decimal.NewFromInt(-7),
		Note:          "second",
	})
	require.NoError(t, err)

	second, err := store.GetByWallet(ctx, "walletA")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.True(t, second[0].ProfitUSD.Equal(decimal.NewFromInt(-7)))
	assert.Nil(t, second[0].PnLPercent)
	assert.Equal(t, "second", second[0].Note)
	assert.True(t, second[0].CreatedAt.Equal(first[0].CreatedAt))
	assert.False(t, second[0].UpdatedAt.Before(first[0].UpdatedAt))
}

func TestOverrideStore_GetByWalletOrdersByPosition(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOverrideStore(pool)

	for _, id := range []string{"P3", "P1", "P2"} {
		require.NoError(t, store.Upsert(ctx, &domain.Override{
			WalletAddress: "walletA",
			PositionID:    id,
			Protocol:      domain.ProtocolOrcaWhirlpools,
			ProfitUSD:     decimal.NewFromInt(1),
		}))
	}

	got, err := store.GetByWallet(ctx, "walletA")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "P1", got[0].PositionID)
	assert.Equal(t, "P2", got[1].PositionID)
	assert.Equal(t, "P3", got[2].PositionID)

	none, err := store.GetByWallet(ctx, "walletB")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOverrideStore_Delete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOverrideStore(pool)

	require.NoError(t, store.Upsert(ctx, &domain.Override{
		WalletAddress: "walletA",
		PositionID:    "P1",
		Protocol:      domain.ProtocolOrcaWhirlpools,
		ProfitUSD:     decimal.NewFromInt(1),
	}))

	require.NoError(t, store.Delete(ctx, "walletA", "P1"))
	assert.ErrorIs(t, store.Delete(ctx, "walletA", "P1"), storage.ErrNotFound)
}

func TestCursorStore_SetGetDelete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCursorStore(pool)

	_, err := store.Get(ctx, "walletA")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Set(ctx, &storage.SyncCursor{Wallet: "walletA", Newest: "n1", Oldest: "o1"}))
	require.NoError(t, store.Set(ctx, &storage.SyncCursor{
		Wallet: "walletA", Newest: "n2", Oldest: "o2", Exhausted: true, GapBefore: "g1", GapUntil: "n1",
	}))

	c, err := store.Get(ctx, "walletA")
	require.NoError(t, err)
	assert.Equal(t, "n2", c.Newest)
	assert.Equal(t, "o2", c.Oldest)
	assert.True(t, c.Exhausted)
	assert.Equal(t, "g1", c.GapBefore)
	assert.Equal(t, "n1", c.GapUntil)
	assert.False(t, c.UpdatedAt.IsZero())

	require.NoError(t, store.Delete(ctx, "walletA"))
	require.NoError(t, store.Delete(ctx, "walletA"))
	_, err = store.Get(ctx, "walletA")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
