package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/storage"
)

func ptr[T any](v T) *T {
	return &v
}

func newEvent(wallet, sig string, kind domain.EventKind, blockTime int64) *domain.Event {
	return &domain.Event{
		Signature:     sig,
		WalletAddress: wallet,
		Protocol:      domain.ProtocolOrcaWhirlpools,
		Kind:          kind,
		PositionID:    ptr("P1"),
		TotalUSDValue: decimal.NewFromInt(100),
		BlockTime:     blockTime,
		Succeeded:     true,
	}
}

func TestEventStore_UpsertIsIdempotent(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	e := newEvent("walletA", "sig1", domain.KindPositionOpen, 100)

	inserted, err := store.Upsert(ctx, e)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !inserted {
		t.Fatal("first Upsert should insert")
	}

	// A second call with different content is a no-op, not an update.
	changed := newEvent("walletA", "sig1", domain.KindUnknown, 100)
	inserted, err = store.Upsert(ctx, changed)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if inserted {
		t.Error("second Upsert should be a no-op")
	}

	events, err := store.Query(ctx, "walletA", storage.EventFilter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Kind != domain.KindPositionOpen {
		t.Errorf("stored event was overwritten: kind %s", events[0].Kind)
	}
}

func TestEventStore_SameSignatureDifferentWallets(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	store.Upsert(ctx, newEvent("walletA", "sig1", domain.KindFeeClaim, 100))
	inserted, err := store.Upsert(ctx, newEvent("walletB", "sig1", domain.KindFeeClaim, 100))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !inserted {
		t.Error("events are keyed per wallet")
	}
}

func TestEventStore_InvalidInput(t *testing.T) {
	store := NewEventStore()

	_, err := store.Upsert(context.Background(), nil)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	_, err = store.Upsert(context.Background(), &domain.Event{WalletAddress: "w"})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty signature, got %v", err)
	}
}

func TestEventStore_QueryFiltersAndOrder(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	store.Upsert(ctx, newEvent("walletA", "c", domain.KindPositionClose, 300))
	store.Upsert(ctx, newEvent("walletA", "a", domain.KindPositionOpen, 100))
	store.Upsert(ctx, newEvent("walletA", "b", domain.KindFeeClaim, 200))
	other := newEvent("walletA", "d", domain.KindFeeClaim, 250)
	other.Protocol = domain.ProtocolRaydiumCLMM
	other.PositionID = ptr("P2")
	store.Upsert(ctx, other)
	store.Upsert(ctx, newEvent("walletB", "e", domain.KindPositionOpen, 50))

	all, _ := store.Query(ctx, "walletA", storage.EventFilter{})
	var sigs []string
	for _, e := range all {
		sigs = append(sigs, e.Signature)
	}
	if fmt.Sprint(sigs) != "[a b d c]" {
		t.Errorf("unexpected order: %v", sigs)
	}

	fees, _ := store.Query(ctx, "walletA", storage.EventFilter{Kinds: []domain.EventKind{domain.KindFeeClaim}})
	if len(fees) != 2 {
		t.Errorf("expected 2 fee claims, got %d", len(fees))
	}

	orca, _ := store.Query(ctx, "walletA", storage.EventFilter{Protocol: domain.ProtocolOrcaWhirlpools})
	if len(orca) != 3 {
		t.Errorf("expected 3 orca events, got %d", len(orca))
	}

	p2, _ := store.Query(ctx, "walletA", storage.EventFilter{PositionID: "P2"})
	if len(p2) != 1 || p2[0].Signature != "d" {
		t.Errorf("unexpected position filter result: %v", p2)
	}

	window, _ := store.Query(ctx, "walletA", storage.EventFilter{From: 150, To: 260})
	if len(window) != 2 {
		t.Errorf("expected 2 events in window, got %d", len(window))
	}

	limited, _ := store.Query(ctx, "walletA", storage.EventFilter{Limit: 1})
	if len(limited) != 1 || limited[0].Signature != "a" {
		t.Errorf("unexpected limited result: %v", limited)
	}
}

func TestEventStore_DeleteByWallet(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	store.Upsert(ctx, newEvent("walletA", "a", domain.KindPositionOpen, 100))
	store.Upsert(ctx, newEvent("walletA", "b", domain.KindFeeClaim, 200))
	store.Upsert(ctx, newEvent("walletB", "c", domain.KindPositionOpen, 100))

	n, err := store.DeleteByWallet(ctx, "walletA")
	if err != nil {
		t.Fatalf("DeleteByWallet failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	if store.Count() != 1 {
		t.Errorf("walletB events must survive, count=%d", store.Count())
	}

	// Events can be re-ingested after a clear.
	inserted, _ := store.Upsert(ctx, newEvent("walletA", "a", domain.KindPositionOpen, 100))
	if !inserted {
		t.Error("expected re-insert after clear")
	}
}

func TestEventStore_ReturnsCopies(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	e := newEvent("walletA", "a", domain.KindPositionOpen, 100)
	store.Upsert(ctx, e)
	*e.PositionID = "mutated"

	got, _ := store.Query(ctx, "walletA", storage.EventFilter{})
	if *got[0].PositionID != "P1" {
		t.Error("store must not alias caller data")
	}
}

func TestEventStore_ConcurrentUpsert(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Upsert(ctx, newEvent("walletA", "same", domain.KindFeeClaim, 1))
			if err != nil {
				t.Errorf("Upsert failed: %v", err)
			}
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if inserted != 1 {
		t.Errorf("expected exactly one insert, got %d", inserted)
	}
}
