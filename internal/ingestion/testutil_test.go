package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"solana-position-tracker/internal/classifier"
	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/solana"
	"solana-position-tracker/internal/solana/stub"
	"solana-position-tracker/internal/storage/memory"
)

const (
	testWallet  = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testReceipt = "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"
)

func sigName(i int) string {
	return fmt.Sprintf("sig-%04d", i)
}

// feeClaimTx builds a Raydium CLMM fee collection: the wallet holds the
// receipt and receives 1.5 USDC.
func feeClaimTx(sig string, blockTime int64) *solana.Transaction {
	return &solana.Transaction{
		Slot:      250000000 + blockTime,
		Signature: sig,
		BlockTime: blockTime,
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{2_000_000_000},
			PostBalances: []uint64{2_000_000_000 - 5000},
			PreTokenBalances: []solana.TokenBalance{
				{AccountIndex: 3, Mint: testReceipt, Owner: testWallet, Amount: "1", Decimals: 0},
				{AccountIndex: 4, Mint: classifier.USDCMint, Owner: testWallet, Amount: "0", Decimals: 6},
			},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 3, Mint: testReceipt, Owner: testWallet, Amount: "1", Decimals: 0},
				{AccountIndex: 4, Mint: classifier.USDCMint, Owner: testWallet, Amount: "1500000", Decimals: 6},
			},
		},
		Message: &solana.TransactionMessage{
			AccountKeys: []solana.AccountKey{{Address: testWallet, Signer: true, Writable: true}},
			Instructions: []solana.Instruction{
				{ProgramID: classifier.RaydiumCLMMProgram, Accounts: []string{testWallet}},
			},
		},
	}
}

// seedHistory gives the wallet n signatures, newest first, and serves a
// fee claim for every index where present returns true. It returns the
// listed history.
func seedHistory(rpc *stub.RPCClient, n int, present func(i int) bool) []solana.SignatureInfo {
	sigs := make([]solana.SignatureInfo, n)
	for i := 0; i < n; i++ {
		bt := int64(1700000000 - i)
		sigs[i] = solana.SignatureInfo{Signature: sigName(i), Slot: 250000000 - int64(i), BlockTime: &bt}
		if present == nil || present(i) {
			rpc.AddTransaction(feeClaimTx(sigName(i), bt))
		}
	}
	rpc.AddSignatures(testWallet, sigs)
	return sigs
}

func allPresent(int) bool { return true }

func newTestSyncer(rpc solana.RPCClient, events *faultyEventStore, cursors *memory.CursorStore) *Syncer {
	limits := DefaultLimits()
	limits.DefaultDelay = 1
	limits.MinDelay = 1
	return NewSyncer(SyncerOptions{
		RPC:     rpc,
		Events:  events,
		Cursors: cursors,
		Limits:  limits,
	})
}

var errInjected = errors.New("injected store failure")

// faultyEventStore wraps the memory store with injectable failures.
type faultyEventStore struct {
	*memory.EventStore

	mu      sync.Mutex
	pingErr error
	failSig map[string]bool
}

func newFaultyEventStore() *faultyEventStore {
	return &faultyEventStore{EventStore: memory.NewEventStore(), failSig: map[string]bool{}}
}

func (s *faultyEventStore) Upsert(ctx context.Context, e *domain.Event) (bool, error) {
	s.mu.Lock()
	fail := s.failSig[e.Signature]
	s.mu.Unlock()
	if fail {
		return false, errInjected
	}
	return s.EventStore.Upsert(ctx, e)
}

func (s *faultyEventStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.EventStore.Ping(ctx)
}

func (s *faultyEventStore) failOn(sig string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSig[sig] = true
}
