package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-position-tracker/internal/solana"
)

// DefaultDebounce coalesces bursts of notifications for one wallet.
const DefaultDebounce = 2 * time.Second

// LogSource delivers log notifications for registered filters.
// *solana.LogsSubscriber implements it.
type LogSource interface {
	Subscribe(key string, filter solana.LogsFilter) error
	Notifications() <-chan solana.LogNotification
}

// WalletSyncer is the part of Syncer the watcher drives.
type WalletSyncer interface {
	Sync(ctx context.Context, req SyncRequest) (*SyncStats, error)
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Source        LogSource
	Syncer        WalletSyncer
	Debounce      time.Duration
	MaxSignatures int // per triggered sync; 0 uses the syncer default
	Logger        *zap.Logger
	OnSync        func(*SyncStats, error) // optional
}

// Watcher turns live log notifications into bounded head syncs. Every
// notification for a wallet within the debounce window collapses into one
// sync.
type Watcher struct {
	source   LogSource
	syncer   WalletSyncer
	debounce time.Duration
	max      int
	logger   *zap.Logger
	onSync   func(*SyncStats, error)

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// NewWatcher creates a Watcher.
func NewWatcher(opts WatcherOptions) *Watcher {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		source:   opts.Source,
		syncer:   opts.Syncer,
		debounce: debounce,
		max:      opts.MaxSignatures,
		logger:   logger.Named("watch"),
		onSync:   opts.OnSync,
		pending:  make(map[string]*time.Timer),
	}
}

// Watch subscribes to transactions mentioning each wallet.
func (w *Watcher) Watch(wallets ...string) error {
	for _, wallet := range wallets {
		if err := solana.ValidateAddress(wallet); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidWallet, err)
		}
		if err := w.source.Subscribe(wallet, solana.LogsFilter{Mentions: []string{wallet}}); err != nil {
			return err
		}
	}
	return nil
}

// Run consumes notifications until ctx is done or the source closes, then
// waits for in-flight syncs. Pending debounced syncs are dropped.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.wg.Wait()
	defer w.stopPending()

	notifications := w.source.Notifications()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			if n.Err != nil {
				// Failed transactions are still classified for audit.
				w.logger.Debug("failed transaction notification", zap.String("signature", n.Signature))
			}
			w.schedule(ctx, n.Key)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, wallet string) {
	if wallet == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.pending[wallet]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[wallet] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, wallet)
		if w.closed {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()

		if ctx.Err() != nil {
			return
		}
		stats, err := w.syncer.Sync(ctx, SyncRequest{Wallet: wallet, MaxSignatures: w.max})
		if err != nil {
			w.logger.Warn("triggered sync failed", zap.String("wallet", wallet), zap.Error(err))
		} else {
			w.logger.Info("triggered sync",
				zap.String("wallet", wallet),
				zap.Int("stored", stats.Stored),
				zap.Int("duplicates", stats.Duplicates))
		}
		if w.onSync != nil {
			w.onSync(stats, err)
		}
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for wallet, t := range w.pending {
		t.Stop()
		delete(w.pending, wallet)
	}
}
