package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"solana-position-tracker/internal/classifier"
	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/observability"
	"solana-position-tracker/internal/pricing"
	"solana-position-tracker/internal/ratelimit"
	"solana-position-tracker/internal/solana"
	"solana-position-tracker/internal/storage"
)

// Validation and precondition errors. Everything else a sync meets is
// reported in SyncStats.
var (
	ErrInvalidWallet    = errors.New("invalid wallet address")
	ErrInvalidLimit     = errors.New("invalid max signatures")
	ErrInvalidDelay     = errors.New("invalid inter-request delay")
	ErrStoreUnavailable = errors.New("event store unavailable")
)

// Sync modes.
const (
	ModeSync   = "sync"
	ModeResync = "resync"
)

// Limits bounds the work of one sync call. Zero fields take defaults.
type Limits struct {
	DefaultMaxSignatures int
	HardMaxSignatures    int
	DefaultDelay         time.Duration
	MinDelay             time.Duration
	Concurrency          int
	PageSize             int
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		DefaultMaxSignatures: DefaultMaxSignatures,
		HardMaxSignatures:    DefaultMaxSignatures,
		DefaultDelay:         ratelimit.DefaultInterval,
		MinDelay:             100 * time.Millisecond,
		Concurrency:          DefaultConcurrency,
		PageSize:             solana.MaxSignaturesPageSize,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.DefaultMaxSignatures <= 0 {
		l.DefaultMaxSignatures = d.DefaultMaxSignatures
	}
	if l.HardMaxSignatures <= 0 {
		l.HardMaxSignatures = d.HardMaxSignatures
	}
	if l.DefaultMaxSignatures > l.HardMaxSignatures {
		l.DefaultMaxSignatures = l.HardMaxSignatures
	}
	if l.DefaultDelay <= 0 {
		l.DefaultDelay = d.DefaultDelay
	}
	if l.MinDelay <= 0 {
		l.MinDelay = d.MinDelay
	}
	if l.Concurrency <= 0 {
		l.Concurrency = d.Concurrency
	}
	if l.PageSize <= 0 {
		l.PageSize = d.PageSize
	}
	return l
}

// SyncRequest is the input of Sync and Resync.
type SyncRequest struct {
	Wallet            string
	MaxSignatures     int           // 0 uses the default; above the hard max is clamped
	InterRequestDelay time.Duration // 0 uses the default; below the minimum is raised
	Before            string        // resume below this signature
	Resume            bool          // continue from the stored cursor when Before is empty
}

// SyncError is a per-signature store failure.
type SyncError struct {
	Signature string `json:"signature"`
	Message   string `json:"message"`
}

// SyncStats is the complete account of one sync call.
type SyncStats struct {
	RunID                  string          `json:"runId"`
	Mode                   string          `json:"mode"`
	Wallet                 string          `json:"wallet"`
	EffectiveMaxSignatures int             `json:"effectiveMaxSignatures"`
	EffectiveDelay         time.Duration   `json:"effectiveDelay"`
	Clamped                bool            `json:"clamped"`
	DelayRaised            bool            `json:"delayRaised"`
	SOLUSD                 decimal.Decimal `json:"solUsd"`
	PriceOrigin            string          `json:"priceOrigin"`
	Cleared                int64           `json:"cleared,omitempty"`
	TotalFetched           int             `json:"totalFetched"`
	TransactionsFetched    int             `json:"transactionsFetched"`
	Missing                int             `json:"missing"`
	FetchErrors            int             `json:"fetchErrors"`
	Classified             int             `json:"classified"`
	Stored                 int             `json:"stored"`
	Duplicates             int             `json:"duplicates"`
	Errors                 []SyncError     `json:"errors"`
	NextBefore             string          `json:"nextBefore,omitempty"`
	Duration               time.Duration   `json:"duration"`
	Shared                 bool            `json:"shared"`
}

// SyncerOptions configures a Syncer.
type SyncerOptions struct {
	RPC        solana.RPCClient
	Events     storage.EventStore
	Cursors    storage.CursorStore // optional
	Classifier *classifier.Classifier
	Prices     *pricing.Lookup // optional; nil values native flows at the default rate
	Limits     Limits
	Logger     *zap.Logger
}

// Syncer runs the sync pipeline: list signatures, fetch bodies, classify,
// upsert. At most one pipeline per wallet runs at a time.
type Syncer struct {
	rpc        solana.RPCClient
	events     storage.EventStore
	cursors    storage.CursorStore
	classifier *classifier.Classifier
	prices     *pricing.Lookup
	limits     Limits
	logger     *zap.Logger

	group    singleflight.Group
	flightMu sync.Mutex
	flights  map[string]*flight
	walletMu sync.Map // wallet -> *sync.Mutex
}

// flight counts the callers waiting on one shared run. The run's context is
// cancelled once the last of them has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewSyncer creates a Syncer.
func NewSyncer(opts SyncerOptions) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := opts.Classifier
	if c == nil {
		c = classifier.New(classifier.DefaultConfig())
	}
	prices := opts.Prices
	if prices == nil {
		prices = pricing.NewLookup(pricing.LookupOptions{Logger: logger})
	}

	return &Syncer{
		rpc:        opts.RPC,
		events:     opts.Events,
		cursors:    opts.Cursors,
		classifier: c,
		prices:     prices,
		limits:     opts.Limits.withDefaults(),
		logger:     logger.Named("sync"),
		flights:    make(map[string]*flight),
	}
}

// Sync ingests the wallet's most recent history, bounded by MaxSignatures.
// Invalid input and an unreachable store are the only errors; every
// per-signature problem is reported in the stats.
func (s *Syncer) Sync(ctx context.Context, req SyncRequest) (*SyncStats, error) {
	return s.run(ctx, ModeSync, req)
}

// Resync clears the wallet's events and cursor, then syncs.
func (s *Syncer) Resync(ctx context.Context, req SyncRequest) (*SyncStats, error) {
	req.Resume = false
	req.Before = ""
	return s.run(ctx, ModeResync, req)
}

// plan is a validated SyncRequest.
type plan struct {
	mode    string
	wallet  string
	max     int
	delay   time.Duration
	clamped bool
	raised  bool
	before  string
	resume  bool
}

func (s *Syncer) validate(mode string, req SyncRequest) (plan, error) {
	p := plan{mode: mode, wallet: req.Wallet, before: req.Before, resume: req.Resume}

	if err := solana.ValidateAddress(req.Wallet); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidWallet, err)
	}

	switch {
	case req.MaxSignatures < 0:
		return p, fmt.Errorf("%w: %d is negative", ErrInvalidLimit, req.MaxSignatures)
	case req.MaxSignatures == 0:
		p.max = s.limits.DefaultMaxSignatures
	case req.MaxSignatures > s.limits.HardMaxSignatures:
		p.max = s.limits.HardMaxSignatures
		p.clamped = true
	default:
		p.max = req.MaxSignatures
	}

	switch {
	case req.InterRequestDelay < 0:
		return p, fmt.Errorf("%w: %s is negative", ErrInvalidDelay, req.InterRequestDelay)
	case req.InterRequestDelay == 0:
		p.delay = s.limits.DefaultDelay
	case req.InterRequestDelay < s.limits.MinDelay:
		p.delay = s.limits.MinDelay
		p.raised = true
	default:
		p.delay = req.InterRequestDelay
	}

	return p, nil
}

func (s *Syncer) run(ctx context.Context, mode string, req SyncRequest) (*SyncStats, error) {
	p, err := s.validate(mode, req)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s:%s:%d:%s:%s:%t", mode, p.wallet, p.max, p.delay, p.before, p.resume)
	f := s.join(ctx, key)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		stats, err := s.execute(f.ctx, p)
		if stats == nil {
			return nil, err
		}
		return stats, err
	})

	var res singleflight.Result
	select {
	case res = <-ch:
		s.leave(key, f)
	case <-ctx.Done():
		if !s.leave(key, f) {
			return nil, ctx.Err()
		}
		// Last caller out cancelled the run; collect its partial stats.
		res = <-ch
		res.Err = ctx.Err()
	}
	if res.Val == nil {
		return nil, res.Err
	}

	stats := *res.Val.(*SyncStats)
	stats.Errors = append([]SyncError{}, stats.Errors...)
	if res.Shared {
		stats.Shared = true
		observability.RecordSyncShared()
	}
	return &stats, res.Err
}

// join registers a caller for the run under key. The run context keeps the
// first caller's values but none of its cancellation.
func (s *Syncer) join(ctx context.Context, key string) *flight {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()

	f, ok := s.flights[key]
	if !ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: runCtx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	return f
}

// leave drops a caller and reports whether it was the last one. The last
// caller cancels the run and forgets the key, so later calls start afresh.
func (s *Syncer) leave(key string, f *flight) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return false
	}
	f.cancel()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
	s.group.Forget(key)
	return true
}

// lockWallet serializes syncs and resyncs of one wallet.
func (s *Syncer) lockWallet(wallet string) func() {
	m, _ := s.walletMu.LoadOrStore(wallet, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Syncer) execute(ctx context.Context, p plan) (*SyncStats, error) {
	start := time.Now()
	stats := &SyncStats{
		RunID:                  uuid.NewString(),
		Mode:                   p.mode,
		Wallet:                 p.wallet,
		EffectiveMaxSignatures: p.max,
		EffectiveDelay:         p.delay,
		Clamped:                p.clamped,
		DelayRaised:            p.raised,
		Errors:                 []SyncError{},
	}
	logger := s.logger.With(
		zap.String("wallet", p.wallet),
		zap.String("run_id", stats.RunID),
		zap.String("mode", p.mode))

	if err := s.events.Ping(ctx); err != nil {
		observability.RecordSyncRun(p.mode, "failed", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	unlock := s.lockWallet(p.wallet)
	defer unlock()

	if p.mode == ModeResync {
		n, err := s.events.DeleteByWallet(ctx, p.wallet)
		if err != nil {
			observability.RecordSyncRun(p.mode, "failed", time.Since(start).Seconds())
			return nil, fmt.Errorf("clear events: %w", err)
		}
		stats.Cleared = n
		if s.cursors != nil {
			if err := s.cursors.Delete(ctx, p.wallet); err != nil {
				logger.Warn("failed to delete cursor", zap.Error(err))
			}
		}
		logger.Info("cleared wallet events", zap.Int64("deleted", n))
	}

	quote := s.prices.SOLUSD(ctx)
	stats.SOLUSD = quote.Rate
	stats.PriceOrigin = string(quote.Origin)

	cursor := s.loadCursor(ctx, p.wallet, logger)
	w, before, until := walkHead, p.before, ""
	switch {
	case before != "":
		w = walkManual
	case !p.resume || cursor == nil:
	case cursor.GapBefore != "":
		w, before, until = walkGap, cursor.GapBefore, cursor.GapUntil
	case cursor.Exhausted:
		until = cursor.Newest
	default:
		w, before = walkOlder, cursor.Oldest
	}

	fetcher := NewSignatureFetcher(s.rpc, s.limits.PageSize)
	records, exhausted, err := fetcher.Fetch(ctx, p.wallet, p.max, before, until)
	stats.TotalFetched = len(records)
	observability.RecordSignaturesListed(len(records))
	if err != nil {
		stats.FetchErrors++
		logger.Warn("signature listing failed", zap.Error(err))
	}

	signatures := make([]string, len(records))
	for i, r := range records {
		signatures[i] = r.Signature
	}

	batch := NewBatchFetcher(s.rpc, BatchOptions{
		Interval:      p.delay,
		Concurrency:   s.limits.Concurrency,
		MaxSignatures: p.max,
		Logger:        logger,
	})
	result, ctxErr := batch.Fetch(ctx, signatures)
	stats.Missing = result.Missing
	stats.FetchErrors += result.Failed
	stats.TransactionsFetched = len(result.Transactions) - result.Missing - result.Failed

	for _, tx := range result.Transactions {
		if tx == nil {
			continue
		}
		s.store(ctx, stats, tx, logger)
	}

	if err == nil && !exhausted && len(records) > 0 {
		stats.NextBefore = records[len(records)-1].Signature
	}
	if err == nil && ctxErr == nil {
		s.saveCursor(ctx, cursor, p.wallet, w, records, exhausted, logger)
	}

	stats.Duration = time.Since(start)
	status := "ok"
	if ctxErr != nil {
		status = "cancelled"
	}
	observability.RecordSyncRun(p.mode, status, stats.Duration.Seconds())
	if ctxErr == nil {
		observability.MarkSyncSuccess(time.Now().Unix())
	}

	logger.Info("sync complete",
		zap.Int("listed", stats.TotalFetched),
		zap.Int("fetched", stats.TransactionsFetched),
		zap.Int("missing", stats.Missing),
		zap.Int("fetch_errors", stats.FetchErrors),
		zap.Int("classified", stats.Classified),
		zap.Int("stored", stats.Stored),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("store_errors", len(stats.Errors)),
		zap.Duration("duration", stats.Duration))

	if ctxErr != nil {
		return stats, ctxErr
	}
	return stats, nil
}

// store classifies tx and upserts the event. Store failures are recorded
// against the signature and never abort the sync.
func (s *Syncer) store(ctx context.Context, stats *SyncStats, tx *solana.Transaction, logger *zap.Logger) {
	e := s.classifier.ClassifyAny(tx, stats.Wallet, stats.SOLUSD)
	if e == nil {
		return
	}
	stats.Classified++
	observability.RecordEventClassified(string(e.Protocol), string(e.Kind))

	inserted, err := s.events.Upsert(ctx, e)
	switch {
	case err != nil:
		stats.Errors = append(stats.Errors, SyncError{Signature: e.Signature, Message: err.Error()})
		observability.RecordEventStored("failed")
		logger.Warn("failed to store event",
			zap.String("signature", e.Signature),
			zap.Error(err))
	case inserted:
		stats.Stored++
		observability.RecordEventStored("inserted")
	default:
		stats.Duplicates++
		observability.RecordEventStored("duplicate")
	}
}

func (s *Syncer) loadCursor(ctx context.Context, wallet string, logger *zap.Logger) *storage.SyncCursor {
	if s.cursors == nil {
		return nil
	}
	c, err := s.cursors.Get(ctx, wallet)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("failed to load cursor", zap.Error(err))
		}
		return nil
	}
	return c
}

// walk is the part of a wallet's history one sync lists.
type walk int

const (
	walkHead   walk = iota // newest first, down to the cursor's Newest when set
	walkOlder              // below the cursor's Oldest
	walkGap                // the pending gap below the head
	walkManual             // below an explicit Before; the cursor is left alone
)

// saveCursor advances the walk markers after a successful listing.
func (s *Syncer) saveCursor(ctx context.Context, c *storage.SyncCursor, wallet string, w walk, records []domain.SignatureRecord, exhausted bool, logger *zap.Logger) {
	if s.cursors == nil || w == walkManual {
		return
	}
	if c == nil {
		if len(records) == 0 {
			return
		}
		c = &storage.SyncCursor{Wallet: wallet}
	}

	switch w {
	case walkGap:
		if exhausted {
			c.GapBefore, c.GapUntil = "", ""
		} else if len(records) > 0 {
			c.GapBefore = records[len(records)-1].Signature
		}
	case walkOlder:
		if len(records) > 0 {
			c.Oldest = records[len(records)-1].Signature
		}
		c.Exhausted = exhausted
	default:
		if len(records) == 0 {
			return
		}
		newest, oldest := records[0].Signature, records[len(records)-1].Signature
		if c.Newest != "" && !exhausted && !containsSignature(records, c.Newest) {
			// Stopped short of the previous head. Merging with an older gap
			// re-lists the stretch between them, which upserts ignore.
			if c.GapUntil == "" {
				c.GapUntil = c.Newest
			}
			c.GapBefore = oldest
		}
		c.Newest = newest
		if c.Oldest == "" {
			c.Oldest = oldest
			c.Exhausted = exhausted
		}
	}

	if err := s.cursors.Set(ctx, c); err != nil {
		logger.Warn("failed to save cursor", zap.Error(err))
	}
}

func containsSignature(records []domain.SignatureRecord, signature string) bool {
	for _, r := range records {
		if r.Signature == signature {
			return true
		}
	}
	return false
}
