package ingestion

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-position-tracker/internal/observability"
	"solana-position-tracker/internal/ratelimit"
	"solana-position-tracker/internal/solana"
)

// Batch defaults.
const (
	DefaultMaxSignatures = 50
	DefaultConcurrency   = 2
)

// BatchOptions configures a BatchFetcher.
type BatchOptions struct {
	Interval      time.Duration // minimum gap between dispatches; 0 uses ratelimit.DefaultInterval
	Concurrency   int           // in-flight requests; 0 uses DefaultConcurrency
	MaxSignatures int           // per-call cap; 0 uses DefaultMaxSignatures
	Logger        *zap.Logger
}

// BatchResult holds fetched transactions aligned with the input signatures.
// Transactions[i] is nil when signature i was missing or failed.
type BatchResult struct {
	Transactions []*solana.Transaction
	Missing      int // node returned null
	Failed       int // request failed after retries
	Truncated    int // signatures dropped by MaxSignatures
}

// BatchFetcher fetches transaction bodies under a dispatch interval with
// bounded concurrency. One failed fetch never aborts the batch.
type BatchFetcher struct {
	rpc         solana.RPCClient
	interval    time.Duration
	concurrency int
	max         int
	logger      *zap.Logger
}

// NewBatchFetcher creates a BatchFetcher.
func NewBatchFetcher(rpc solana.RPCClient, opts BatchOptions) *BatchFetcher {
	interval := opts.Interval
	if interval == 0 {
		interval = ratelimit.DefaultInterval
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	max := opts.MaxSignatures
	if max <= 0 {
		max = DefaultMaxSignatures
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchFetcher{
		rpc:         rpc,
		interval:    interval,
		concurrency: concurrency,
		max:         max,
		logger:      logger.Named("batch"),
	}
}

// Fetch retrieves signatures[:MaxSignatures]. The limiter is local to the
// call. The only error is ctx's; the partial result is still returned.
func (b *BatchFetcher) Fetch(ctx context.Context, signatures []string) (*BatchResult, error) {
	result := &BatchResult{}
	if len(signatures) > b.max {
		result.Truncated = len(signatures) - b.max
		signatures = signatures[:b.max]
	}
	result.Transactions = make([]*solana.Transaction, len(signatures))

	limiter := ratelimit.NewInterval(b.interval)
	limiter.OnWait(func(d time.Duration) {
		observability.RecordRateLimitWait(d.Seconds())
	})

	var missing, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for i, sig := range signatures {
		if ctx.Err() != nil {
			failed.Add(int64(len(signatures) - i))
			break
		}
		i, sig := i, sig // per-iteration copies (go directive predates Go 1.22 loopvar semantics)
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				failed.Add(1)
				return nil
			}

			tx, err := b.rpc.GetTransaction(ctx, sig)
			if err != nil {
				failed.Add(1)
				b.logger.Debug("transaction fetch failed",
					zap.String("signature", sig),
					zap.Error(err))
				return nil
			}
			if tx == nil {
				missing.Add(1)
				return nil
			}
			if tx.Signature == "" {
				tx.Signature = sig
			}
			result.Transactions[i] = tx
			return nil
		})
	}
	_ = g.Wait()

	result.Missing = int(missing.Load())
	result.Failed = int(failed.Load())
	observability.RecordTransactions(len(signatures)-result.Missing-result.Failed, result.Missing, result.Failed)

	return result, ctx.Err()
}
