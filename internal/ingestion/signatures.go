package ingestion

import (
	"context"
	"fmt"

	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/solana"
)

// SignatureFetcher walks an address's history newest first in pages bounded
// by the node's page size.
type SignatureFetcher struct {
	rpc      solana.RPCClient
	pageSize int
}

// NewSignatureFetcher creates a SignatureFetcher. Page sizes outside
// (0, MaxSignaturesPageSize] use the maximum.
func NewSignatureFetcher(rpc solana.RPCClient, pageSize int) *SignatureFetcher {
	if pageSize <= 0 || pageSize > solana.MaxSignaturesPageSize {
		pageSize = solana.MaxSignaturesPageSize
	}
	return &SignatureFetcher{rpc: rpc, pageSize: pageSize}
}

// Fetch returns up to limit records older than before (newest first when
// before is empty), stopping early when the history ends. An empty history
// yields an empty slice. exhausted reports that the node has nothing older.
func (f *SignatureFetcher) Fetch(ctx context.Context, address string, limit int, before, until string) (records []domain.SignatureRecord, exhausted bool, err error) {
	pager := f.Pager(address, before, until)
	for len(records) < limit && !pager.Done() {
		page, err := pager.Next(ctx, limit-len(records))
		if err != nil {
			return records, false, err
		}
		records = append(records, page...)
	}
	return records, pager.Done(), nil
}

// Pager starts a resumable walk below before and above until. Empty values
// mean the newest signature and the start of history.
func (f *SignatureFetcher) Pager(address, before, until string) *SignaturePager {
	return &SignaturePager{fetcher: f, address: address, cursor: before, until: until}
}

// SignaturePager yields one page per Next call. It is not safe for
// concurrent use.
type SignaturePager struct {
	fetcher *SignatureFetcher
	address string
	cursor  string
	until   string
	done    bool
}

// Next fetches at most max records (capped by the page size) after the cursor.
// A short page marks the pager done.
func (p *SignaturePager) Next(ctx context.Context, max int) ([]domain.SignatureRecord, error) {
	if p.done {
		return nil, nil
	}
	if max <= 0 || max > p.fetcher.pageSize {
		max = p.fetcher.pageSize
	}

	sigs, err := p.fetcher.rpc.GetSignaturesForAddress(ctx, p.address, &solana.SignaturesOpts{
		Before: p.cursor,
		Until:  p.until,
		Limit:  max,
	})
	if err != nil {
		return nil, fmt.Errorf("get signatures for %s: %w", p.address, err)
	}

	if len(sigs) < max {
		p.done = true
	}
	if len(sigs) == 0 {
		return nil, nil
	}

	records := make([]domain.SignatureRecord, len(sigs))
	for i, s := range sigs {
		records[i] = domain.SignatureRecord{
			Signature: s.Signature,
			Slot:      s.Slot,
			BlockTime: s.BlockTime,
			Errored:   s.Err != nil,
		}
	}
	p.cursor = sigs[len(sigs)-1].Signature
	return records, nil
}

// Cursor returns the signature to resume after.
func (p *SignaturePager) Cursor() string {
	return p.cursor
}

// Done reports whether the history below the cursor is exhausted.
func (p *SignaturePager) Done() bool {
	return p.done
}
