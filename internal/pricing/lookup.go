package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-position-tracker/internal/observability"
)

// Origin tells where a rate came from.
type Origin string

const (
	OriginLive    Origin = "live"
	OriginCached  Origin = "cached"
	OriginDefault Origin = "default"
)

// DefaultSOLUSD is the last-resort rate when neither source nor cache answer.
var DefaultSOLUSD = decimal.NewFromInt(150)

// Quote is a resolved SOL/USD rate.
type Quote struct {
	Rate   decimal.Decimal
	Origin Origin
}

// LookupOptions configures a Lookup.
type LookupOptions struct {
	Source      Source // nil skips the live lookup
	Cache       Cache  // nil disables caching
	CacheTTL    time.Duration
	DefaultRate decimal.Decimal // zero uses DefaultSOLUSD
	Logger      *zap.Logger
}

// Lookup resolves the rate live, then from cache, then the default.
// It never fails: pricing is an input to valuation, not a precondition.
type Lookup struct {
	source      Source
	cache       Cache
	ttl         time.Duration
	defaultRate decimal.Decimal
	logger      *zap.Logger
}

// NewLookup creates a Lookup.
func NewLookup(opts LookupOptions) *Lookup {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rate := opts.DefaultRate
	if !rate.IsPositive() {
		rate = DefaultSOLUSD
	}
	return &Lookup{
		source:      opts.Source,
		cache:       opts.Cache,
		ttl:         opts.CacheTTL,
		defaultRate: rate,
		logger:      logger.Named("pricing"),
	}
}

// SOLUSD returns the best available rate.
func (l *Lookup) SOLUSD(ctx context.Context) Quote {
	q := l.resolve(ctx)
	rate, _ := q.Rate.Float64()
	observability.RecordPriceLookup(string(q.Origin), rate)
	return q
}

func (l *Lookup) resolve(ctx context.Context) Quote {
	if l.source != nil {
		rate, err := l.source.SOLUSD(ctx)
		if err == nil {
			if l.cache != nil {
				if err := l.cache.Set(ctx, rate, l.ttl); err != nil {
					l.logger.Warn("failed to cache rate", zap.Error(err))
				}
			}
			return Quote{Rate: rate, Origin: OriginLive}
		}
		l.logger.Warn("live price lookup failed", zap.Error(err))
	}

	if l.cache != nil {
		rate, ok, err := l.cache.Get(ctx)
		if err != nil {
			l.logger.Warn("cached price lookup failed", zap.Error(err))
		}
		if ok && rate.IsPositive() {
			return Quote{Rate: rate, Origin: OriginCached}
		}
	}

	l.logger.Info("using default SOL/USD rate", zap.String("rate", l.defaultRate.String()))
	return Quote{Rate: l.defaultRate, Origin: OriginDefault}
}
