package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct{}

func (failingSource) SOLUSD(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("upstream down")
}

func TestHTTPSource_SOLUSD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "solana", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Write([]byte(`{"solana":{"usd":142.37}}`))
	}))
	defer srv.Close()

	rate, err := NewHTTPSource(srv.URL, time.Second).SOLUSD(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("142.37")), "rate %s", rate)
}

func TestHTTPSource_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`},
		{name: "missing coin", status: http.StatusOK, body: `{}`},
		{name: "malformed", status: http.StatusOK, body: `{"solana":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPSource(srv.URL, time.Second).SOLUSD(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestLookup_LiveRateIsCached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"solana":{"usd":200.5}}`))
	}))
	defer srv.Close()

	cache := NewMemoryCache()
	l := NewLookup(LookupOptions{Source: NewHTTPSource(srv.URL, time.Second), Cache: cache})

	q := l.SOLUSD(context.Background())
	assert.Equal(t, OriginLive, q.Origin)
	assert.True(t, q.Rate.Equal(decimal.RequireFromString("200.5")))

	cached, ok, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cached.Equal(q.Rate))
}

func TestLookup_FallsBackToCacheThenDefault(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	l := NewLookup(LookupOptions{Source: failingSource{}, Cache: cache, DefaultRate: decimal.NewFromInt(99)})

	q := l.SOLUSD(ctx)
	assert.Equal(t, OriginDefault, q.Origin)
	assert.True(t, q.Rate.Equal(decimal.NewFromInt(99)))

	require.NoError(t, cache.Set(ctx, decimal.NewFromInt(120), 0))
	q = l.SOLUSD(ctx)
	assert.Equal(t, OriginCached, q.Origin)
	assert.True(t, q.Rate.Equal(decimal.NewFromInt(120)))
}

func TestLookup_NoSourceUsesPackageDefault(t *testing.T) {
	q := NewLookup(LookupOptions{}).SOLUSD(context.Background())
	assert.Equal(t, OriginDefault, q.Origin)
	assert.True(t, q.Rate.Equal(DefaultSOLUSD))
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, decimal.NewFromInt(10), time.Minute))
	_, ok, _ = cache.Get(ctx)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = cache.Get(ctx)
	assert.False(t, ok)
}
