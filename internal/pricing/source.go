// Package pricing resolves the SOL/USD rate used to value native flows.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// DefaultEndpoint is the public CoinGecko API base.
const DefaultEndpoint = "https://api.coingecko.com/api/v3"

// ErrNoPrice is returned when a source answers without a usable rate.
var ErrNoPrice = errors.New("no price in response")

// Source fetches a live SOL/USD rate.
type Source interface {
	SOLUSD(ctx context.Context) (decimal.Decimal, error)
}

// HTTPSource reads the rate from a CoinGecko-style simple/price endpoint.
type HTTPSource struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSource creates an HTTPSource. An empty endpoint uses DefaultEndpoint.
func NewHTTPSource(endpoint string, timeout time.Duration) *HTTPSource {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type simplePriceResponse struct {
	Solana struct {
		USD decimal.Decimal `json:"usd"`
	} `json:"solana"`
}

// SOLUSD fetches the current rate.
func (s *HTTPSource) SOLUSD(ctx context.Context) (decimal.Decimal, error) {
	url := s.endpoint + "/simple/price?ids=solana&vs_currencies=usd"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price api returned status %d", resp.StatusCode)
	}

	var out simplePriceResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return decimal.Zero, fmt.Errorf("decode price response: %w", err)
	}
	if !out.Solana.USD.IsPositive() {
		return decimal.Zero, ErrNoPrice
	}
	return out.Solana.USD, nil
}
