// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"errors"
	"sync"

	"solana-position-tracker/internal/solana"
)

// ErrUnavailable is the default injected fetch failure.
var ErrUnavailable = errors.New("stub: upstream unavailable")

// RPCClient implements solana.RPCClient for testing.
// Unknown signatures resolve to nil, nil like a node serving "null".
type RPCClient struct {
	mu           sync.Mutex
	transactions map[string]*solana.Transaction
	signatures   map[string][]solana.SignatureInfo
	failures     map[string]error
	listErr      error

	txCalls   []string
	pageCalls []solana.SignaturesOpts
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		transactions: make(map[string]*solana.Transaction),
		signatures:   make(map[string][]solana.SignatureInfo),
		failures:     make(map[string]error),
	}
}

// GetTransaction returns the stored transaction, the injected failure, or nil.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.txCalls = append(c.txCalls, signature)
	if err, ok := c.failures[signature]; ok {
		return nil, err
	}
	return c.transactions[signature], nil
}

// GetSignaturesForAddress pages through the stored history newest first,
// honouring Before, Until and Limit the way the node does.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var o solana.SignaturesOpts
	if opts != nil {
		o = *opts
	}
	c.pageCalls = append(c.pageCalls, o)

	if c.listErr != nil {
		return nil, c.listErr
	}

	sigs := c.signatures[address]
	start := 0
	if o.Before != "" {
		start = len(sigs)
		for i, s := range sigs {
			if s.Signature == o.Before {
				start = i + 1
				break
			}
		}
	}

	limit := o.Limit
	if limit <= 0 || limit > solana.MaxSignaturesPageSize {
		limit = solana.MaxSignaturesPageSize
	}

	out := make([]solana.SignatureInfo, 0, limit)
	for i := start; i < len(sigs) && len(out) < limit; i++ {
		if o.Until != "" && sigs[i].Signature == o.Until {
			break
		}
		out = append(out, sigs[i])
	}
	return out, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions[tx.Signature] = tx
}

// AddSignatures sets the newest-first history of an address.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signatures[address] = sigs
}

// FailTransaction makes GetTransaction return err for signature.
// A nil err injects ErrUnavailable.
func (c *RPCClient) FailTransaction(signature string, err error) {
	if err == nil {
		err = ErrUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[signature] = err
}

// FailSignatureListing makes every GetSignaturesForAddress call return err.
func (c *RPCClient) FailSignatureListing(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = err
}

// TransactionCalls returns the signatures requested through GetTransaction, in call order.
func (c *RPCClient) TransactionCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.txCalls...)
}

// PageCalls returns the options of every GetSignaturesForAddress call.
func (c *RPCClient) PageCalls() []solana.SignaturesOpts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]solana.SignaturesOpts(nil), c.pageCalls...)
}

var _ solana.RPCClient = (*RPCClient)(nil)
