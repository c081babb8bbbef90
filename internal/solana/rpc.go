package solana

import "context"

// RPCClient defines the Solana JSON-RPC read surface used by the tracker.
type RPCClient interface {
	// GetTransaction retrieves a jsonParsed transaction by signature.
	// Returns nil, nil when the node does not serve the transaction.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)
}

// Transaction represents a decoded Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds), 0 when unknown
	Version   string
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// Succeeded reports whether the transaction executed without an on-chain error.
// A transaction without meta is treated as failed.
func (t *Transaction) Succeeded() bool {
	return t.Meta != nil && t.Meta.Err == nil
}

// AccountIndex returns the index of address in the account keys, or -1.
func (t *Transaction) AccountIndex(address string) int {
	if t.Message == nil {
		return -1
	}
	for i, k := range t.Message.AccountKeys {
		if k.Address == address {
			return i
		}
	}
	return -1
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	InnerInstructions []InnerInstructions
	LogMessages       []string
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []AccountKey
	Instructions []Instruction
}
