package solana

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// MaxSignaturesPageSize is the largest page getSignaturesForAddress serves.
const MaxSignaturesPageSize = 1000

// AccountKey is one entry of a message's account list.
type AccountKey struct {
	Address  string
	Signer   bool
	Writable bool
}

// Instruction is a top-level or inner instruction.
// Program is set only when the node parsed the instruction (e.g. "spl-token").
type Instruction struct {
	ProgramID string
	Program   string
	Accounts  []string
	Data      string
}

// InnerInstructions groups the CPI instructions emitted by one top-level instruction.
type InnerInstructions struct {
	Index        int
	Instructions []Instruction
}

// TokenBalance is a token account balance snapshot from transaction meta.
// Amount is the raw integer amount as a decimal string.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	ProgramID    string
	Amount       string
	Decimals     int
}
