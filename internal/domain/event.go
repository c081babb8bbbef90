package domain

import "github.com/shopspring/decimal"

// EventKind is the classified meaning of a transaction for a position.
type EventKind string

const (
	KindPositionOpen  EventKind = "position_open"
	KindFeeClaim      EventKind = "fee_claim"
	KindPositionClose EventKind = "position_close"
	KindUnknown       EventKind = "unknown"
)

// String returns the string representation.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is one of the known values.
func (k EventKind) IsValid() bool {
	switch k {
	case KindPositionOpen, KindFeeClaim, KindPositionClose, KindUnknown:
		return true
	}
	return false
}

// Protocol identifies a tracked liquidity protocol.
type Protocol string

const (
	ProtocolOrcaWhirlpools Protocol = "orca_whirlpools"
	ProtocolRaydiumCLMM    Protocol = "raydium_clmm"
	ProtocolMeteoraDLMM    Protocol = "meteora_dlmm"
	ProtocolMeteoraDAMMV2  Protocol = "meteora_damm_v2"
)

// String returns the string representation.
func (p Protocol) String() string {
	return string(p)
}

// TokenDelta is a signed balance change of one mint from the wallet's view.
// Negative amounts left the wallet.
type TokenDelta struct {
	Mint     string          `json:"mint"`
	Symbol   string          `json:"symbol,omitempty"`
	Decimals int             `json:"decimals"`
	Amount   decimal.Decimal `json:"amount"`
}

// IsZero reports whether the delta carries no mint.
func (d TokenDelta) IsZero() bool {
	return d.Mint == ""
}

// Event is a classified transaction for one wallet.
// Corresponds to position_events table in PostgreSQL.
// (WalletAddress, Signature) is the natural key; events are immutable.
type Event struct {
	Signature     string          // transaction signature
	WalletAddress string          // tracked wallet
	Protocol      Protocol        // matched protocol
	Kind          EventKind       // classified kind
	PositionID    *string         // receipt mint (nullable)
	PoolID        *string         // pool account (nullable)
	TokenX        TokenDelta      // first pool token delta
	TokenY        TokenDelta      // second pool token delta, usually the quote
	TotalUSDValue decimal.Decimal // USD value of the flows that define Kind
	Slot          int64           // Solana slot number
	BlockTime     int64           // Unix timestamp in seconds, 0 when unknown
	Succeeded     bool            // false when the transaction failed on-chain
	Payload       Payload         // protocol x kind specific details
}

// HasPosition reports whether the event resolved a position identifier.
func (e *Event) HasPosition() bool {
	return e.PositionID != nil && *e.PositionID != ""
}

// Clone returns a deep copy safe to hand across store boundaries.
func (e *Event) Clone() *Event {
	c := *e
	if e.PositionID != nil {
		v := *e.PositionID
		c.PositionID = &v
	}
	if e.PoolID != nil {
		v := *e.PoolID
		c.PoolID = &v
	}
	c.Payload = ClonePayload(e.Payload)
	return &c
}

// SignatureRecord is one entry of a wallet's signature history.
type SignatureRecord struct {
	Signature string
	Slot      int64
	BlockTime *int64 // nullable
	Errored   bool
}
