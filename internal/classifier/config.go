package classifier

import (
	"strings"

	"github.com/shopspring/decimal"

	"solana-position-tracker/internal/domain"
)

// Known program IDs.
const (
	// OrcaWhirlpoolsProgram is the Orca Whirlpools program ID.
	OrcaWhirlpoolsProgram = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	// RaydiumCLMMProgram is the Raydium concentrated liquidity program ID.
	RaydiumCLMMProgram = "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK"
	// MeteoraDLMMProgram is the Meteora DLMM program ID.
	MeteoraDLMMProgram = "LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9t4itho3Zx"
	// MeteoraDAMMV2Program is the Meteora DAMM v2 program ID.
	MeteoraDAMMV2Program = "cpamdpZCGKUy5JxQXB4dcpGPiikHawvSWAd6mEn1sGG"
)

// Well-known mints.
const (
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	WSOLMint = "So11111111111111111111111111111111111111112"
)

// NativeDecimals is the number of decimals of a lamport amount.
const NativeDecimals = 9

// DefaultEpsilon is the smallest per-mint delta treated as a real flow.
var DefaultEpsilon = decimal.New(1, -6)

// ProtocolConfig describes how to recognize one protocol's transactions.
type ProtocolConfig struct {
	Protocol domain.Protocol

	// ProgramIDs are matched exactly; ProgramPrefixes by string prefix.
	ProgramIDs      []string
	ProgramPrefixes []string

	// PositionSeed is the first PDA seed of the position account, derived
	// together with the receipt mint under ProgramIDs[0]. Empty disables
	// PositionAddress resolution.
	PositionSeed string

	// ReceiptDecimals is the decimals of the position receipt token.
	ReceiptDecimals int

	// VaultOwnerIsPool reports whether pool vault token accounts are owned by
	// the pool account itself, so the pool can be read from balance owners.
	VaultOwnerIsPool bool

	// DecreaseHints are log fragments marking a liquidity withdrawal. An
	// inflow-only transaction carrying one is not a fee claim.
	DecreaseHints []string
}

// Matches reports whether programID belongs to the protocol.
func (p *ProtocolConfig) Matches(programID string) bool {
	if programID == "" {
		return false
	}
	for _, id := range p.ProgramIDs {
		if id == programID {
			return true
		}
	}
	for _, prefix := range p.ProgramPrefixes {
		if strings.HasPrefix(programID, prefix) {
			return true
		}
	}
	return false
}

// Quote marks a mint as a valuation reference. Stable quotes are worth 1 USD;
// other quotes are priced with the native SOL/USD rate.
type Quote struct {
	Symbol string
	Stable bool
}

// Config holds the classifier tables.
type Config struct {
	Protocols  []ProtocolConfig
	Epsilon    decimal.Decimal
	Quotes     map[string]Quote
	Strategies []Strategy
}

// DefaultConfig returns the production protocol tables.
func DefaultConfig() Config {
	decreaseHints := []string{
		"Instruction: DecreaseLiquidity",
		"Instruction: DecreaseLiquidityV2",
		"Instruction: RemoveLiquidity",
		"Instruction: RemoveLiquidityByRange",
		"Instruction: RemoveAllLiquidity",
	}

	return Config{
		Protocols: []ProtocolConfig{
			{
				Protocol:         domain.ProtocolOrcaWhirlpools,
				ProgramIDs:       []string{OrcaWhirlpoolsProgram},
				PositionSeed:     "position",
				VaultOwnerIsPool: true,
				DecreaseHints:    decreaseHints,
			},
			{
				Protocol:         domain.ProtocolRaydiumCLMM,
				ProgramIDs:       []string{RaydiumCLMMProgram},
				PositionSeed:     "position",
				VaultOwnerIsPool: true,
				DecreaseHints:    decreaseHints,
			},
			{
				// DLMM positions are plain accounts without a receipt token.
				Protocol:         domain.ProtocolMeteoraDLMM,
				ProgramIDs:       []string{MeteoraDLMMProgram},
				VaultOwnerIsPool: true,
				DecreaseHints:    decreaseHints,
			},
			{
				Protocol:        domain.ProtocolMeteoraDAMMV2,
				ProgramIDs:      []string{MeteoraDAMMV2Program},
				ProgramPrefixes: []string{"cpamd"},
				PositionSeed:    "position",
				DecreaseHints:   decreaseHints,
			},
		},
		Epsilon: DefaultEpsilon,
		Quotes: map[string]Quote{
			USDCMint: {Symbol: "USDC", Stable: true},
			USDTMint: {Symbol: "USDT", Stable: true},
			WSOLMint: {Symbol: "SOL"},
		},
		Strategies: DefaultStrategies(),
	}
}
