package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OverrideSourceManual marks overrides entered by a user.
const OverrideSourceManual = "manual"

// Override is a user-supplied realized P&L for one position.
// Corresponds to position_overrides table in PostgreSQL.
// (WalletAddress, PositionID) is the key; overrides never touch events.
type Override struct {
	WalletAddress string
	PositionID    string
	Protocol      Protocol
	ProfitUSD     decimal.Decimal
	PnLPercent    *decimal.Decimal // nullable
	Source        string
	Note          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
