// Package lifecycle rebuilds position lifecycles and P&L from stored events
// and reconciles them with manual overrides.
package lifecycle

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-position-tracker/internal/domain"
)

// Lifecycle is the open, fee and close history of one position identifier.
type Lifecycle struct {
	PositionID string          `json:"positionId"`
	Protocol   domain.Protocol `json:"protocol"`
	PoolID     string          `json:"poolId,omitempty"`

	Opens       int `json:"opens"`
	Closes      int `json:"closes"`
	FeeClaims   int `json:"feeClaims"`
	ActiveCount int `json:"activeCount"` // max(Opens-Closes, 0)

	Invested    decimal.Decimal `json:"invested"`
	Withdrawn   decimal.Decimal `json:"withdrawn"`
	FeesEarned  decimal.Decimal `json:"feesEarned"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"` // Withdrawn + FeesEarned - Invested

	// CurrentValue is the value of the most recent open while the position
	// is active, zero otherwise.
	CurrentValue decimal.Decimal `json:"currentValue"`

	// ReportedPnL is RealizedPnL, or the override's profit once reconciled.
	ReportedPnL decimal.Decimal  `json:"reportedPnl"`
	Override    *domain.Override `json:"override,omitempty"`

	FirstSeen int64           `json:"firstSeen"`
	LastSeen  int64           `json:"lastSeen"`
	Events    []*domain.Event `json:"-"`
}

// Active reports whether more occurrences were opened than closed.
func (l *Lifecycle) Active() bool {
	return l.ActiveCount > 0
}

// Closed reports whether every opened occurrence was closed.
func (l *Lifecycle) Closed() bool {
	return l.ActiveCount == 0 && l.Closes > 0
}

// OverrideCorrection is the amount an applied override adds to P&L.
func (l *Lifecycle) OverrideCorrection() decimal.Decimal {
	return l.ReportedPnL.Sub(l.RealizedPnL)
}

func (l *Lifecycle) clone() *Lifecycle {
	c := *l
	if l.Override != nil {
		o := *l.Override
		c.Override = &o
	}
	c.Events = append([]*domain.Event(nil), l.Events...)
	return &c
}

// Totals aggregates P&L over a set of lifecycles.
type Totals struct {
	Positions          int             `json:"positions"`
	ActivePositions    int             `json:"activePositions"`
	ClosedPositions    int             `json:"closedPositions"`
	Invested           decimal.Decimal `json:"invested"`
	Withdrawn          decimal.Decimal `json:"withdrawn"`
	FeesEarned         decimal.Decimal `json:"feesEarned"`
	RealizedPnL        decimal.Decimal `json:"realizedPnl"`
	UnrealizedValue    decimal.Decimal `json:"unrealizedValue"`
	OverrideCorrection decimal.Decimal `json:"overrideCorrection"`
	TotalPnL           decimal.Decimal `json:"totalPnl"` // UnrealizedValue + RealizedPnL + OverrideCorrection
}

func (t *Totals) add(l *Lifecycle) {
	t.Positions++
	if l.Active() {
		t.ActivePositions++
		t.UnrealizedValue = t.UnrealizedValue.Add(l.CurrentValue)
	}
	if l.Closed() {
		t.ClosedPositions++
	}
	t.Invested = t.Invested.Add(l.Invested)
	t.Withdrawn = t.Withdrawn.Add(l.Withdrawn)
	t.FeesEarned = t.FeesEarned.Add(l.FeesEarned)
	t.RealizedPnL = t.RealizedPnL.Add(l.RealizedPnL)
	t.OverrideCorrection = t.OverrideCorrection.Add(l.OverrideCorrection())
	t.TotalPnL = t.UnrealizedValue.Add(t.RealizedPnL).Add(t.OverrideCorrection)
}

// ProtocolTotals is Totals restricted to one protocol.
type ProtocolTotals struct {
	Protocol domain.Protocol `json:"protocol"`
	Totals
}

// Report is the reconstructed view of one wallet.
type Report struct {
	Wallet      string    `json:"wallet"`
	GeneratedAt time.Time `json:"generatedAt"`

	// Lifecycles holds every attributed position ordered by FirstSeen then
	// PositionID. ActivePositions and ClosedLifecycles are views over it.
	Lifecycles       []*Lifecycle `json:"lifecycles"`
	ActivePositions  []*Lifecycle `json:"activePositions"`
	ClosedLifecycles []*Lifecycle `json:"closedLifecycles"`

	Totals     Totals           `json:"totals"`
	ByProtocol []ProtocolTotals `json:"byProtocol"`

	// Events left out of P&L.
	Failed       int `json:"failed"`       // failed on-chain
	Unknown      int `json:"unknown"`      // classified as unknown
	Unattributed int `json:"unattributed"` // no position identifier

	// UnmatchedOverrides are position ids with an override but no closed lifecycle.
	UnmatchedOverrides []string `json:"unmatchedOverrides"`
}

// Lifecycle returns the lifecycle of positionID, or nil.
func (r *Report) Lifecycle(positionID string) *Lifecycle {
	for _, l := range r.Lifecycles {
		if l.PositionID == positionID {
			return l
		}
	}
	return nil
}

// summarize rebuilds the views and totals from Lifecycles.
func (r *Report) summarize() {
	r.ActivePositions = []*Lifecycle{}
	r.ClosedLifecycles = []*Lifecycle{}
	r.Totals = Totals{}
	r.ByProtocol = []ProtocolTotals{}

	byProtocol := make(map[domain.Protocol]int)
	for _, l := range r.Lifecycles {
		if l.Active() {
			r.ActivePositions = append(r.ActivePositions, l)
		}
		if l.Closed() {
			r.ClosedLifecycles = append(r.ClosedLifecycles, l)
		}
		r.Totals.add(l)

		i, ok := byProtocol[l.Protocol]
		if !ok {
			i = len(r.ByProtocol)
			byProtocol[l.Protocol] = i
			r.ByProtocol = append(r.ByProtocol, ProtocolTotals{Protocol: l.Protocol})
		}
		r.ByProtocol[i].add(l)
	}
	sort.Slice(r.ByProtocol, func(i, j int) bool {
		return r.ByProtocol[i].Protocol < r.ByProtocol[j].Protocol
	})
}
