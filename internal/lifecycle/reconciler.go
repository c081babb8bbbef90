package lifecycle

import (
	"sort"

	"solana-position-tracker/internal/domain"
)

// Reconcile returns a copy of r in which each closed lifecycle with an
// override reports the override's profit instead of its computed realized
// P&L. The difference accumulates in Totals.OverrideCorrection. r and its
// events are not modified, and the result depends only on r and the set of
// overrides, so reconciling again or in another order yields the same report.
func Reconcile(r *Report, overrides []*domain.Override) *Report {
	out := *r
	out.Lifecycles = make([]*Lifecycle, len(r.Lifecycles))
	for i, l := range r.Lifecycles {
		c := l.clone()
		c.Override = nil
		c.ReportedPnL = c.RealizedPnL
		out.Lifecycles[i] = c
	}
	out.UnmatchedOverrides = []string{}

	for _, o := range latestByPosition(r.Wallet, overrides) {
		l := out.Lifecycle(o.PositionID)
		if l == nil || !l.Closed() {
			out.UnmatchedOverrides = append(out.UnmatchedOverrides, o.PositionID)
			continue
		}
		applied := *o
		l.Override = &applied
		l.ReportedPnL = o.ProfitUSD
	}

	out.summarize()
	return &out
}

// latestByPosition keeps one override per position of wallet, preferring the
// most recently updated, and returns them ordered by position id.
func latestByPosition(wallet string, overrides []*domain.Override) []*domain.Override {
	byID := make(map[string]*domain.Override, len(overrides))
	for _, o := range overrides {
		if o == nil || o.PositionID == "" {
			continue
		}
		if wallet != "" && o.WalletAddress != "" && o.WalletAddress != wallet {
			continue
		}
		cur, ok := byID[o.PositionID]
		if !ok || newer(o, cur) {
			byID[o.PositionID] = o
		}
	}

	out := make([]*domain.Override, 0, len(byID))
	for _, o := range byID {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PositionID < out[j].PositionID })
	return out
}

func newer(a, b *domain.Override) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ProfitUSD.GreaterThan(b.ProfitUSD)
}
