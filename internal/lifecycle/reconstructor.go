package lifecycle

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-position-tracker/internal/domain"
)

// Reconstruct groups a wallet's events by position identifier and derives
// each lifecycle's counts and P&L. Events may arrive in any order. Failed
// transactions, unknown kinds and events without a position identifier are
// counted but excluded from P&L.
func Reconstruct(wallet string, events []*domain.Event) *Report {
	r := &Report{
		Wallet:             wallet,
		GeneratedAt:        time.Now().UTC(),
		UnmatchedOverrides: []string{},
	}

	partitions := make(map[string][]*domain.Event)
	for _, e := range events {
		switch {
		case e == nil:
			continue
		case !e.Succeeded:
			r.Failed++
		case e.Kind == domain.KindUnknown || !e.Kind.IsValid():
			r.Unknown++
		case !e.HasPosition():
			r.Unattributed++
		default:
			partitions[*e.PositionID] = append(partitions[*e.PositionID], e)
		}
	}

	r.Lifecycles = make([]*Lifecycle, 0, len(partitions))
	for id, evs := range partitions {
		r.Lifecycles = append(r.Lifecycles, build(id, evs))
	}
	sort.Slice(r.Lifecycles, func(i, j int) bool {
		a, b := r.Lifecycles[i], r.Lifecycles[j]
		if a.FirstSeen != b.FirstSeen {
			return a.FirstSeen < b.FirstSeen
		}
		return a.PositionID < b.PositionID
	})

	r.summarize()
	return r
}

func build(positionID string, events []*domain.Event) *Lifecycle {
	sorted := append([]*domain.Event(nil), events...)
	sortEvents(sorted)

	l := &Lifecycle{
		PositionID: positionID,
		Protocol:   sorted[0].Protocol,
		FirstSeen:  sorted[0].BlockTime,
		LastSeen:   sorted[len(sorted)-1].BlockTime,
		Events:     sorted,
		Invested:   decimal.Zero,
		Withdrawn:  decimal.Zero,
		FeesEarned: decimal.Zero,
	}

	var latestOpen *domain.Event
	for _, e := range sorted {
		if l.PoolID == "" && e.PoolID != nil {
			l.PoolID = *e.PoolID
		}
		switch e.Kind {
		case domain.KindPositionOpen:
			l.Opens++
			l.Invested = l.Invested.Add(e.TotalUSDValue)
			latestOpen = e
		case domain.KindPositionClose:
			l.Closes++
			l.Withdrawn = l.Withdrawn.Add(e.TotalUSDValue)
		case domain.KindFeeClaim:
			l.FeeClaims++
			l.FeesEarned = l.FeesEarned.Add(e.TotalUSDValue)
		}
	}

	if l.Opens > l.Closes {
		l.ActiveCount = l.Opens - l.Closes
		l.CurrentValue = latestOpen.TotalUSDValue
	}
	l.RealizedPnL = l.Withdrawn.Add(l.FeesEarned).Sub(l.Invested)
	l.ReportedPnL = l.RealizedPnL
	return l
}

// sortEvents orders by block time, then slot, then signature.
func sortEvents(events []*domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.BlockTime != b.BlockTime {
			return a.BlockTime < b.BlockTime
		}
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		return a.Signature < b.Signature
	})
}
