package classifier

import (
	"sort"

	"github.com/shopspring/decimal"

	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/solana"
)

// balancePair holds both snapshots of one token account, keyed by account index.
type balancePair struct {
	pre, post *solana.TokenBalance
}

func (b balancePair) owner() string {
	if b.post != nil && b.post.Owner != "" {
		return b.post.Owner
	}
	if b.pre != nil {
		return b.pre.Owner
	}
	return ""
}

func (b balancePair) mint() (string, int) {
	if b.post != nil {
		return b.post.Mint, b.post.Decimals
	}
	return b.pre.Mint, b.pre.Decimals
}

// raw returns post - pre in raw units.
func (b balancePair) raw() decimal.Decimal {
	return rawAmount(b.post).Sub(rawAmount(b.pre))
}

func rawAmount(tb *solana.TokenBalance) decimal.Decimal {
	if tb == nil || tb.Amount == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(tb.Amount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// tokenAccounts pairs pre and post token balances on the account index.
func tokenAccounts(tx *solana.Transaction) map[int]balancePair {
	pairs := make(map[int]balancePair)
	if tx.Meta == nil {
		return pairs
	}
	for i := range tx.Meta.PreTokenBalances {
		tb := &tx.Meta.PreTokenBalances[i]
		p := pairs[tb.AccountIndex]
		p.pre = tb
		pairs[tb.AccountIndex] = p
	}
	for i := range tx.Meta.PostTokenBalances {
		tb := &tx.Meta.PostTokenBalances[i]
		p := pairs[tb.AccountIndex]
		p.post = tb
		pairs[tb.AccountIndex] = p
	}
	return pairs
}

// walletDeltas returns the wallet's per-mint balance changes sorted by mint.
// Token accounts owned by the wallet are merged per mint; the wallet's own
// lamport change (fee excluded) counts as wrapped SOL. Merged amounts below
// epsilon are dropped.
func walletDeltas(tx *solana.Transaction, wallet string, epsilon decimal.Decimal) []domain.TokenDelta {
	merged := make(map[string]*domain.TokenDelta)
	add := func(mint string, decimals int, amount decimal.Decimal) {
		d, ok := merged[mint]
		if !ok {
			d = &domain.TokenDelta{Mint: mint, Decimals: decimals, Amount: decimal.Zero}
			merged[mint] = d
		}
		d.Amount = d.Amount.Add(amount)
	}

	for _, pair := range tokenAccounts(tx) {
		if pair.owner() != wallet {
			continue
		}
		mint, decimals := pair.mint()
		add(mint, decimals, pair.raw().Shift(int32(-decimals)))
	}

	if lamports, ok := nativeDelta(tx, wallet); ok && lamports != 0 {
		add(WSOLMint, NativeDecimals, decimal.NewFromInt(lamports).Shift(-NativeDecimals))
	}

	out := make([]domain.TokenDelta, 0, len(merged))
	for _, d := range merged {
		if d.Amount.Abs().LessThan(epsilon) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mint < out[j].Mint })
	return out
}

// nativeDelta returns the wallet's lamport change with the fee added back
// when the wallet paid it (fee payer is account 0).
func nativeDelta(tx *solana.Transaction, wallet string) (int64, bool) {
	if tx.Meta == nil {
		return 0, false
	}
	idx := tx.AccountIndex(wallet)
	if idx < 0 || idx >= len(tx.Meta.PreBalances) || idx >= len(tx.Meta.PostBalances) {
		return 0, false
	}
	delta := int64(tx.Meta.PostBalances[idx]) - int64(tx.Meta.PreBalances[idx])
	if idx == 0 {
		delta += int64(tx.Meta.Fee)
	}
	return delta, true
}

// heldReceipt finds the single receipt token the wallet holds but did not
// move in tx. Fee claims reference their position this way.
func heldReceipt(tx *solana.Transaction, wallet string, p *ProtocolConfig, quotes map[string]Quote) (string, bool) {
	candidates := make(map[string]struct{})
	for _, pair := range tokenAccounts(tx) {
		if pair.post == nil || pair.owner() != wallet {
			continue
		}
		mint, decimals := pair.mint()
		if decimals != p.ReceiptDecimals || pair.post.Amount != "1" || !pair.raw().IsZero() {
			continue
		}
		if _, isQuote := quotes[mint]; isQuote {
			continue
		}
		candidates[mint] = struct{}{}
	}
	if len(candidates) != 1 {
		return "", false
	}
	for mint := range candidates {
		return mint, true
	}
	return "", false
}

// poolFromVaults picks the owner of the counterparty token accounts that
// moved in tx, restricted to accounts passed to the protocol. Ties resolve to
// the lexicographically smallest address.
func poolFromVaults(tx *solana.Transaction, wallet string, p *ProtocolConfig) (string, bool) {
	accounts := protocolAccounts(tx, p)
	counts := make(map[string]int)
	for _, pair := range tokenAccounts(tx) {
		owner := pair.owner()
		if owner == "" || owner == wallet || pair.raw().IsZero() {
			continue
		}
		if _, ok := accounts[owner]; !ok {
			continue
		}
		counts[owner]++
	}

	best, bestCount := "", 0
	for owner, n := range counts {
		if n > bestCount || (n == bestCount && owner < best) {
			best, bestCount = owner, n
		}
	}
	return best, bestCount > 0
}
