package classifier

import (
	"github.com/shopspring/decimal"

	"solana-position-tracker/internal/domain"
)

// value sums |amount| x price over flows. Mints without a quote, and native
// quotes when solUSD is not positive, are returned as unpriced.
func (c *Classifier) value(flows []domain.TokenDelta, solUSD decimal.Decimal) (decimal.Decimal, []string) {
	total := decimal.Zero
	var unpriced []string
	for _, f := range flows {
		price, ok := c.price(f.Mint, solUSD)
		if !ok {
			unpriced = append(unpriced, f.Mint)
			continue
		}
		total = total.Add(f.Amount.Abs().Mul(price))
	}
	return total, unpriced
}

func (c *Classifier) price(mint string, solUSD decimal.Decimal) (decimal.Decimal, bool) {
	q, ok := c.quotes[mint]
	if !ok {
		return decimal.Zero, false
	}
	if q.Stable {
		return decimal.NewFromInt(1), true
	}
	if !solUSD.IsPositive() {
		return decimal.Zero, false
	}
	return solUSD, true
}

// pairLegs picks TokenY as the quote leg (stable before native) and TokenX
// as the first remaining flow by mint. Without a quote, X and Y are the
// first two flows.
func (c *Classifier) pairLegs(flows []domain.TokenDelta) (x, y domain.TokenDelta) {
	quoteIdx := -1
	for i, f := range flows {
		q, ok := c.quotes[f.Mint]
		if !ok {
			continue
		}
		if quoteIdx < 0 || (q.Stable && !c.quotes[flows[quoteIdx].Mint].Stable) {
			quoteIdx = i
		}
	}

	if quoteIdx < 0 {
		if len(flows) > 0 {
			x = flows[0]
		}
		if len(flows) > 1 {
			y = flows[1]
		}
		return x, y
	}

	y = flows[quoteIdx]
	for i, f := range flows {
		if i != quoteIdx {
			return f, y
		}
	}
	return x, y
}
