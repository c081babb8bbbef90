// Package classifier maps decoded transactions to position events.
//
// Classification is a pure function of the transaction, the wallet, the
// protocol tables and the SOL/USD rate. When the evidence is ambiguous the
// classifier emits KindUnknown rather than guessing: a wrong open or close
// corrupts lifecycle P&L, a missing one does not.
package classifier

import (
	"strings"

	"github.com/shopspring/decimal"

	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/solana"
)

// Unknown reasons recorded in UnknownPayload.
const (
	ReasonFailed            = "transaction failed"
	ReasonMultipleReceipts  = "multiple receipt changes"
	ReasonMintWithInflow    = "receipt minted with pool inflow"
	ReasonBurnWithOutflow   = "receipt burned with pool outflow"
	ReasonMintNoOutflow     = "receipt minted without deposit"
	ReasonBurnNoInflow      = "receipt burned without withdrawal"
	ReasonDecreaseNoReceipt = "liquidity decrease without receipt change"
	ReasonOutflowNoReceipt  = "outflow without receipt change"
	ReasonMixedFlows        = "mixed flows without receipt change"
)

// Classifier classifies transactions against configured protocols.
type Classifier struct {
	protocols  []ProtocolConfig
	index      map[domain.Protocol]int
	epsilon    decimal.Decimal
	quotes     map[string]Quote
	strategies []Strategy
}

// New creates a Classifier. Zero Epsilon and nil Strategies take defaults.
func New(cfg Config) *Classifier {
	c := &Classifier{
		protocols:  append([]ProtocolConfig(nil), cfg.Protocols...),
		index:      make(map[domain.Protocol]int, len(cfg.Protocols)),
		epsilon:    cfg.Epsilon,
		quotes:     make(map[string]Quote, len(cfg.Quotes)),
		strategies: cfg.Strategies,
	}
	if c.epsilon.IsZero() {
		c.epsilon = DefaultEpsilon
	}
	if c.strategies == nil {
		c.strategies = DefaultStrategies()
	}
	for mint, q := range cfg.Quotes {
		c.quotes[mint] = q
	}
	for i, p := range c.protocols {
		if _, dup := c.index[p.Protocol]; !dup {
			c.index[p.Protocol] = i
		}
	}
	return c
}

// Protocols returns the configured protocols in evaluation order.
func (c *Classifier) Protocols() []domain.Protocol {
	out := make([]domain.Protocol, len(c.protocols))
	for i, p := range c.protocols {
		out[i] = p.Protocol
	}
	return out
}

// ClassifyAny returns the event of the first configured protocol that emits one.
func (c *Classifier) ClassifyAny(tx *solana.Transaction, wallet string, solUSD decimal.Decimal) *domain.Event {
	for _, p := range c.protocols {
		if e := c.Classify(tx, wallet, p.Protocol, solUSD); e != nil {
			return e
		}
	}
	return nil
}

// Classify maps tx to at most one event of protocol for wallet.
// Returns nil when tx does not touch the protocol or moves nothing above epsilon.
func (c *Classifier) Classify(tx *solana.Transaction, wallet string, protocol domain.Protocol, solUSD decimal.Decimal) *domain.Event {
	i, ok := c.index[protocol]
	if !ok || tx == nil {
		return nil
	}
	p := &c.protocols[i]

	programID, _, ok := firstMatch(c.strategies, tx, p)
	if !ok {
		return nil
	}

	deltas := c.annotate(walletDeltas(tx, wallet, c.epsilon))

	e := &domain.Event{
		Signature:     tx.Signature,
		WalletAddress: wallet,
		Protocol:      protocol,
		TotalUSDValue: decimal.Zero,
		Slot:          tx.Slot,
		BlockTime:     tx.BlockTime,
		Succeeded:     tx.Succeeded(),
	}

	// Failed transactions are kept for audit; lifecycles skip them.
	if !e.Succeeded {
		e.Kind = domain.KindUnknown
		e.Payload = &domain.UnknownPayload{
			Protocol:       protocol,
			Reason:         ReasonFailed,
			MatchedProgram: programID,
			Deltas:         deltas,
		}
		return e
	}

	if len(deltas) == 0 {
		return nil
	}

	receipts, flows := c.splitReceipts(deltas, p)
	kind, reason := decide(receipts, flows, logMessages(tx), p.DecreaseHints)
	e.Kind = kind

	positionID := ""
	if len(receipts) == 1 {
		positionID = receipts[0].Mint
	} else if len(receipts) == 0 {
		positionID, _ = heldReceipt(tx, wallet, p, c.quotes)
	}
	if positionID != "" {
		e.PositionID = &positionID
	}
	if p.VaultOwnerIsPool {
		if pool, ok := poolFromVaults(tx, wallet, p); ok {
			e.PoolID = &pool
		}
	}

	e.TokenX, e.TokenY = c.pairLegs(flows)

	positionAddress := derivePositionAddress(p, positionID)
	switch kind {
	case domain.KindPositionOpen:
		out := filterFlows(flows, isOutflow)
		value, unpriced := c.value(out, solUSD)
		e.TotalUSDValue = value
		e.Payload = &domain.OpenPayload{
			Protocol:        protocol,
			ReceiptMint:     positionID,
			PositionAddress: positionAddress,
			Deposited:       out,
			UnpricedMints:   unpriced,
		}
	case domain.KindPositionClose:
		in := filterFlows(flows, isInflow)
		value, unpriced := c.value(in, solUSD)
		e.TotalUSDValue = value
		e.Payload = &domain.ClosePayload{
			Protocol:        protocol,
			ReceiptMint:     positionID,
			PositionAddress: positionAddress,
			Withdrawn:       in,
			UnpricedMints:   unpriced,
		}
	case domain.KindFeeClaim:
		in := filterFlows(flows, isInflow)
		value, unpriced := c.value(in, solUSD)
		e.TotalUSDValue = value
		e.Payload = &domain.FeeClaimPayload{
			Protocol:        protocol,
			PositionAddress: positionAddress,
			Collected:       in,
			UnpricedMints:   unpriced,
		}
	default:
		value, _ := c.value(flows, solUSD)
		e.TotalUSDValue = value
		e.Payload = &domain.UnknownPayload{
			Protocol:       protocol,
			Reason:         reason,
			MatchedProgram: programID,
			Deltas:         deltas,
		}
	}

	return e
}

// decide applies the fixed decision order.
func decide(receipts, flows []domain.TokenDelta, logs, hints []string) (domain.EventKind, string) {
	inflow, outflow := directions(flows)

	switch {
	case len(receipts) > 1:
		return domain.KindUnknown, ReasonMultipleReceipts
	case len(receipts) == 1 && receipts[0].Amount.IsPositive():
		switch {
		case inflow:
			return domain.KindUnknown, ReasonMintWithInflow
		case !outflow:
			return domain.KindUnknown, ReasonMintNoOutflow
		}
		return domain.KindPositionOpen, ""
	case len(receipts) == 1:
		switch {
		case outflow:
			return domain.KindUnknown, ReasonBurnWithOutflow
		case !inflow:
			return domain.KindUnknown, ReasonBurnNoInflow
		}
		return domain.KindPositionClose, ""
	case inflow && !outflow:
		if containsAny(logs, hints) {
			return domain.KindUnknown, ReasonDecreaseNoReceipt
		}
		return domain.KindFeeClaim, ""
	case outflow && !inflow:
		return domain.KindUnknown, ReasonOutflowNoReceipt
	default:
		return domain.KindUnknown, ReasonMixedFlows
	}
}

// splitReceipts separates position receipt changes (|delta| == 1 at receipt
// decimals) from pool token flows.
func (c *Classifier) splitReceipts(deltas []domain.TokenDelta, p *ProtocolConfig) (receipts, flows []domain.TokenDelta) {
	one := decimal.NewFromInt(1)
	for _, d := range deltas {
		_, isQuote := c.quotes[d.Mint]
		if !isQuote && d.Decimals == p.ReceiptDecimals && d.Amount.Abs().Equal(one) {
			receipts = append(receipts, d)
			continue
		}
		flows = append(flows, d)
	}
	return receipts, flows
}

func (c *Classifier) annotate(deltas []domain.TokenDelta) []domain.TokenDelta {
	for i := range deltas {
		if q, ok := c.quotes[deltas[i].Mint]; ok {
			deltas[i].Symbol = q.Symbol
		}
	}
	return deltas
}

func directions(flows []domain.TokenDelta) (inflow, outflow bool) {
	for _, f := range flows {
		if f.Amount.IsPositive() {
			inflow = true
		} else if f.Amount.IsNegative() {
			outflow = true
		}
	}
	return inflow, outflow
}

func isInflow(d domain.TokenDelta) bool  { return d.Amount.IsPositive() }
func isOutflow(d domain.TokenDelta) bool { return d.Amount.IsNegative() }

func filterFlows(flows []domain.TokenDelta, keep func(domain.TokenDelta) bool) []domain.TokenDelta {
	var out []domain.TokenDelta
	for _, f := range flows {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

func containsAny(lines, fragments []string) bool {
	for _, line := range lines {
		for _, f := range fragments {
			if f != "" && strings.Contains(line, f) {
				return true
			}
		}
	}
	return false
}

func logMessages(tx *solana.Transaction) []string {
	if tx.Meta == nil {
		return nil
	}
	return tx.Meta.LogMessages
}

// derivePositionAddress returns the position PDA for a receipt mint, or "".
func derivePositionAddress(p *ProtocolConfig, receiptMint string) string {
	if p.PositionSeed == "" || receiptMint == "" || len(p.ProgramIDs) == 0 {
		return ""
	}
	mint, err := solana.DecodeAddress(receiptMint)
	if err != nil {
		return ""
	}
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(p.PositionSeed), mint}, p.ProgramIDs[0])
	if err != nil {
		return ""
	}
	return addr
}
