package lifecycle

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RenderMarkdown renders the report as Markdown.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Positions: %s\n\n", r.Wallet))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Totals
	t := r.Totals
	sb.WriteString("## Totals\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Positions | %d |\n", t.Positions))
	sb.WriteString(fmt.Sprintf("| Active | %d |\n", t.ActivePositions))
	sb.WriteString(fmt.Sprintf("| Closed | %d |\n", t.ClosedPositions))
	sb.WriteString(fmt.Sprintf("| Invested | %s |\n", usd(t.Invested.StringFixed(2))))
	sb.WriteString(fmt.Sprintf("| Withdrawn | %s |\n", usd(t.Withdrawn.StringFixed(2))))
	sb.WriteString(fmt.Sprintf("| Fees Earned | %s |\n", usd(t.FeesEarned.StringFixed(2))))
	sb.WriteString(fmt.Sprintf("| Realized P&L | %s |\n", usd(t.RealizedPnL.StringFixed(2))))
	sb.WriteString(fmt.Sprintf("| Unrealized Value | %s |\n", usd(t.UnrealizedValue.StringFixed(2))))
	sb.WriteString(fmt.Sprintf("| Override Correction | %s |\n", usd(t.OverrideCorrection.StringFixed(2))))
	sb.WriteString(fmt.Sprintf("| Total P&L | %s |\n", usd(t.TotalPnL.StringFixed(2))))
	sb.WriteString("\n")

	if len(r.ByProtocol) > 1 {
		sb.WriteString("### By Protocol\n\n")
		sb.WriteString("| Protocol | Positions | Active | Realized | Unrealized | Total |\n")
		sb.WriteString("|----------|-----------|--------|----------|------------|-------|\n")
		for _, p := range r.ByProtocol {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s | %s | %s |\n",
				p.Protocol, p.Positions, p.ActivePositions,
				usd(p.RealizedPnL.StringFixed(2)), usd(p.UnrealizedValue.StringFixed(2)), usd(p.TotalPnL.StringFixed(2))))
		}
		sb.WriteString("\n")
	}

	writeTable(&sb, "Active Positions", r.ActivePositions)
	writeTable(&sb, "Closed Positions", r.ClosedLifecycles)

	if r.Failed+r.Unknown+r.Unattributed > 0 {
		sb.WriteString("## Excluded Events\n\n")
		sb.WriteString(fmt.Sprintf("- failed on-chain: %d\n", r.Failed))
		sb.WriteString(fmt.Sprintf("- unknown: %d\n", r.Unknown))
		sb.WriteString(fmt.Sprintf("- without position: %d\n", r.Unattributed))
		sb.WriteString("\n")
	}

	if len(r.UnmatchedOverrides) > 0 {
		sb.WriteString("## Unmatched Overrides\n\n")
		for _, id := range r.UnmatchedOverrides {
			sb.WriteString(fmt.Sprintf("- %s\n", id))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func writeTable(sb *strings.Builder, title string, lifecycles []*Lifecycle) {
	sb.WriteString(fmt.Sprintf("## %s\n\n", title))
	if len(lifecycles) == 0 {
		sb.WriteString("None.\n\n")
		return
	}
	sb.WriteString("| Position | Protocol | Opens | Closes | Invested | Withdrawn | Fees | P&L | Override |\n")
	sb.WriteString("|----------|----------|-------|--------|----------|-----------|------|-----|----------|\n")
	for _, l := range lifecycles {
		override := ""
		if l.Override != nil {
			override = l.Override.Source
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %s | %s | %s | %s | %s |\n",
			l.PositionID, l.Protocol, l.Opens, l.Closes,
			usd(l.Invested.StringFixed(2)), usd(l.Withdrawn.StringFixed(2)), usd(l.FeesEarned.StringFixed(2)),
			usd(l.ReportedPnL.StringFixed(2)), override))
	}
	sb.WriteString("\n")
}

func usd(amount string) string {
	if strings.HasPrefix(amount, "-") {
		return "-$" + amount[1:]
	}
	return "$" + amount
}

// RenderCSV renders one row per lifecycle.
func RenderCSV(r *Report) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := []string{
		"position_id", "protocol", "pool_id", "opens", "closes", "fee_claims", "active_count",
		"invested", "withdrawn", "fees_earned", "realized_pnl", "reported_pnl", "current_value",
		"first_seen", "last_seen",
	}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, l := range r.Lifecycles {
		row := []string{
			l.PositionID,
			string(l.Protocol),
			l.PoolID,
			strconv.Itoa(l.Opens),
			strconv.Itoa(l.Closes),
			strconv.Itoa(l.FeeClaims),
			strconv.Itoa(l.ActiveCount),
			l.Invested.String(),
			l.Withdrawn.String(),
			l.FeesEarned.String(),
			l.RealizedPnL.String(),
			l.ReportedPnL.String(),
			l.CurrentValue.String(),
			strconv.FormatInt(l.FirstSeen, 10),
			strconv.FormatInt(l.LastSeen, 10),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return sb.String(), w.Error()
}
