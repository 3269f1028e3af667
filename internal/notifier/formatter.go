package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"CryptoSentinel/internal/model"
	"CryptoSentinel/internal/recorder"
)

var triggerIcons = map[model.TriggerType]string{
	model.TriggerProfitTarget: "🎯",
	model.TriggerStopLoss:     "🛑",
	model.TriggerInvalidation: "⚠️",
}

// FormatForcedClose describes an exit-plan trigger and its fill.
func FormatForcedClose(fc model.ForcedClose) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>Exit plan triggered</b> | %s\n\n", triggerIcons[fc.TriggerType], fc.Symbol)
	fmt.Fprintf(&b, "Trigger: %s\n", fc.TriggerType)
	fmt.Fprintf(&b, "Reason: %s\n", html.EscapeString(fc.Reason))
	fmt.Fprintf(&b, "Price: %.4f\n", fc.Price)
	switch {
	case fc.Err != nil:
		fmt.Fprintf(&b, "\n❌ Close failed: %s", html.EscapeString(fc.Err.Error()))
	case fc.Fill != nil:
		fmt.Fprintf(&b, "Closed qty: %.6f\n", fc.Fill.Quantity)
		fmt.Fprintf(&b, "PnL: %+.2f USD (%+.2f%%)", fc.Fill.PnL, fc.Fill.PnLPct)
	}
	return b.String()
}

// FormatTrade describes a decision-driven fill.
func FormatTrade(action string, fill model.Fill, reasoning string) string {
	var b strings.Builder
	icon := "🟢"
	if fill.Side == "sell" {
		icon = "🔴"
	}
	fmt.Fprintf(&b, "%s <b>%s</b> %s\n\n", icon, action, fill.Symbol)
	fmt.Fprintf(&b, "Price: %.4f\n", fill.Price)
	fmt.Fprintf(&b, "Amount: %.2f USD @ %dx\n", fill.AmountUSD, fill.Leverage)
	if fill.Side == "sell" {
		fmt.Fprintf(&b, "PnL: %+.2f USD (%+.2f%%)\n", fill.PnL, fill.PnLPct)
	}
	if reasoning != "" {
		fmt.Fprintf(&b, "\n<i>%s</i>", html.EscapeString(truncate(reasoning, 600)))
	}
	return b.String()
}

// FormatStatus renders the account and its open positions.
func FormatStatus(acct model.AccountState, details []model.PositionDetail) string {
	var b strings.Builder
	b.WriteString("📦 <b>Account status</b>\n\n")
	fmt.Fprintf(&b, "Total value: %.2f USD\n", acct.TotalValue)
	fmt.Fprintf(&b, "Cash: %.2f USD\n", acct.Cash)
	fmt.Fprintf(&b, "ROI: %+.2f%%\n", acct.ROI)
	fmt.Fprintf(&b, "Open positions: %d\n", len(details))
	if len(details) > 0 {
		b.WriteString("\n")
		b.WriteString(FormatPositions(details))
	}
	return b.String()
}

// FormatPositions renders one line block per position.
func FormatPositions(details []model.PositionDetail) string {
	if len(details) == 0 {
		return "No open positions."
	}
	var b strings.Builder
	for _, d := range details {
		fmt.Fprintf(&b, "<b>%s</b> %.6f @ %.4f (%dx)\n", d.Symbol, d.Quantity, d.EntryPrice, d.Leverage)
		fmt.Fprintf(&b, "  now %.4f | uPnL %+.2f (%+.2f%%) | held %s\n",
			d.CurrentPrice, d.UnrealizedPnL, d.UnrealizedPnLPct, d.Holding.Truncate(time.Minute))
	}
	return b.String()
}

// FormatPlans renders the active exit plans.
func FormatPlans(plans []model.ExitPlan) string {
	if len(plans) == 0 {
		return "No active exit plans."
	}
	var b strings.Builder
	b.WriteString("📋 <b>Active exit plans</b>\n\n")
	for _, p := range plans {
		fmt.Fprintf(&b, "<b>%s</b> entry %.4f\n", p.Symbol, p.EntryPrice)
		if p.ProfitTarget != nil {
			fmt.Fprintf(&b, "  target %.4f\n", *p.ProfitTarget)
		}
		if p.StopLoss != nil {
			fmt.Fprintf(&b, "  stop %.4f\n", *p.StopLoss)
		}
		if p.InvalidationPrice != nil {
			fmt.Fprintf(&b, "  invalidation %.4f", *p.InvalidationPrice)
			if p.InvalidationText != "" {
				fmt.Fprintf(&b, " (%s)", html.EscapeString(p.InvalidationText))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FormatStats renders trade performance.
func FormatStats(s recorder.PerformanceStats) string {
	var b strings.Builder
	b.WriteString("📈 <b>Performance</b>\n\n")
	fmt.Fprintf(&b, "Closed trades: %d (W %d / L %d)\n", s.TotalTrades, s.WinningTrades, s.LosingTrades)
	fmt.Fprintf(&b, "Win rate: %.1f%%\n", s.WinRate)
	fmt.Fprintf(&b, "Total PnL: %+.2f USD\n", s.TotalPnL)
	fmt.Fprintf(&b, "Avg PnL: %+.2f USD\n", s.AvgPnL)
	fmt.Fprintf(&b, "Best: %+.2f | Worst: %+.2f\n", s.MaxProfit, s.MaxLoss)
	return b.String()
}

// FormatDailyReport combines account status and performance.
func FormatDailyReport(acct model.AccountState, details []model.PositionDetail, s recorder.PerformanceStats, plans int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 <b>Daily report</b> | %s\n\n", time.Now().Format("2006-01-02"))
	b.WriteString(FormatStatus(acct, details))
	fmt.Fprintf(&b, "\nActive exit plans: %d\n\n", plans)
	b.WriteString(FormatStats(s))
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
