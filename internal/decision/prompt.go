package decision

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"CryptoSentinel/internal/model"
)

const systemPrompt = `You are a professional cryptocurrency trader managing a leveraged portfolio.

Available actions:
- open_long: open or add to a long position
- close_position: close an existing position
- hold: do nothing (you may attach an exit_plan to update the plan of an open position)

Reply with one JSON object:
{
  "action": "open_long" | "close_position" | "hold",
  "asset": "<symbol>",
  "amount_usd": <number>,
  "leverage": <integer 1-%d>,
  "confidence": <0-1>,
  "reasoning": "<analysis>",
  "exit_plan": {
    "profit_target": <price>,
    "stop_loss": <price>,
    "invalidation": "<condition>",
    "invalidation_price": <price>
  }
}

Opening a position REQUIRES an exit_plan with at least one price level. Exit plans
are enforced automatically and cannot be overridden later.`

// SystemPrompt returns the instruction message for the given leverage cap.
func SystemPrompt(maxLeverage int) string {
	return fmt.Sprintf(systemPrompt, maxLeverage)
}

// BuildPrompt renders snapshots and account into the user message. Series
// and symbols are ordered so the same input always yields the same text.
func BuildPrompt(snapshots map[string]model.MarketSnapshot, account model.AccountState, elapsed time.Duration, invocation int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trading for %d minutes, invocation #%d, now %s.\n",
		int(elapsed.Minutes()), invocation, time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	b.WriteString("Readings marked n/a lack enough history.\n\n")

	symbols := make([]string, 0, len(snapshots))
	for s := range snapshots {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		snap := snapshots[sym]
		fmt.Fprintf(&b, "=== %s price=%.4f regime=%s trend_1h=%s momentum_3m=%s momentum_15m=%s\n",
			sym, snap.Price, snap.Regime, snap.Trend1h, snap.Momentum3m, snap.Momentum15m)
		for _, res := range model.AllResolutions {
			bundle, ok := snap.Bundles[res]
			if !ok {
				continue
			}
			writeBundle(&b, res, bundle)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "ACCOUNT total_value=%.2f cash=%.2f roi=%.2f%%\n", account.TotalValue, account.Cash, account.ROI)
	if len(account.Positions) == 0 {
		b.WriteString("No open positions.\n")
	}
	held := make([]string, 0, len(account.Positions))
	for s := range account.Positions {
		held = append(held, s)
	}
	sort.Strings(held)
	for _, s := range held {
		p := account.Positions[s]
		price := p.EntryPrice
		if snap, ok := snapshots[s]; ok && snap.Price > 0 {
			price = snap.Price
		}
		fmt.Fprintf(&b, "POSITION %s qty=%.6f entry=%.4f leverage=%dx upnl=%.2f (%.2f%%)\n",
			s, p.Quantity, p.EntryPrice, p.Leverage, p.UnrealizedPnL(price), p.PnLPercent(price))
	}
	return b.String()
}

func writeBundle(b *strings.Builder, res model.Resolution, x model.IndicatorBundle) {
	fmt.Fprintf(b, "[%s] candles=%d ema20=%s ema50=%s rsi7=%s rsi14=%s atr14=%s",
		res, x.Candles, fmtReading(x.EMA20), fmtReading(x.EMA50),
		fmtReading(x.RSI7), fmtReading(x.RSI14), fmtReading(x.ATR14))
	if x.MACD.Ready {
		fmt.Fprintf(b, " macd=%.4f signal=%.4f hist=%.4f", x.MACD.MACD, x.MACD.Signal, x.MACD.Histogram)
	} else {
		b.WriteString(" macd=n/a")
	}
	fmt.Fprintf(b, " sma50=%s sma200=%s slope50=%s slope200=%s regime=%s",
		fmtReading(x.SMA50), fmtReading(x.SMA200), fmtReading(x.SMA50Slope), fmtReading(x.SMA200Slope), x.Regime)
	if x.Structure.Ready {
		fmt.Fprintf(b, " structure=%s(%.0f)", x.Structure.Trend, x.Structure.Strength)
	}
	if x.Levels.NearestSupport != nil {
		fmt.Fprintf(b, " support=%.4f", *x.Levels.NearestSupport)
	}
	if x.Levels.NearestResistance != nil {
		fmt.Fprintf(b, " resistance=%.4f", *x.Levels.NearestResistance)
	}
	b.WriteString("\n")
}

func fmtReading(r model.Reading) string {
	if !r.Ready {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", r.Value)
}
