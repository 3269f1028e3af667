package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"CryptoSentinel/internal/model"

	"github.com/tidwall/gjson"
)

var (
	ErrInvalidDecision = errors.New("invalid decision")
	ErrBadReply        = errors.New("unparseable decision reply")
)

// Action is what the decision-maker asks the bot to do.
type Action string

const (
	ActionOpenLong  Action = "open_long"
	ActionOpenShort Action = "open_short"
	ActionClose     Action = "close_position"
	ActionHold      Action = "hold"
)

// ExitPlan is the exit instruction attached to a decision.
type ExitPlan struct {
	ProfitTarget      *float64 `json:"profit_target,omitempty"`
	StopLoss          *float64 `json:"stop_loss,omitempty"`
	Invalidation      string   `json:"invalidation,omitempty"`
	InvalidationPrice *float64 `json:"invalidation_price,omitempty"`
}

// ToModel turns the instruction into an unsaved exit plan for a position
// entered at entryPrice.
func (p ExitPlan) ToModel(symbol string, entryPrice float64) model.ExitPlan {
	return model.ExitPlan{
		Symbol:            symbol,
		EntryPrice:        entryPrice,
		ProfitTarget:      p.ProfitTarget,
		StopLoss:          p.StopLoss,
		InvalidationPrice: p.InvalidationPrice,
		InvalidationText:  p.Invalidation,
	}
}

// Decision is one structured reply from the decision-maker.
type Decision struct {
	Action     Action    `json:"action"`
	Asset      string    `json:"asset,omitempty"`
	AmountUSD  float64   `json:"amount_usd,omitempty"`
	Leverage   int       `json:"leverage,omitempty"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	ExitPlan   *ExitPlan `json:"exit_plan,omitempty"`
}

// Hold returns a hold decision with the given reasoning.
func Hold(reason string) Decision {
	return Decision{Action: ActionHold, Reasoning: reason}
}

// Validate checks the fields each action needs. Leverage 0 on an open is
// read as 1.
func (d *Decision) Validate(maxLeverage int) error {
	switch d.Action {
	case ActionHold:
		return nil
	case ActionClose:
		if d.Asset == "" {
			return fmt.Errorf("%w: close_position without asset", ErrInvalidDecision)
		}
		return nil
	case ActionOpenLong, ActionOpenShort:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidDecision, d.Action)
	}

	if d.Asset == "" {
		return fmt.Errorf("%w: %s without asset", ErrInvalidDecision, d.Action)
	}
	if d.AmountUSD <= 0 {
		return fmt.Errorf("%w: amount_usd must be positive, got %.2f", ErrInvalidDecision, d.AmountUSD)
	}
	if d.Leverage == 0 {
		d.Leverage = 1
	}
	if d.Leverage < 1 || (maxLeverage > 0 && d.Leverage > maxLeverage) {
		return fmt.Errorf("%w: leverage %d outside 1..%d", ErrInvalidDecision, d.Leverage, maxLeverage)
	}
	return nil
}

// Maker produces a trading decision from the current market and account.
type Maker interface {
	Decide(ctx context.Context, snapshots map[string]model.MarketSnapshot, account model.AccountState) (Decision, error)
}

// HoldMaker always holds. It stands in when no decision endpoint is set.
type HoldMaker struct{}

func (HoldMaker) Decide(context.Context, map[string]model.MarketSnapshot, model.AccountState) (Decision, error) {
	return Hold("no decision endpoint configured"), nil
}

// Parse decodes a decision from the JSON object in a model reply. Markdown
// code fences around the object are tolerated. Numbers may arrive as JSON
// strings.
func Parse(content string) (Decision, error) {
	content = stripFences(content)
	if !gjson.Valid(content) {
		return Decision{}, fmt.Errorf("%w: %.80q", ErrBadReply, content)
	}
	r := gjson.Parse(content)
	if !r.IsObject() {
		return Decision{}, fmt.Errorf("%w: not an object", ErrBadReply)
	}

	d := Decision{
		Action:     Action(strings.ToLower(strings.TrimSpace(r.Get("action").String()))),
		Asset:      normalizeAsset(r.Get("asset").String()),
		AmountUSD:  r.Get("amount_usd").Float(),
		Leverage:   int(r.Get("leverage").Float()),
		Reasoning:  r.Get("reasoning").String(),
		Confidence: r.Get("confidence").Float(),
	}
	if ep := r.Get("exit_plan"); ep.IsObject() {
		plan := ExitPlan{
			ProfitTarget:      optFloat(ep.Get("profit_target")),
			StopLoss:          optFloat(ep.Get("stop_loss")),
			InvalidationPrice: optFloat(ep.Get("invalidation_price")),
			Invalidation:      ep.Get("invalidation").String(),
		}
		if plan.ProfitTarget != nil || plan.StopLoss != nil || plan.InvalidationPrice != nil || plan.Invalidation != "" {
			d.ExitPlan = &plan
		}
	}
	return d, nil
}

func optFloat(r gjson.Result) *float64 {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	v := r.Float()
	if v == 0 {
		return nil
	}
	return &v
}

// normalizeAsset maps "btc", "BTCUSDT" and "BTC/USDT" to "BTC".
func normalizeAsset(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "/-"); i > 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, "USDT")
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
