package model

import "time"

// PlanStatus is the exit-plan lifecycle state. Triggered and cancelled are
// terminal.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanTriggered PlanStatus = "triggered"
	PlanCancelled PlanStatus = "cancelled"
)

// TriggerType names the exit condition that fired.
type TriggerType string

const (
	TriggerProfitTarget TriggerType = "profit_target"
	TriggerStopLoss     TriggerType = "stop_loss"
	TriggerInvalidation TriggerType = "invalidation"
)

// Priority orders simultaneous triggers; lower wins.
func (t TriggerType) Priority() int {
	switch t {
	case TriggerProfitTarget:
		return 1
	case TriggerStopLoss:
		return 2
	case TriggerInvalidation:
		return 3
	}
	return 99
}

// ExitPlan is a standing close instruction attached to one position.
type ExitPlan struct {
	ID                string      `json:"id"`
	Symbol            string      `json:"symbol"`
	EntryPrice        float64     `json:"entry_price"`
	ProfitTarget      *float64    `json:"profit_target,omitempty"`
	StopLoss          *float64    `json:"stop_loss,omitempty"`
	InvalidationPrice *float64    `json:"invalidation_price,omitempty"`
	InvalidationText  string      `json:"invalidation_text,omitempty"`
	Status            PlanStatus  `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
	TriggeredAt       *time.Time  `json:"triggered_at,omitempty"`
	TriggerType       TriggerType `json:"trigger_type,omitempty"`
}

// ForcedClose is one exit-plan trigger produced in a cycle.
type ForcedClose struct {
	Symbol      string      `json:"symbol"`
	PlanID      string      `json:"plan_id"`
	TriggerType TriggerType `json:"trigger_type"`
	Reason      string      `json:"reason"`
	Price       float64     `json:"price"`
	Fill        *Fill       `json:"fill,omitempty"`
	Err         error       `json:"-"`
}

// Fill is the result of a ledger operation.
type Fill struct {
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	AmountUSD float64   `json:"amount_usd"`
	Leverage  int       `json:"leverage"`
	PnL       float64   `json:"pnl"`
	PnLPct    float64   `json:"pnl_pct"`
	Closed    bool      `json:"closed"`
	Time      time.Time `json:"time"`
}
