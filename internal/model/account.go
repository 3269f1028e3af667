package model

import "time"

// Position is an open leveraged long. Margin is the cash committed to it,
// released pro rata on close.
type Position struct {
	Symbol     string    `json:"symbol"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	Leverage   int       `json:"leverage"`
	Margin     float64   `json:"margin"`
	EntryTime  time.Time `json:"entry_time"`
}

// UnrealizedPnL applies the leveraged PnL formula at price.
func (p Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Quantity * float64(p.Leverage)
}

// PnLPercent is the leveraged return on entry at price.
func (p Position) PnLPercent(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price/p.EntryPrice - 1) * 100 * float64(p.Leverage)
}

// PositionDetail is a position valued at a current price.
type PositionDetail struct {
	Position
	CurrentPrice     float64       `json:"current_price"`
	CurrentValue     float64       `json:"current_value"`
	UnrealizedPnL    float64       `json:"unrealized_pnl"`
	UnrealizedPnLPct float64       `json:"unrealized_pnl_pct"`
	Holding          time.Duration `json:"holding"`
}

// AccountState is a point-in-time copy of the ledger.
type AccountState struct {
	Cash           float64             `json:"cash"`
	InitialBalance float64             `json:"initial_balance"`
	Positions      map[string]Position `json:"positions"`
	TotalValue     float64             `json:"total_value"`
	ROI            float64             `json:"roi"`
	UpdatedAt      time.Time           `json:"updated_at"`
}
