package recorder

import (
	"time"

	"CryptoSentinel/internal/model"
)

// TradeRecord is one executed or rejected ledger operation.
type TradeRecord struct {
	Time      time.Time
	CycleID   string
	Action    string // "open_long", "close_position", "forced_close:<trigger>"
	Asset     string
	Price     float64
	AmountUSD float64
	Leverage  int
	PnL       float64
	PnLPct    float64
	Reasoning string
	Success   bool
	Error     string
}

// PortfolioSnapshot is the account valued at the end of a cycle.
type PortfolioSnapshot struct {
	Time          time.Time
	TotalValue    float64
	Cash          float64
	Positions     map[string]model.Position
	ROI           float64
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
}

// DecisionRecord is one reply from the decision-maker and whether it ran.
type DecisionRecord struct {
	Time       time.Time
	CycleID    string
	Action     string
	Asset      string
	Payload    any
	Reasoning  string
	Confidence float64
	Executed   bool
}

// PerformanceStats summarizes successful closing trades and the latest
// portfolio snapshot.
type PerformanceStats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AvgPnL        float64 `json:"avg_pnl"`
	MaxProfit     float64 `json:"max_profit"`
	MaxLoss       float64 `json:"max_loss"`
	CurrentValue  float64 `json:"current_value"`
	CurrentCash   float64 `json:"current_cash"`
	CurrentROI    float64 `json:"current_roi"`
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordTrade(rec *TradeRecord) error
	RecordPortfolio(snap *PortfolioSnapshot) error
	RecordDecision(rec *DecisionRecord) error
	RecordMarketSnapshot(snap model.MarketSnapshot) error
	// RecordExitPlan appends one row per plan version.
	RecordExitPlan(plan model.ExitPlan) error

	// ActiveExitPlans returns plans whose newest version is active.
	ActiveExitPlans() ([]model.ExitPlan, error)
	ExitPlanHistory(limit int) ([]model.ExitPlan, error)
	PerformanceStats() (PerformanceStats, error)
	// Prune deletes decisions, portfolio and market snapshots older than
	// before. Trades and exit plans are kept.
	Prune(before time.Time) (int64, error)
	Close() error
}
