package recorder

import (
	"time"

	"CryptoSentinel/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordTrade(_ *TradeRecord) error                   { return nil }
func (n *NoopRecorder) RecordPortfolio(_ *PortfolioSnapshot) error         { return nil }
func (n *NoopRecorder) RecordDecision(_ *DecisionRecord) error             { return nil }
func (n *NoopRecorder) RecordMarketSnapshot(_ model.MarketSnapshot) error  { return nil }
func (n *NoopRecorder) RecordExitPlan(_ model.ExitPlan) error              { return nil }
func (n *NoopRecorder) ActiveExitPlans() ([]model.ExitPlan, error)         { return nil, nil }
func (n *NoopRecorder) ExitPlanHistory(_ int) ([]model.ExitPlan, error)    { return nil, nil }
func (n *NoopRecorder) PerformanceStats() (PerformanceStats, error)        { return PerformanceStats{}, nil }
func (n *NoopRecorder) Prune(_ time.Time) (int64, error)                   { return 0, nil }
func (n *NoopRecorder) Close() error                                       { return nil }
