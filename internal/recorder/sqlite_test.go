package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"CryptoSentinel/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "sentinel.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func ptr(v float64) *float64 { return &v }

func TestExitPlanVersions(t *testing.T) {
	r := newTestRecorder(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	btc := model.ExitPlan{
		ID: "plan-btc", Symbol: "BTC", EntryPrice: 100,
		ProfitTarget: ptr(110), StopLoss: ptr(95),
		Status: model.PlanActive, CreatedAt: created,
	}
	eth := model.ExitPlan{
		ID: "plan-eth", Symbol: "ETH", EntryPrice: 2000,
		InvalidationPrice: ptr(1900), InvalidationText: "4h close below 1900",
		Status: model.PlanActive, CreatedAt: created,
	}
	require.NoError(t, r.RecordExitPlan(btc))
	require.NoError(t, r.RecordExitPlan(eth))

	at := created.Add(time.Hour)
	btc.Status = model.PlanTriggered
	btc.TriggeredAt = &at
	btc.TriggerType = model.TriggerProfitTarget
	require.NoError(t, r.RecordExitPlan(btc))

	active, err := r.ActiveExitPlans()
	require.NoError(t, err)
	require.Len(t, active, 1)
	got := active[0]
	assert.Equal(t, "plan-eth", got.ID)
	assert.Nil(t, got.ProfitTarget)
	require.NotNil(t, got.InvalidationPrice)
	assert.Equal(t, 1900.0, *got.InvalidationPrice)
	assert.Equal(t, "4h close below 1900", got.InvalidationText)
	assert.True(t, created.Equal(got.CreatedAt))

	history, err := r.ExitPlanHistory(10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, model.PlanTriggered, history[0].Status)
	assert.Equal(t, model.TriggerProfitTarget, history[0].TriggerType)
	require.NotNil(t, history[0].TriggeredAt)
	assert.True(t, at.Equal(*history[0].TriggeredAt))
	assert.Equal(t, model.PlanActive, history[2].Status)
}

func TestPerformanceStats(t *testing.T) {
	r := newTestRecorder(t)

	empty, err := r.PerformanceStats()
	require.NoError(t, err)
	assert.Zero(t, empty.TotalTrades)
	assert.Zero(t, empty.WinRate)

	for _, rec := range []*TradeRecord{
		{Action: "open_long", Asset: "BTC", Price: 100, AmountUSD: 1000, Leverage: 2, Success: true},
		{Action: "close_position", Asset: "BTC", Price: 110, AmountUSD: 1100, Leverage: 2, PnL: 200, Success: true},
		{Action: "forced_close:stop_loss", Asset: "ETH", Price: 90, AmountUSD: 900, Leverage: 1, PnL: -100, Success: true},
		{Action: "close_position", Asset: "SOL", Price: 10, Leverage: 1, PnL: 50, Success: false, Error: "no position"},
	} {
		require.NoError(t, r.RecordTrade(rec))
	}
	require.NoError(t, r.RecordPortfolio(&PortfolioSnapshot{
		TotalValue: 10100, Cash: 10100, ROI: 1,
		Positions: map[string]model.Position{},
	}))

	s, err := r.PerformanceStats()
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalTrades)
	assert.Equal(t, 1, s.WinningTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.InDelta(t, 50.0, s.WinRate, 1e-9)
	assert.InDelta(t, 100.0, s.TotalPnL, 1e-9)
	assert.InDelta(t, 50.0, s.AvgPnL, 1e-9)
	assert.InDelta(t, 200.0, s.MaxProfit, 1e-9)
	assert.InDelta(t, -100.0, s.MaxLoss, 1e-9)
	assert.InDelta(t, 10100.0, s.CurrentValue, 1e-9)
	assert.InDelta(t, 1.0, s.CurrentROI, 1e-9)
}

func TestPrune(t *testing.T) {
	r := newTestRecorder(t)
	now := time.Now()
	old := now.Add(-40 * 24 * time.Hour)

	require.NoError(t, r.RecordMarketSnapshot(model.MarketSnapshot{Symbol: "BTC", Price: 1, GeneratedAt: old}))
	require.NoError(t, r.RecordMarketSnapshot(model.MarketSnapshot{Symbol: "BTC", Price: 2, GeneratedAt: now}))
	require.NoError(t, r.RecordDecision(&DecisionRecord{Time: old, Action: "hold", Payload: map[string]string{"action": "hold"}}))
	require.NoError(t, r.RecordPortfolio(&PortfolioSnapshot{Time: old, TotalValue: 1, Cash: 1}))
	require.NoError(t, r.RecordTrade(&TradeRecord{Time: old, Action: "close_position", Asset: "BTC", Price: 1, Success: true}))

	n, err := r.Prune(now.Add(-30 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var markets, trades int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM market_snapshots`).Scan(&markets))
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&trades))
	assert.Equal(t, 1, markets)
	assert.Equal(t, 1, trades)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordExitPlan(model.ExitPlan{}))
	plans, err := r.ActiveExitPlans()
	assert.NoError(t, err)
	assert.Empty(t, plans)
}
