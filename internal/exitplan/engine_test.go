package exitplan

import (
	"errors"
	"sync"
	"testing"
	"time"

	"CryptoSentinel/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memJournal struct {
	mu    sync.Mutex
	plans []model.ExitPlan
}

func (j *memJournal) RecordExitPlan(p model.ExitPlan) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.plans = append(j.plans, p)
	return nil
}

type fakeCloser struct {
	positions map[string]model.Position
	closed    []string
	err       error
}

func (f *fakeCloser) Position(symbol string) (model.Position, bool) {
	p, ok := f.positions[symbol]
	return p, ok
}

func (f *fakeCloser) CloseAll(symbol string, price float64) (model.Fill, error) {
	if f.err != nil {
		return model.Fill{}, f.err
	}
	pos := f.positions[symbol]
	delete(f.positions, symbol)
	f.closed = append(f.closed, symbol)
	return model.Fill{
		Symbol:   symbol,
		Side:     "sell",
		Quantity: pos.Quantity,
		Price:    price,
		PnL:      (price - pos.EntryPrice) * pos.Quantity,
		Closed:   true,
	}, nil
}

func ptr(v float64) *float64 { return &v }

func newTestEngine() (*Engine, *memJournal) {
	j := &memJournal{}
	e := NewEngine(j, zerolog.Nop())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	return e, j
}

func holding(symbols ...string) *fakeCloser {
	f := &fakeCloser{positions: map[string]model.Position{}}
	for _, s := range symbols {
		f.positions[s] = model.Position{Symbol: s, Quantity: 1, EntryPrice: 100, Leverage: 1}
	}
	return f
}

func TestValidate(t *testing.T) {
	ok := model.ExitPlan{Symbol: "BTC", EntryPrice: 100, StopLoss: ptr(95)}
	assert.NoError(t, Validate(ok))

	cases := map[string]model.ExitPlan{
		"no levels":       {Symbol: "BTC", EntryPrice: 100},
		"no symbol":       {EntryPrice: 100, StopLoss: ptr(95)},
		"no entry":        {Symbol: "BTC", StopLoss: ptr(95)},
		"negative target": {Symbol: "BTC", EntryPrice: 100, ProfitTarget: ptr(-1)},
		"zero stop":       {Symbol: "BTC", EntryPrice: 100, ProfitTarget: ptr(110), StopLoss: ptr(0)},
	}
	for name, plan := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(plan), ErrInvalidExitPlan)
		})
	}
}

func TestSet_ReplacesActivePlan(t *testing.T) {
	e, j := newTestEngine()

	first, err := e.Set(model.ExitPlan{Symbol: "BTC", EntryPrice: 100, StopLoss: ptr(95)})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, model.PlanActive, first.Status)

	second, err := e.Set(model.ExitPlan{Symbol: "BTC", EntryPrice: 100, StopLoss: ptr(97)})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	require.Len(t, j.plans, 3)
	assert.Equal(t, first.ID, j.plans[1].ID)
	assert.Equal(t, model.PlanCancelled, j.plans[1].Status)
	assert.Equal(t, model.PlanActive, j.plans[2].Status)
}

func TestSet_InvalidPlanKeepsExisting(t *testing.T) {
	e, _ := newTestEngine()
	first, err := e.Set(model.ExitPlan{Symbol: "BTC", EntryPrice: 100, StopLoss: ptr(95)})
	require.NoError(t, err)

	_, err = e.Set(model.ExitPlan{Symbol: "BTC", EntryPrice: 100})
	assert.ErrorIs(t, err, ErrInvalidExitPlan)

	got, ok := e.Get("BTC")
	require.True(t, ok)
	assert.Equal(t, first.ID, got.ID)
}

func TestEnforce_ProfitTarget(t *testing.T) {
	e, j := newTestEngine()
	closer := holding("BTC")
	plan, err := e.Set(model.ExitPlan{
		Symbol: "BTC", EntryPrice: 100, ProfitTarget: ptr(110), StopLoss: ptr(95),
	})
	require.NoError(t, err)

	out := e.Enforce(closer, map[string]float64{"BTC": 112})
	require.Len(t, out, 1)
	fc := out[0]
	assert.Equal(t, model.TriggerProfitTarget, fc.TriggerType)
	assert.Equal(t, plan.ID, fc.PlanID)
	assert.Equal(t, 112.0, fc.Price)
	require.NotNil(t, fc.Fill)
	assert.True(t, fc.Fill.Closed)
	assert.NoError(t, fc.Err)

	assert.Equal(t, []string{"BTC"}, closer.closed)
	assert.Empty(t, e.Active())

	last := j.plans[len(j.plans)-1]
	assert.Equal(t, model.PlanTriggered, last.Status)
	assert.Equal(t, model.TriggerProfitTarget, last.TriggerType)
	require.NotNil(t, last.TriggeredAt)
}

func TestEvaluate_Conditions(t *testing.T) {
	tests := []struct {
		name  string
		plan  model.ExitPlan
		price float64
		want  model.TriggerType
	}{
		{"stop loss", model.ExitPlan{ProfitTarget: ptr(110), StopLoss: ptr(95)}, 95, model.TriggerStopLoss},
		{"invalidation", model.ExitPlan{InvalidationPrice: ptr(98), InvalidationText: "lost support"}, 97, model.TriggerInvalidation},
		{"none", model.ExitPlan{ProfitTarget: ptr(110), StopLoss: ptr(95)}, 100, ""},
		{"target wins over all", model.ExitPlan{ProfitTarget: ptr(100), StopLoss: ptr(120), InvalidationPrice: ptr(130)}, 110, model.TriggerProfitTarget},
		{"stop wins over invalidation", model.ExitPlan{StopLoss: ptr(99), InvalidationPrice: ptr(99)}, 98, model.TriggerStopLoss},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine()
			tt.plan.Symbol = "BTC"
			tt.plan.EntryPrice = 100
			_, err := e.Set(tt.plan)
			require.NoError(t, err)

			out := e.Evaluate(func(string) bool { return true }, map[string]float64{"BTC": tt.price})
			if tt.want == "" {
				assert.Empty(t, out)
				return
			}
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].TriggerType)
			assert.NotEmpty(t, out[0].Reason)
		})
	}
}

func TestEvaluate_PositionGoneCancelsPlan(t *testing.T) {
	e, j := newTestEngine()
	_, err := e.Set(model.ExitPlan{Symbol: "ETH", EntryPrice: 100, StopLoss: ptr(95)})
	require.NoError(t, err)

	out := e.Evaluate(func(string) bool { return false }, map[string]float64{"ETH": 90})
	assert.Empty(t, out)
	assert.Empty(t, e.Active())
	assert.Equal(t, model.PlanCancelled, j.plans[len(j.plans)-1].Status)
}

func TestEvaluate_MissingPriceSkips(t *testing.T) {
	e, _ := newTestEngine()
	_, err := e.Set(model.ExitPlan{Symbol: "SOL", EntryPrice: 100, StopLoss: ptr(95)})
	require.NoError(t, err)

	has := func(string) bool { return true }
	assert.Empty(t, e.Evaluate(has, map[string]float64{}))
	assert.Empty(t, e.Evaluate(has, map[string]float64{"SOL": 0}))
	assert.Len(t, e.Active(), 1)
}

func TestEnforce_PriorityOrder(t *testing.T) {
	e, _ := newTestEngine()
	closer := holding("AAA", "BBB", "CCC", "DDD")
	for _, p := range []model.ExitPlan{
		{Symbol: "AAA", EntryPrice: 100, InvalidationPrice: ptr(98)},
		{Symbol: "BBB", EntryPrice: 100, ProfitTarget: ptr(105)},
		{Symbol: "CCC", EntryPrice: 100, StopLoss: ptr(95)},
		{Symbol: "DDD", EntryPrice: 100, ProfitTarget: ptr(101)},
	} {
		_, err := e.Set(p)
		require.NoError(t, err)
	}

	out := e.Enforce(closer, map[string]float64{"AAA": 97, "BBB": 106, "CCC": 94, "DDD": 102})
	require.Len(t, out, 4)
	var order []string
	for _, fc := range out {
		order = append(order, fc.Symbol)
	}
	assert.Equal(t, []string{"BBB", "DDD", "CCC", "AAA"}, order)
	assert.Equal(t, order, closer.closed)
}

func TestEnforce_TriggeredPlanIsTerminal(t *testing.T) {
	e, j := newTestEngine()
	closer := holding("BTC")
	_, err := e.Set(model.ExitPlan{Symbol: "BTC", EntryPrice: 100, StopLoss: ptr(95)})
	require.NoError(t, err)

	require.Len(t, e.Enforce(closer, map[string]float64{"BTC": 90}), 1)
	recorded := len(j.plans)

	// A fresh position with no new plan is never closed by the old one.
	closer.positions["BTC"] = model.Position{Symbol: "BTC", Quantity: 1, EntryPrice: 90, Leverage: 1}
	assert.Empty(t, e.Enforce(closer, map[string]float64{"BTC": 80}))
	assert.False(t, e.Cancel("BTC"))
	assert.False(t, e.MarkTriggered("BTC", model.TriggerStopLoss))
	assert.Len(t, j.plans, recorded)
}

func TestEnforce_CloseFailureKeepsPlanActive(t *testing.T) {
	e, _ := newTestEngine()
	closer := holding("BTC")
	closer.err = errors.New("ledger unavailable")
	_, err := e.Set(model.ExitPlan{Symbol: "BTC", EntryPrice: 100, StopLoss: ptr(95)})
	require.NoError(t, err)

	out := e.Enforce(closer, map[string]float64{"BTC": 90})
	require.Len(t, out, 1)
	assert.Error(t, out[0].Err)
	assert.Nil(t, out[0].Fill)
	assert.Len(t, e.Active(), 1)
}

func TestRestore_OnlyActive(t *testing.T) {
	e, j := newTestEngine()
	e.Restore([]model.ExitPlan{
		{ID: "a", Symbol: "BTC", EntryPrice: 100, StopLoss: ptr(95), Status: model.PlanActive},
		{ID: "b", Symbol: "ETH", EntryPrice: 100, StopLoss: ptr(95), Status: model.PlanCancelled},
	})
	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ID)
	assert.Empty(t, j.plans)
}

func TestRestore_DuplicateActiveKeepsNewest(t *testing.T) {
	e, j := newTestEngine()
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	e.Restore([]model.ExitPlan{
		{ID: "new", Symbol: "BTC", EntryPrice: 100, StopLoss: ptr(97), Status: model.PlanActive, CreatedAt: t0.Add(time.Hour)},
		{ID: "old", Symbol: "BTC", EntryPrice: 100, StopLoss: ptr(95), Status: model.PlanActive, CreatedAt: t0},
		{ID: "eth", Symbol: "ETH", EntryPrice: 10, StopLoss: ptr(9), Status: model.PlanActive, CreatedAt: t0},
	})

	active := e.Active()
	require.Len(t, active, 2)
	plan, ok := e.Get("BTC")
	require.True(t, ok)
	assert.Equal(t, "new", plan.ID)

	require.Len(t, j.plans, 1)
	assert.Equal(t, "old", j.plans[0].ID)
	assert.Equal(t, model.PlanCancelled, j.plans[0].Status)
}
