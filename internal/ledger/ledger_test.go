package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, balance float64) (*Ledger, *time.Time) {
	t.Helper()
	l, err := New("", balance, zerolog.Nop())
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestOpen_VolumeWeightedMerge(t *testing.T) {
	l, now := newTestLedger(t, 10000)
	start := *now

	_, err := l.Open("BTC", true, 5000, 100, 2)
	require.NoError(t, err)
	*now = now.Add(time.Hour)
	_, err = l.Open("BTC", true, 6000, 120, 2)
	require.NoError(t, err)

	pos, ok := l.Position("BTC")
	require.True(t, ok)
	assert.InDelta(t, 100.0, pos.Quantity, 1e-9)
	assert.InDelta(t, 110.0, pos.EntryPrice, 1e-9)
	assert.Equal(t, start, pos.EntryTime)
	assert.Equal(t, 2, pos.Leverage)
	assert.InDelta(t, 10000-2500-3000, l.State(nil).Cash, 1e-9)
}

func TestOpen_InsufficientFundsHasNoSideEffect(t *testing.T) {
	l, _ := newTestLedger(t, 1000)

	_, err := l.Open("ETH", true, 5000, 2000, 2)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	st := l.State(nil)
	assert.Equal(t, 1000.0, st.Cash)
	assert.Empty(t, st.Positions)
}

func TestOpen_Rejections(t *testing.T) {
	l, _ := newTestLedger(t, 1000)

	_, err := l.Open("ETH", false, 100, 2000, 2)
	assert.ErrorIs(t, err, ErrUnsupportedSide)
	_, err = l.Open("ETH", true, 0, 2000, 2)
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = l.Open("ETH", true, 100, 2000, 0)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestOpen_LeverageLastWriteWins(t *testing.T) {
	l, _ := newTestLedger(t, 10000)
	_, err := l.Open("SOL", true, 1000, 100, 2)
	require.NoError(t, err)
	_, err = l.Open("SOL", true, 1000, 100, 5)
	require.NoError(t, err)

	pos, _ := l.Position("SOL")
	assert.Equal(t, 5, pos.Leverage)
	assert.InDelta(t, 500+200, pos.Margin, 1e-9)
}

func TestClose_NoPosition(t *testing.T) {
	l, _ := newTestLedger(t, 1000)
	_, err := l.Close("BTC", 100, 100)
	assert.ErrorIs(t, err, ErrNoPosition)
	_, err = l.CloseAll("BTC", 100)
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestClose_FullCloseRestoresCashPlusPnL(t *testing.T) {
	l, _ := newTestLedger(t, 10000)
	_, err := l.Open("BTC", true, 5000, 100, 2)
	require.NoError(t, err)

	fill, err := l.Close("BTC", 1e9, 110)
	require.NoError(t, err)
	assert.True(t, fill.Closed)
	assert.InDelta(t, 50.0, fill.Quantity, 1e-9)
	// clamped: amount recomputed from quantity
	assert.InDelta(t, 5500.0, fill.AmountUSD, 1e-9)
	assert.InDelta(t, 1000.0, fill.PnL, 1e-9)
	assert.InDelta(t, 20.0, fill.PnLPct, 1e-9)

	_, ok := l.Position("BTC")
	assert.False(t, ok)
	// 7500 + 5500/2 + 1000
	assert.InDelta(t, 11250.0, l.State(nil).Cash, 1e-9)
}

func TestClose_PartialAtEntryPrice(t *testing.T) {
	l, _ := newTestLedger(t, 20000)
	_, err := l.Open("ETH", true, 10000, 100, 1)
	require.NoError(t, err)

	fill, err := l.Close("ETH", 2000, 100)
	require.NoError(t, err)
	assert.False(t, fill.Closed)
	assert.InDelta(t, 20.0, fill.Quantity, 1e-9)

	pos, ok := l.Position("ETH")
	require.True(t, ok)
	assert.InDelta(t, 80.0, pos.Quantity, 1e-9)
	assert.InDelta(t, 8000.0, pos.Margin, 1e-9)
	assert.InDelta(t, 12000.0, l.State(nil).Cash, 1e-9)
}

func TestClose_DustBelowEpsilonRemovesPosition(t *testing.T) {
	l, _ := newTestLedger(t, 10000)
	_, err := l.Open("DOGE", true, 100, 1, 1)
	require.NoError(t, err)

	// leaves 0.00005 units
	fill, err := l.Close("DOGE", 99.99995, 1)
	require.NoError(t, err)
	assert.True(t, fill.Closed)
	_, ok := l.Position("DOGE")
	assert.False(t, ok)
	// dust is dropped, not paid out
	assert.InDelta(t, 9999.99995, l.State(nil).Cash, 1e-9)
}

func TestClose_PartialCreditsNotionalOverLeveragePlusPnL(t *testing.T) {
	l, _ := newTestLedger(t, 10000)
	_, err := l.Open("BTC", true, 5000, 100, 2)
	require.NoError(t, err)

	fill, err := l.Close("BTC", 2000, 110)
	require.NoError(t, err)
	assert.False(t, fill.Closed)
	sold := 2000.0 / 110
	assert.InDelta(t, sold, fill.Quantity, 1e-9)
	assert.InDelta(t, 10*sold*2, fill.PnL, 1e-9)

	// 7500 + 2000/2 + 363.64
	assert.InDelta(t, 7500+1000+10*sold*2, l.State(nil).Cash, 1e-9)
	assert.InDelta(t, 8863.6364, l.State(nil).Cash, 1e-4)

	pos, ok := l.Position("BTC")
	require.True(t, ok)
	assert.InDelta(t, 50-sold, pos.Quantity, 1e-9)
	assert.InDelta(t, 2500*(50-sold)/50, pos.Margin, 1e-9)
}

func TestCash_TracksOpenAndCloseFormulas(t *testing.T) {
	l, _ := newTestLedger(t, 10000)
	steps := []struct {
		open     bool
		symbol   string
		notional float64
		price    float64
		leverage int
	}{
		{true, "BTC", 3000, 100, 3},
		{true, "ETH", 2000, 50, 2},
		{true, "BTC", 1500, 90, 5},
		{false, "BTC", 1000, 95, 0},
		{false, "ETH", 1e6, 40, 0},
		{false, "BTC", 1e6, 120, 0},
	}
	realized := 0.0
	cash := 10000.0
	for _, s := range steps {
		if s.open {
			_, err := l.Open(s.symbol, true, s.notional, s.price, s.leverage)
			require.NoError(t, err)
			cash -= s.notional / float64(s.leverage)
			continue
		}
		fill, err := l.Close(s.symbol, s.notional, s.price)
		require.NoError(t, err)
		realized += fill.PnL
		cash += fill.AmountUSD/float64(fill.Leverage) + fill.PnL
	}
	st := l.State(nil)
	require.Empty(t, st.Positions)
	assert.InDelta(t, cash, st.Cash, 1e-6)
	assert.InDelta(t, st.Cash, st.TotalValue, 1e-9)
	assert.InDelta(t, realized, l.Counters().RealizedPnL, 1e-6)
	assert.Equal(t, 6, l.Counters().TotalTrades)
}

func TestState_Valuation(t *testing.T) {
	l, _ := newTestLedger(t, 10000)
	_, err := l.Open("BTC", true, 5000, 100, 2)
	require.NoError(t, err)

	st := l.State(map[string]float64{"BTC": 110})
	assert.InDelta(t, 7500.0, st.Cash, 1e-9)
	// 7500 + 50*110/2 + 1000
	assert.InDelta(t, 11250.0, st.TotalValue, 1e-9)
	assert.InDelta(t, 12.5, st.ROI, 1e-9)

	// no price: valued at entry
	assert.InDelta(t, 10000.0, l.State(nil).TotalValue, 1e-9)
}

func TestDetails(t *testing.T) {
	l, now := newTestLedger(t, 10000)
	_, err := l.Open("SOL", true, 1000, 100, 3)
	require.NoError(t, err)
	_, err = l.Open("BNB", true, 1000, 500, 1)
	require.NoError(t, err)
	*now = now.Add(90 * time.Minute)

	d := l.Details(map[string]float64{"SOL": 95})
	require.Len(t, d, 2)
	assert.Equal(t, "BNB", d[0].Symbol)
	assert.Equal(t, 500.0, d[0].CurrentPrice)
	assert.Equal(t, "SOL", d[1].Symbol)
	assert.InDelta(t, -150.0, d[1].UnrealizedPnL, 1e-9)
	assert.InDelta(t, -15.0, d[1].UnrealizedPnLPct, 1e-9)
	assert.Equal(t, 90*time.Minute, d[1].Holding)
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ledger.json")
	l, err := New(path, 10000, zerolog.Nop())
	require.NoError(t, err)
	_, err = l.Open("XRP", true, 1000, 0.5, 4)
	require.NoError(t, err)

	reloaded, err := New(path, 99999, zerolog.Nop())
	require.NoError(t, err)
	pos, ok := reloaded.Position("XRP")
	require.True(t, ok)
	assert.InDelta(t, 2000.0, pos.Quantity, 1e-9)
	st := reloaded.State(nil)
	assert.Equal(t, 10000.0, st.InitialBalance)
	assert.InDelta(t, 9750.0, st.Cash, 1e-9)
}

func TestPersistence_CorruptedStateIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := New(path, 10000, zerolog.Nop())
	assert.Error(t, err)
}
