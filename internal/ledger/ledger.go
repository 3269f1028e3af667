package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"CryptoSentinel/internal/model"

	"github.com/rs/zerolog"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoPosition        = errors.New("no position")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrUnsupportedSide   = errors.New("short positions are not supported")
)

// Epsilon is the quantity below which a position is considered closed.
const Epsilon = 1e-4

// Ledger is the simulated exchange account: cash plus leveraged long
// positions. All mutations go through Open and Close.
type Ledger struct {
	mu       sync.Mutex
	state    *State
	filePath string

	now func() time.Time
	log zerolog.Logger
}

// New creates a Ledger, loading or initializing state from disk. An empty
// filePath keeps the ledger in memory only.
func New(filePath string, initialBalance float64, log zerolog.Logger) (*Ledger, error) {
	if initialBalance <= 0 {
		return nil, fmt.Errorf("initial balance must be positive, got %.2f", initialBalance)
	}
	state, err := LoadState(filePath)
	if err != nil {
		return nil, err
	}

	// Initialize if fresh state
	if state.InitialBalance == 0 {
		state.InitialBalance = initialBalance
		state.Cash = initialBalance
	}

	l := &Ledger{
		state:    state,
		filePath: filePath,
		now:      time.Now,
		log:      log.With().Str("component", "ledger").Logger(),
	}
	if err := l.save(); err != nil {
		return nil, err
	}
	l.log.Info().Float64("cash", state.Cash).Int("positions", len(state.Positions)).Msg("ledger loaded")
	return l, nil
}

// Open buys notional USD of symbol at price with the given leverage. The
// margin notional/leverage is taken from cash. An existing position is
// merged at the volume-weighted average price, keeps its entry time and
// takes the new leverage.
func (l *Ledger) Open(symbol string, isBuy bool, notional, price float64, leverage int) (model.Fill, error) {
	if !isBuy {
		return model.Fill{}, ErrUnsupportedSide
	}
	if symbol == "" || notional <= 0 || price <= 0 || leverage < 1 {
		return model.Fill{}, fmt.Errorf("%w: symbol=%q notional=%.2f price=%.4f leverage=%d",
			ErrInvalidOrder, symbol, notional, price, leverage)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	margin := notional / float64(leverage)
	if margin > l.state.Cash {
		return model.Fill{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, margin, l.state.Cash)
	}

	now := l.now()
	qty := notional / price
	pos, exists := l.state.Positions[symbol]
	if exists {
		newQty := pos.Quantity + qty
		pos.EntryPrice = (pos.Quantity*pos.EntryPrice + qty*price) / newQty
		pos.Quantity = newQty
		pos.Leverage = leverage
		pos.Margin += margin
	} else {
		pos = model.Position{
			Symbol:     symbol,
			Quantity:   qty,
			EntryPrice: price,
			Leverage:   leverage,
			Margin:     margin,
			EntryTime:  now,
		}
	}
	l.state.Positions[symbol] = pos
	l.state.Cash -= margin
	l.state.TotalTrades++
	l.persist()

	return model.Fill{
		Symbol:    symbol,
		Side:      "buy",
		Quantity:  qty,
		Price:     price,
		AmountUSD: notional,
		Leverage:  leverage,
		Time:      now,
	}, nil
}

// Close sells up to notional USD of symbol at price. The sold quantity is
// clamped to the position size, in which case the amount is recomputed from
// it. Cash receives notional/leverage plus leveraged PnL; Margin is reduced
// pro rata for reporting only.
func (l *Ledger) Close(symbol string, notional, price float64) (model.Fill, error) {
	if notional <= 0 || price <= 0 {
		return model.Fill{}, fmt.Errorf("%w: notional=%.2f price=%.4f", ErrInvalidOrder, notional, price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.state.Positions[symbol]
	if !ok {
		return model.Fill{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}

	sellQty := notional / price
	if sellQty >= pos.Quantity {
		sellQty = pos.Quantity
		notional = sellQty * price
	}

	pnl := (price - pos.EntryPrice) * sellQty * float64(pos.Leverage)
	pos.Margin -= pos.Margin * sellQty / pos.Quantity
	pos.Quantity -= sellQty
	closed := pos.Quantity < Epsilon
	if closed {
		delete(l.state.Positions, symbol)
	} else {
		l.state.Positions[symbol] = pos
	}

	l.state.Cash += notional/float64(pos.Leverage) + pnl
	l.state.RealizedPnL += pnl
	l.state.TotalTrades++
	if pnl > 0 {
		l.state.WinningTrades++
	} else if pnl < 0 {
		l.state.LosingTrades++
	}
	l.persist()

	return model.Fill{
		Symbol:    symbol,
		Side:      "sell",
		Quantity:  sellQty,
		Price:     price,
		AmountUSD: notional,
		Leverage:  pos.Leverage,
		PnL:       pnl,
		PnLPct:    pos.PnLPercent(price),
		Closed:    closed,
		Time:      l.now(),
	}, nil
}

// CloseAll closes the whole position at price.
func (l *Ledger) CloseAll(symbol string, price float64) (model.Fill, error) {
	pos, ok := l.Position(symbol)
	if !ok {
		return model.Fill{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	return l.Close(symbol, pos.Quantity*price, price)
}

// Position returns the open position for symbol.
func (l *Ledger) Position(symbol string) (model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.state.Positions[symbol]
	return pos, ok
}

// Positions returns a copy of all open positions.
func (l *Ledger) Positions() map[string]model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]model.Position, len(l.state.Positions))
	for k, v := range l.state.Positions {
		out[k] = v
	}
	return out
}

// State values the account at prices: cash plus, per position,
// quantity*price/leverage and unrealized PnL. Positions without a price are
// valued at entry.
func (l *Ledger) State(prices map[string]float64) model.AccountState {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct := model.AccountState{
		Cash:           l.state.Cash,
		InitialBalance: l.state.InitialBalance,
		Positions:      make(map[string]model.Position, len(l.state.Positions)),
		TotalValue:     l.state.Cash,
		UpdatedAt:      l.now(),
	}
	for sym, pos := range l.state.Positions {
		acct.Positions[sym] = pos
		price, ok := prices[sym]
		if !ok || price <= 0 {
			price = pos.EntryPrice
		}
		acct.TotalValue += pos.Quantity*price/float64(pos.Leverage) + pos.UnrealizedPnL(price)
	}
	acct.ROI = (acct.TotalValue/l.state.InitialBalance - 1) * 100
	return acct
}

// Details values each open position at prices, ordered by symbol.
func (l *Ledger) Details(prices map[string]float64) []model.PositionDetail {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make([]model.PositionDetail, 0, len(l.state.Positions))
	for sym, pos := range l.state.Positions {
		price, ok := prices[sym]
		if !ok || price <= 0 {
			price = pos.EntryPrice
		}
		out = append(out, model.PositionDetail{
			Position:         pos,
			CurrentPrice:     price,
			CurrentValue:     pos.Quantity * price,
			UnrealizedPnL:    pos.UnrealizedPnL(price),
			UnrealizedPnLPct: pos.PnLPercent(price),
			Holding:          now.Sub(pos.EntryTime),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Counters is a summary of trading activity.
type Counters struct {
	RealizedPnL   float64
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
}

// Counters returns the trade counters.
func (l *Ledger) Counters() Counters {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Counters{
		RealizedPnL:   l.state.RealizedPnL,
		TotalTrades:   l.state.TotalTrades,
		WinningTrades: l.state.WinningTrades,
		LosingTrades:  l.state.LosingTrades,
	}
}

func (l *Ledger) persist() {
	if err := l.save(); err != nil {
		l.log.Error().Err(err).Msg("failed to save ledger state")
	}
}

func (l *Ledger) save() error {
	return SaveState(l.filePath, l.state)
}
