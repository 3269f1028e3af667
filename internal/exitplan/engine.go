package exitplan

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"CryptoSentinel/internal/model"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// ErrInvalidExitPlan is returned for a plan without usable price levels.
var ErrInvalidExitPlan = errors.New("invalid exit plan")

// Journal persists every plan version.
type Journal interface {
	RecordExitPlan(plan model.ExitPlan) error
}

// Closer is the part of the ledger the engine may call.
type Closer interface {
	Position(symbol string) (model.Position, bool)
	CloseAll(symbol string, price float64) (model.Fill, error)
}

// Engine owns the exit-plan lifecycle: at most one active plan per symbol.
type Engine struct {
	mu      sync.Mutex
	active  map[string]model.ExitPlan
	journal Journal

	now func() time.Time
	log zerolog.Logger
}

// NewEngine creates an Engine. journal may be nil.
func NewEngine(journal Journal, log zerolog.Logger) *Engine {
	return &Engine{
		active:  make(map[string]model.ExitPlan),
		journal: journal,
		now:     time.Now,
		log:     log.With().Str("component", "exitplan").Logger(),
	}
}

// Validate checks that plan names a symbol and entry, and sets at least one
// positive price level.
func Validate(plan model.ExitPlan) error {
	if plan.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidExitPlan)
	}
	if plan.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry price must be positive", ErrInvalidExitPlan)
	}
	levels := map[string]*float64{
		"profit_target":      plan.ProfitTarget,
		"stop_loss":          plan.StopLoss,
		"invalidation_price": plan.InvalidationPrice,
	}
	set := 0
	for name, v := range levels {
		if v == nil {
			continue
		}
		if *v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidExitPlan, name)
		}
		set++
	}
	if set == 0 {
		return fmt.Errorf("%w: no profit target, stop loss or invalidation price", ErrInvalidExitPlan)
	}
	return nil
}

// Set installs plan as the active plan for its symbol, cancelling any plan
// it replaces. The stored plan gets a new ID and active status.
func (e *Engine) Set(plan model.ExitPlan) (model.ExitPlan, error) {
	if err := Validate(plan); err != nil {
		return model.ExitPlan{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.active[plan.Symbol]; ok {
		e.finish(old, model.PlanCancelled, "")
	}
	plan.ID = ulid.Make().String()
	plan.Status = model.PlanActive
	plan.CreatedAt = e.now()
	plan.TriggeredAt = nil
	plan.TriggerType = ""
	e.active[plan.Symbol] = plan
	e.record(plan)
	e.log.Info().Str("symbol", plan.Symbol).Str("plan_id", plan.ID).Msg("exit plan active")
	return plan, nil
}

// Cancel cancels the active plan for symbol, if any.
func (e *Engine) Cancel(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, ok := e.active[symbol]
	if ok {
		e.finish(plan, model.PlanCancelled, "")
	}
	return ok
}

// Restore loads previously persisted active plans without journaling them.
// When several are active for one symbol, the newest is kept and the others
// are journaled as cancelled.
func (e *Engine) Restore(plans []model.ExitPlan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range plans {
		if p.Status != model.PlanActive {
			continue
		}
		cur, ok := e.active[p.Symbol]
		if !ok {
			e.active[p.Symbol] = p
			continue
		}
		stale := p
		if !p.CreatedAt.Before(cur.CreatedAt) {
			e.active[p.Symbol] = p
			stale = cur
		}
		stale.Status = model.PlanCancelled
		e.record(stale)
		e.log.Warn().Str("symbol", stale.Symbol).Str("plan_id", stale.ID).Msg("duplicate active exit plan cancelled")
	}
}

// Get returns the active plan for symbol.
func (e *Engine) Get(symbol string) (model.ExitPlan, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.active[symbol]
	return p, ok
}

// Active returns all active plans ordered by symbol.
func (e *Engine) Active() []model.ExitPlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.ExitPlan, 0, len(e.active))
	for _, p := range e.active {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Evaluate checks every active plan once. Plans whose position is gone are
// cancelled; plans without a price are skipped. The returned triggers are
// ordered by priority (profit target, stop loss, invalidation), then symbol.
// Triggered plans stay active until MarkTriggered.
func (e *Engine) Evaluate(hasPosition func(symbol string) bool, prices map[string]float64) []model.ForcedClose {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []model.ForcedClose
	for sym, plan := range e.active {
		if !hasPosition(sym) {
			e.log.Info().Str("symbol", sym).Msg("position gone, cancelling exit plan")
			e.finish(plan, model.PlanCancelled, "")
			continue
		}
		price, ok := prices[sym]
		if !ok || price <= 0 {
			continue
		}
		if trigger, reason, fired := check(plan, price); fired {
			out = append(out, model.ForcedClose{
				Symbol:      sym,
				PlanID:      plan.ID,
				TriggerType: trigger,
				Reason:      reason,
				Price:       price,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].TriggerType.Priority(), out[j].TriggerType.Priority()
		if pi != pj {
			return pi < pj
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// MarkTriggered moves the active plan for symbol to triggered.
func (e *Engine) MarkTriggered(symbol string, trigger model.TriggerType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, ok := e.active[symbol]
	if ok {
		e.finish(plan, model.PlanTriggered, trigger)
	}
	return ok
}

// Enforce evaluates all plans and force-closes every triggered position
// through closer, in priority order. A plan whose close fails stays active
// and is retried next cycle.
func (e *Engine) Enforce(closer Closer, prices map[string]float64) []model.ForcedClose {
	hasPosition := func(symbol string) bool {
		_, ok := closer.Position(symbol)
		return ok
	}
	triggers := e.Evaluate(hasPosition, prices)
	for i := range triggers {
		fc := &triggers[i]
		fill, err := closer.CloseAll(fc.Symbol, fc.Price)
		if err != nil {
			fc.Err = err
			e.log.Error().Str("symbol", fc.Symbol).Err(err).Msg("forced close failed")
			continue
		}
		fc.Fill = &fill
		e.MarkTriggered(fc.Symbol, fc.TriggerType)
		e.log.Warn().Str("symbol", fc.Symbol).Str("trigger", string(fc.TriggerType)).
			Float64("price", fc.Price).Float64("pnl", fill.PnL).Msg("exit plan triggered")
	}
	return triggers
}

// check evaluates conditions in priority order and stops at the first match.
func check(plan model.ExitPlan, price float64) (model.TriggerType, string, bool) {
	if plan.ProfitTarget != nil && price >= *plan.ProfitTarget {
		return model.TriggerProfitTarget,
			fmt.Sprintf("profit target %.4f reached at %.4f", *plan.ProfitTarget, price), true
	}
	if plan.StopLoss != nil && price <= *plan.StopLoss {
		return model.TriggerStopLoss,
			fmt.Sprintf("stop loss %.4f hit at %.4f", *plan.StopLoss, price), true
	}
	if plan.InvalidationPrice != nil && price <= *plan.InvalidationPrice {
		reason := fmt.Sprintf("invalidation price %.4f broken at %.4f", *plan.InvalidationPrice, price)
		if plan.InvalidationText != "" {
			reason += ": " + plan.InvalidationText
		}
		return model.TriggerInvalidation, reason, true
	}
	return "", "", false
}

// finish moves plan to a terminal status. Caller holds e.mu.
func (e *Engine) finish(plan model.ExitPlan, status model.PlanStatus, trigger model.TriggerType) {
	delete(e.active, plan.Symbol)
	plan.Status = status
	if status == model.PlanTriggered {
		at := e.now()
		plan.TriggeredAt = &at
		plan.TriggerType = trigger
	}
	e.record(plan)
}

func (e *Engine) record(plan model.ExitPlan) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordExitPlan(plan); err != nil {
		e.log.Error().Err(err).Str("plan_id", plan.ID).Msg("record exit plan")
	}
}
