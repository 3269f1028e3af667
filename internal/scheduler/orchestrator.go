package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CryptoSentinel/internal/collector"
	"CryptoSentinel/internal/decision"
	"CryptoSentinel/internal/exitplan"
	"CryptoSentinel/internal/ledger"
	"CryptoSentinel/internal/metrics"
	"CryptoSentinel/internal/model"
	"CryptoSentinel/internal/notifier"
	"CryptoSentinel/internal/publisher"
	"CryptoSentinel/internal/recorder"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// ErrNotReady is returned while some symbol lacks its minimum candle window.
var ErrNotReady = errors.New("market data not ready")

// Market is the read side of the market-data pipeline.
type Market interface {
	Readiness() (ready []string, total int)
	LatestPrices(ctx context.Context) map[string]float64
	BuildSnapshots(prices map[string]float64) map[string]model.MarketSnapshot
}

// Options tunes the cycle loop.
type Options struct {
	Interval             time.Duration
	MaxLeverage          int
	MaxConsecutiveErrors int
	DataRetry            time.Duration
	Cooldown             time.Duration
	BackoffStep          time.Duration
	BackoffMax           time.Duration
}

// DefaultOptions returns a 30 minute cycle with the standard error policy.
func DefaultOptions() Options {
	return Options{
		Interval:             30 * time.Minute,
		MaxLeverage:          20,
		MaxConsecutiveErrors: 10,
		DataRetry:            10 * time.Second,
		Cooldown:             60 * time.Second,
		BackoffStep:          30 * time.Second,
		BackoffMax:           5 * time.Minute,
	}
}

// Orchestrator runs the trading cycle: exit plans first, then the decision.
type Orchestrator struct {
	Market    Market
	Ledger    *ledger.Ledger
	Plans     *exitplan.Engine
	Maker     decision.Maker
	Recorder  recorder.Recorder
	Notifier  notifier.Notifier
	Publisher publisher.Publisher
	Metrics   *metrics.Metrics
	Health    *metrics.Health
	Options   Options

	// Sleep is swapped in tests.
	Sleep func(ctx context.Context, d time.Duration) error

	log zerolog.Logger
}

// NewOrchestrator wires an orchestrator with no-op collaborators where nil.
func NewOrchestrator(market Market, l *ledger.Ledger, plans *exitplan.Engine, maker decision.Maker, opts Options, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		Market:    market,
		Ledger:    l,
		Plans:     plans,
		Maker:     maker,
		Recorder:  recorder.NewNoopRecorder(),
		Notifier:  notifier.Nop{},
		Publisher: publisher.Nop{},
		Health:    metrics.NewHealth(),
		Options:   opts,
		Sleep:     sleepCtx,
		log:       log.With().Str("component", "orchestrator").Logger(),
	}
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	ID       string
	Ready    int
	Total    int
	Forced   []model.ForcedClose
	Decision decision.Decision
	Executed bool
	Fill     *model.Fill
	// Degraded is set when the cycle completed but the decision or its
	// execution failed.
	Degraded error
	Account  model.AccountState
}

// RunCycle performs one full cycle. Exit plans are enforced on every cycle
// that has prices, before the readiness gate and before a new decision is
// requested. The account is re-read after every ledger mutation.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleResult, error) {
	res := CycleResult{ID: ulid.Make().String()}
	log := o.log.With().Str("cycle_id", res.ID).Logger()

	ready, total := o.Market.Readiness()
	res.Ready, res.Total = len(ready), total
	o.Metrics.SetReady(len(ready))
	o.Health.SetReadiness(len(ready), total)

	prices := o.Market.LatestPrices(ctx)
	if len(prices) == 0 {
		return res, fmt.Errorf("latest prices: %w", collector.ErrDataUnavailable)
	}

	res.Forced = o.Plans.Enforce(o.Ledger, prices)
	for _, fc := range res.Forced {
		o.recordForcedClose(res.ID, fc)
	}

	log.Info().Msgf("%d/%d symbols ready", len(ready), total)
	if len(ready) < total {
		if len(res.Forced) > 0 {
			res.Account = o.Ledger.State(prices)
			o.persist(ctx, res.ID, nil, res.Account)
		}
		return res, fmt.Errorf("%w: %d/%d symbols ready", ErrNotReady, len(ready), total)
	}

	snapshots := o.Market.BuildSnapshots(prices)
	if len(snapshots) == 0 {
		return res, fmt.Errorf("snapshots: %w", collector.ErrDataUnavailable)
	}
	for _, snap := range snapshots {
		if err := o.Recorder.RecordMarketSnapshot(snap); err != nil {
			log.Error().Err(err).Str("symbol", snap.Symbol).Msg("record market snapshot")
		}
	}

	d, err := o.Maker.Decide(ctx, snapshots, o.Ledger.State(prices))
	if err != nil {
		log.Error().Err(err).Msg("decision failed, holding")
		res.Degraded = fmt.Errorf("decide: %w", err)
		d = decision.Hold("decision unavailable: " + err.Error())
	} else {
		res.Fill, err = o.execute(res.ID, d, prices)
		if err != nil {
			log.Warn().Err(err).Str("action", string(d.Action)).Str("asset", d.Asset).Msg("decision not executed")
			res.Degraded = fmt.Errorf("execute: %w", err)
		} else {
			res.Executed = true
		}
	}
	res.Decision = d
	if err := o.Recorder.RecordDecision(&recorder.DecisionRecord{
		CycleID:    res.ID,
		Action:     string(d.Action),
		Asset:      d.Asset,
		Payload:    d,
		Reasoning:  d.Reasoning,
		Confidence: d.Confidence,
		Executed:   res.Executed,
	}); err != nil {
		log.Error().Err(err).Msg("record decision")
	}

	res.Account = o.Ledger.State(prices)
	o.persist(ctx, res.ID, snapshots, res.Account)

	log.Info().
		Str("action", string(d.Action)).
		Bool("executed", res.Executed).
		Int("forced_closes", len(res.Forced)).
		Float64("total_value", res.Account.TotalValue).
		Float64("roi", res.Account.ROI).
		Msg("cycle complete")
	return res, nil
}

// execute applies a decision to the ledger and maintains exit plans.
func (o *Orchestrator) execute(cycleID string, d decision.Decision, prices map[string]float64) (*model.Fill, error) {
	if err := d.Validate(o.Options.MaxLeverage); err != nil {
		return nil, err
	}
	if d.Action == decision.ActionHold {
		o.updatePlanOnHold(d, prices)
		return nil, nil
	}

	price, ok := prices[d.Asset]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("%s: %w", d.Asset, collector.ErrDataUnavailable)
	}

	var (
		fill model.Fill
		err  error
	)
	switch d.Action {
	case decision.ActionOpenLong:
		fill, err = o.openLong(d, price)
	case decision.ActionOpenShort:
		_, err = o.Ledger.Open(d.Asset, false, d.AmountUSD, price, d.Leverage)
	case decision.ActionClose:
		fill, err = o.Ledger.CloseAll(d.Asset, price)
		if err == nil {
			o.Plans.Cancel(d.Asset)
		}
	}

	o.Metrics.Trade(string(d.Action), err == nil)
	rec := &recorder.TradeRecord{
		CycleID:   cycleID,
		Action:    string(d.Action),
		Asset:     d.Asset,
		Price:     price,
		AmountUSD: d.AmountUSD,
		Leverage:  d.Leverage,
		Reasoning: d.Reasoning,
		Success:   err == nil,
	}
	if err != nil {
		rec.Error = err.Error()
		o.recordTrade(rec)
		return nil, err
	}
	rec.AmountUSD = fill.AmountUSD
	rec.Leverage = fill.Leverage
	rec.PnL = fill.PnL
	rec.PnLPct = fill.PnLPct
	o.recordTrade(rec)
	o.notify(notifier.FormatTrade(string(d.Action), fill, d.Reasoning))
	return &fill, nil
}

// openLong refuses to open without a valid exit plan, then installs the
// plan at the position's averaged entry price.
func (o *Orchestrator) openLong(d decision.Decision, price float64) (model.Fill, error) {
	if d.ExitPlan == nil {
		return model.Fill{}, fmt.Errorf("%w: open_long without exit plan", exitplan.ErrInvalidExitPlan)
	}
	plan := d.ExitPlan.ToModel(d.Asset, price)
	if err := exitplan.Validate(plan); err != nil {
		return model.Fill{}, err
	}

	fill, err := o.Ledger.Open(d.Asset, true, d.AmountUSD, price, d.Leverage)
	if err != nil {
		return model.Fill{}, err
	}
	if pos, ok := o.Ledger.Position(d.Asset); ok {
		plan.EntryPrice = pos.EntryPrice
	}
	if _, err := o.Plans.Set(plan); err != nil {
		o.log.Error().Err(err).Str("symbol", d.Asset).Msg("exit plan rejected after open")
	}
	return fill, nil
}

// updatePlanOnHold replaces the plan of an open position when a hold
// carries a new exit plan.
func (o *Orchestrator) updatePlanOnHold(d decision.Decision, prices map[string]float64) {
	if d.ExitPlan == nil || d.Asset == "" {
		return
	}
	pos, ok := o.Ledger.Position(d.Asset)
	if !ok {
		return
	}
	if _, err := o.Plans.Set(d.ExitPlan.ToModel(d.Asset, pos.EntryPrice)); err != nil {
		o.log.Warn().Err(err).Str("symbol", d.Asset).Msg("exit plan update rejected")
		return
	}
	o.log.Info().Str("symbol", d.Asset).Float64("price", prices[d.Asset]).Msg("exit plan updated on hold")
}

func (o *Orchestrator) recordForcedClose(cycleID string, fc model.ForcedClose) {
	o.Metrics.ForcedClose(string(fc.TriggerType))
	rec := &recorder.TradeRecord{
		CycleID:   cycleID,
		Action:    "forced_close:" + string(fc.TriggerType),
		Asset:     fc.Symbol,
		Price:     fc.Price,
		Reasoning: fc.Reason,
		Success:   fc.Err == nil,
	}
	if fc.Err != nil {
		rec.Error = fc.Err.Error()
	}
	if fc.Fill != nil {
		rec.AmountUSD = fc.Fill.AmountUSD
		rec.Leverage = fc.Fill.Leverage
		rec.PnL = fc.Fill.PnL
		rec.PnLPct = fc.Fill.PnLPct
	}
	o.recordTrade(rec)
	o.notify(notifier.FormatForcedClose(fc))
}

func (o *Orchestrator) persist(ctx context.Context, cycleID string, snapshots map[string]model.MarketSnapshot, acct model.AccountState) {
	c := o.Ledger.Counters()
	if err := o.Recorder.RecordPortfolio(&recorder.PortfolioSnapshot{
		Time:          acct.UpdatedAt,
		TotalValue:    acct.TotalValue,
		Cash:          acct.Cash,
		Positions:     acct.Positions,
		ROI:           acct.ROI,
		TotalTrades:   c.TotalTrades,
		WinningTrades: c.WinningTrades,
		LosingTrades:  c.LosingTrades,
	}); err != nil {
		o.log.Error().Err(err).Msg("record portfolio")
	}
	if err := o.Publisher.Publish(ctx, cycleID, snapshots, acct); err != nil {
		o.log.Warn().Err(err).Msg("publish snapshots")
	}
	o.Metrics.SetAccount(acct.TotalValue, acct.Cash, len(acct.Positions), len(o.Plans.Active()))
}

func (o *Orchestrator) recordTrade(rec *recorder.TradeRecord) {
	if err := o.Recorder.RecordTrade(rec); err != nil {
		o.log.Error().Err(err).Msg("record trade")
	}
}

func (o *Orchestrator) notify(text string) {
	if err := o.Notifier.Send(text); err != nil {
		o.log.Error().Err(err).Msg("send notification")
	}
}

// Run loops RunCycle until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info().Dur("interval", o.Options.Interval).Msg("cycle loop started")
	errs := 0
	for {
		start := time.Now()
		res, err := o.RunCycle(ctx)
		o.Metrics.ObserveCycle(time.Since(start), err)
		if err == nil {
			o.Health.CycleDone(res.Degraded)
		} else {
			o.Health.CycleDone(err)
		}

		var wait time.Duration
		wait, errs = o.Options.nextDelay(res, err, errs)
		if err != nil {
			o.log.Warn().Err(err).Int("consecutive_errors", errs).Dur("retry_in", wait).Msg("cycle failed")
		}
		if o.Sleep(ctx, wait) != nil {
			o.log.Info().Msg("cycle loop stopped")
			return ctx.Err()
		}
	}
}

// nextDelay returns the wait before the next cycle and the updated
// consecutive-error count.
func (opt Options) nextDelay(res CycleResult, err error, errs int) (time.Duration, int) {
	if err != nil {
		errs++
		if errs >= opt.MaxConsecutiveErrors {
			return opt.Cooldown, 0
		}
		if errors.Is(err, ErrNotReady) || errors.Is(err, collector.ErrDataUnavailable) {
			return opt.DataRetry, errs
		}
		d := opt.BackoffStep * time.Duration(errs)
		if d > opt.BackoffMax {
			d = opt.BackoffMax
		}
		return d, errs
	}

	if res.Degraded == nil {
		return opt.Interval, 0
	}
	errs++
	if errs >= 5 {
		return opt.Interval * 2, errs
	}
	return opt.Interval, errs
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
