package collector

import (
	"context"
	"time"

	"CryptoSentinel/internal/calculator"
	"CryptoSentinel/internal/model"

	"github.com/rs/zerolog"
)

// priceFallback is the resolution order used when no live price exists.
var priceFallback = []model.Resolution{model.Res15m, model.Res1h, model.Res4h, model.Res3m}

// Collector turns CandleStore contents into market snapshots.
type Collector struct {
	Fetcher Fetcher
	Store   *CandleStore
	Prices  *PriceCache
	Symbols []string
	// PriceMaxAge is how old a streamed price may be before REST is used.
	PriceMaxAge time.Duration

	now func() time.Time
	log zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, store *CandleStore, prices *PriceCache, symbols []string, log zerolog.Logger) *Collector {
	return &Collector{
		Fetcher:     fetcher,
		Store:       store,
		Prices:      prices,
		Symbols:     symbols,
		PriceMaxAge: 30 * time.Second,
		now:         time.Now,
		log:         log.With().Str("component", "collector").Logger(),
	}
}

// Ready reports whether symbol holds its readiness window on every resolution.
func (c *Collector) Ready(symbol string) bool {
	for _, res := range model.AllResolutions {
		if c.Store.Len(symbol, res) < res.MinCandles() {
			return false
		}
	}
	return true
}

// Readiness returns the ready symbols and the total tracked.
func (c *Collector) Readiness() (ready []string, total int) {
	for _, s := range c.Symbols {
		if c.Ready(s) {
			ready = append(ready, s)
		}
	}
	return ready, len(c.Symbols)
}

// LatestPrices resolves a current price per symbol: a fresh streamed price,
// else the REST ticker, else the newest stored close.
func (c *Collector) LatestPrices(ctx context.Context) map[string]float64 {
	prices := map[string]float64{}
	if c.Prices != nil {
		prices = c.Prices.Fresh(c.Symbols, c.PriceMaxAge, c.now())
	}

	var missing []string
	for _, s := range c.Symbols {
		if _, ok := prices[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 && c.Fetcher != nil {
		fctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		rest, err := c.Fetcher.FetchLatestPrices(fctx, missing)
		cancel()
		if err != nil {
			c.log.Warn().Err(err).Strs("symbols", missing).Msg("latest price fetch failed, using last close")
		}
		for s, p := range rest {
			prices[s] = p
		}
	}

	for _, s := range c.Symbols {
		if _, ok := prices[s]; ok {
			continue
		}
		if p, ok := c.lastClose(s); ok {
			prices[s] = p
		}
	}
	return prices
}

func (c *Collector) lastClose(symbol string) (float64, bool) {
	for _, res := range priceFallback {
		if last, ok := c.Store.Last(symbol, res); ok {
			return last.Close, true
		}
	}
	return 0, false
}

// BuildSnapshot computes the indicator bundles for one symbol. A price <= 0
// falls back to the newest stored close.
func (c *Collector) BuildSnapshot(symbol string, price float64) (model.MarketSnapshot, error) {
	if price <= 0 {
		p, ok := c.lastClose(symbol)
		if !ok {
			return model.MarketSnapshot{}, ErrDataUnavailable
		}
		price = p
	}

	snap := model.MarketSnapshot{
		Symbol:      symbol,
		Price:       price,
		Bundles:     make(map[model.Resolution]model.IndicatorBundle, len(model.AllResolutions)),
		GeneratedAt: c.now(),
	}
	for _, res := range model.AllResolutions {
		snap.Bundles[res] = calculator.Bundle(c.Store.Snapshot(symbol, res), price)
	}
	snap.Regime = snap.Bundles[model.Res4h].Regime
	h1 := snap.Bundles[model.Res1h]
	snap.Trend1h = calculator.ClassifyTrend(h1.EMA20, h1.EMA50)
	snap.Momentum3m = calculator.ClassifyMomentum(snap.Bundles[model.Res3m].MACD)
	snap.Momentum15m = calculator.ClassifyMomentum(snap.Bundles[model.Res15m].MACD)
	return snap, nil
}

// BuildSnapshots builds a snapshot for every symbol with data. Symbols with
// no price and no candles are left out.
func (c *Collector) BuildSnapshots(prices map[string]float64) map[string]model.MarketSnapshot {
	out := make(map[string]model.MarketSnapshot, len(c.Symbols))
	for _, s := range c.Symbols {
		snap, err := c.BuildSnapshot(s, prices[s])
		if err != nil {
			c.log.Debug().Str("symbol", s).Err(err).Msg("no snapshot")
			continue
		}
		out[s] = snap
	}
	return out
}
