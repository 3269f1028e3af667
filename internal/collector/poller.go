package collector

import (
	"context"
	"errors"
	"time"

	"CryptoSentinel/internal/metrics"
	"CryptoSentinel/internal/model"

	"github.com/rs/zerolog"
)

// Ticker is the subset of time.Ticker a poller needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// Poller keeps one resolution of the CandleStore current for every symbol.
type Poller struct {
	Resolution model.Resolution
	Symbols    []string
	Fetcher    Fetcher
	Store      *CandleStore
	Backoff    *Backoff
	Timeout    time.Duration
	Metrics    *metrics.Metrics

	// NewTicker and Sleep are swapped in tests.
	NewTicker func(time.Duration) Ticker
	Sleep     func(ctx context.Context, d time.Duration) error

	log zerolog.Logger
}

// NewPoller creates a poller with a 10s fetch timeout and a 2s..5m backoff.
func NewPoller(res model.Resolution, symbols []string, fetcher Fetcher, store *CandleStore, log zerolog.Logger) *Poller {
	return &Poller{
		Resolution: res,
		Symbols:    symbols,
		Fetcher:    fetcher,
		Store:      store,
		Backoff:    NewBackoff(2*time.Second, 5*time.Minute),
		Timeout:    10 * time.Second,
		NewTicker:  NewRealTicker,
		Sleep:      sleepCtx,
		log:        log.With().Str("component", "poller").Str("resolution", string(res)).Logger(),
	}
}

// Run backfills, then polls once per resolution period until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info().Int("symbols", len(p.Symbols)).Dur("period", p.Resolution.Period()).Msg("poller started")
	p.tick(ctx)

	t := p.NewTicker(p.Resolution.Period())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("poller stopped")
			return
		case <-t.C():
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if !p.Poll(ctx) {
		p.Backoff.Reset()
		return
	}
	d := p.Backoff.Next()
	p.Metrics.RateLimited()
	p.log.Warn().Dur("delay", d).Int("attempt", p.Backoff.Attempts()).Msg("rate limited, backing off")
	_ = p.Sleep(ctx, d)
}

// Poll fetches new candles for every symbol. Symbols below the readiness
// window get a full backfill; the rest get the single latest candle.
// Failures are logged and skipped. It reports whether the exchange
// rate-limited the poller, in which case the remaining symbols are skipped.
func (p *Poller) Poll(ctx context.Context) (rateLimited bool) {
	for _, sym := range p.Symbols {
		if ctx.Err() != nil {
			return false
		}
		limit := 1
		if p.Store.Len(sym, p.Resolution) < p.Resolution.MinCandles() {
			limit = p.Resolution.Backfill()
		}

		fctx, cancel := context.WithTimeout(ctx, p.Timeout)
		candles, err := p.Fetcher.FetchCandles(fctx, sym, p.Resolution, limit)
		cancel()
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				p.Metrics.FetchError(string(p.Resolution), "rate_limited")
				p.log.Warn().Str("symbol", sym).Err(err).Msg("fetch rate limited")
				return true
			}
			p.Metrics.FetchError(string(p.Resolution), "network")
			p.log.Warn().Str("symbol", sym).Err(err).Msg("fetch failed, skipping")
			continue
		}

		added := 0
		for _, c := range candles {
			if p.Store.Append(sym, p.Resolution, c) {
				added++
				p.Metrics.CandleAppended(sym, string(p.Resolution))
			}
		}
		if limit > 1 {
			p.log.Info().Str("symbol", sym).Int("added", added).Int("stored", p.Store.Len(sym, p.Resolution)).Msg("backfill")
		} else {
			p.log.Debug().Str("symbol", sym).Int("added", added).Msg("poll")
		}
	}
	return false
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
