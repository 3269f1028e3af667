package collector

import (
	"context"
	"errors"

	"CryptoSentinel/internal/model"
)

var (
	// ErrRateLimited is returned when the exchange answers 418 or 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrDataUnavailable means no candle or price exists yet for a symbol.
	ErrDataUnavailable = errors.New("market data unavailable")
)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	// FetchCandles returns up to limit of the most recent closed candles,
	// oldest first.
	FetchCandles(ctx context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error)
	// FetchLatestPrices returns the last traded price per symbol.
	FetchLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	Name() string
}
