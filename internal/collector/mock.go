package collector

import (
	"context"
	"sync"
	"time"

	"CryptoSentinel/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	mu sync.Mutex

	// Price is the base price used for generated candles and latest prices.
	Price float64
	// Candles, when set for a resolution, is returned (last `limit` items)
	// instead of generated data.
	Candles map[model.Resolution][]model.Candle
	// Prices overrides latest prices per symbol.
	Prices map[string]float64
	// Err, when set, is returned by every call.
	Err error

	Calls []MockCall
}

// MockCall records one FetchCandles invocation.
type MockCall struct {
	Symbol     string
	Resolution model.Resolution
	Limit      int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchCandles(_ context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Symbol: symbol, Resolution: res, Limit: limit})
	if m.Err != nil {
		return nil, m.Err
	}
	if data, ok := m.Candles[res]; ok {
		if len(data) > limit {
			data = data[len(data)-limit:]
		}
		return append([]model.Candle(nil), data...), nil
	}
	return generateMockCandles(m.Price, res, limit), nil
}

func (m *MockFetcher) FetchLatestPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if p, ok := m.Prices[s]; ok {
			out[s] = p
		} else if m.Price > 0 {
			out[s] = m.Price
		}
	}
	return out, nil
}

// generateMockCandles produces count candles ending at the last closed bucket.
func generateMockCandles(basePrice float64, res model.Resolution, count int) []model.Candle {
	period := res.Period()
	end := time.Now().Truncate(period).Add(-period)
	candles := make([]model.Candle, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		candles[i] = model.Candle{
			OpenTime: end.Add(-time.Duration(count-1-i) * period).UnixMilli(),
			Open:     p * 0.999,
			High:     p * 1.005,
			Low:      p * 0.995,
			Close:    p,
			Volume:   1000,
		}
	}
	return candles
}

// CallCount returns the number of FetchCandles calls so far.
func (m *MockFetcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent FetchCandles call.
func (m *MockFetcher) LastCall() MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return MockCall{}
	}
	return m.Calls[len(m.Calls)-1]
}
