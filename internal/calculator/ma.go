package calculator

import "CryptoSentinel/internal/model"

// SlopeLookback is the distance, in candles, between the two SMAs compared
// by CalculateSMASlope.
const SlopeLookback = 5

// CalculateSMA computes the simple moving average of the last period prices.
func CalculateSMA(prices []float64, period int) model.Reading {
	if period <= 0 || len(prices) < period {
		return model.NotReady
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return model.ReadingOf(sum / float64(period))
}

// CalculateEMA computes the exponential moving average with smoothing factor
// 2/(period+1), seeded by the first price rather than an SMA so the value
// matches a rolling EMA recomputed over the whole series.
func CalculateEMA(prices []float64, period int) model.Reading {
	if period <= 0 || len(prices) < period {
		return model.NotReady
	}
	series := emaSeries(prices, period)
	return model.ReadingOf(series[len(series)-1])
}

func emaSeries(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	if len(prices) == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = alpha*prices[i] + (1-alpha)*out[i-1]
	}
	return out
}

// CalculateSMASlope returns the percentage change between the current SMA and
// the SMA computed lookback points earlier.
func CalculateSMASlope(prices []float64, period, lookback int) model.Reading {
	if lookback <= 0 || len(prices) < period+lookback {
		return model.NotReady
	}
	current := CalculateSMA(prices, period)
	previous := CalculateSMA(prices[:len(prices)-lookback], period)
	if !current.Ready || !previous.Ready || previous.Value == 0 {
		return model.NotReady
	}
	return model.ReadingOf((current.Value - previous.Value) / previous.Value * 100)
}
