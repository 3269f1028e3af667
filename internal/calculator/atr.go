package calculator

import (
	"math"

	"CryptoSentinel/internal/model"
)

// CalculateATR computes the average true range as a rolling mean of the last
// period true ranges. The first candle has no previous close, so its true
// range is high-low.
func CalculateATR(highs, lows, closes []float64, period int) model.Reading {
	n := len(closes)
	if period <= 0 || n < period || len(highs) != n || len(lows) != n {
		return model.NotReady
	}
	sum := 0.0
	for i := n - period; i < n; i++ {
		sum += trueRange(highs, lows, closes, i)
	}
	return model.ReadingOf(sum / float64(period))
}

func trueRange(highs, lows, closes []float64, i int) float64 {
	tr := highs[i] - lows[i]
	if i == 0 {
		return tr
	}
	prev := closes[i-1]
	if v := math.Abs(highs[i] - prev); v > tr {
		tr = v
	}
	if v := math.Abs(lows[i] - prev); v > tr {
		tr = v
	}
	return tr
}
