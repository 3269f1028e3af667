package calculator

import "CryptoSentinel/internal/model"

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// CalculateMACD computes the 12/26/9 MACD. Not ready below 26 prices.
func CalculateMACD(prices []float64) model.MACDReading {
	if len(prices) < macdSlow {
		return model.MACDReading{}
	}
	fast := emaSeries(prices, macdFast)
	slow := emaSeries(prices, macdSlow)
	line := make([]float64, len(prices))
	for i := range prices {
		line[i] = fast[i] - slow[i]
	}
	signal := emaSeries(line, macdSignal)

	last := len(prices) - 1
	return model.MACDReading{
		MACD:      line[last],
		Signal:    signal[last],
		Histogram: line[last] - signal[last],
		Ready:     true,
	}
}
