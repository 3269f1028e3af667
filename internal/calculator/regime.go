package calculator

import "CryptoSentinel/internal/model"

// Minimum SMA slopes, in percent, for a trending regime.
const (
	RegimeSlope50Threshold  = 0.1
	RegimeSlope200Threshold = 0.05
)

// ClassifyRegime labels the trend from price against SMA50/SMA200 and their
// slopes. Any missing input yields UNCLEAR.
func ClassifyRegime(price float64, sma50, sma200, slope50, slope200 model.Reading) model.Regime {
	if price <= 0 || !sma50.Ready || !sma200.Ready || !slope50.Ready || !slope200.Ready {
		return model.RegimeUnclear
	}
	switch {
	case price > sma50.Value && price > sma200.Value && sma50.Value > sma200.Value &&
		slope50.Value >= RegimeSlope50Threshold && slope200.Value >= RegimeSlope200Threshold:
		return model.RegimeUptrend
	case price < sma50.Value && price < sma200.Value && sma50.Value < sma200.Value &&
		slope50.Value <= -RegimeSlope50Threshold && slope200.Value <= -RegimeSlope200Threshold:
		return model.RegimeDowntrend
	}
	return model.RegimeRange
}

// ClassifyTrend compares EMA20 with EMA50.
func ClassifyTrend(ema20, ema50 model.Reading) model.Bias {
	if !ema20.Ready || !ema50.Ready {
		return model.BiasNeutral
	}
	switch {
	case ema20.Value > ema50.Value:
		return model.BiasBullish
	case ema20.Value < ema50.Value:
		return model.BiasBearish
	}
	return model.BiasNeutral
}

// ClassifyMomentum compares the MACD line with its signal.
func ClassifyMomentum(m model.MACDReading) model.Bias {
	if !m.Ready {
		return model.BiasNeutral
	}
	switch {
	case m.MACD > m.Signal:
		return model.BiasBullish
	case m.MACD < m.Signal:
		return model.BiasBearish
	}
	return model.BiasNeutral
}
