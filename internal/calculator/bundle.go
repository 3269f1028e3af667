package calculator

import "CryptoSentinel/internal/model"

// Bundle computes every indicator for one candle series. price is the
// symbol's current price, used for levels and regime.
func Bundle(candles []model.Candle, price float64) model.IndicatorBundle {
	closes := model.Closes(candles)
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}

	b := model.IndicatorBundle{
		Candles:     len(candles),
		EMA20:       CalculateEMA(closes, 20),
		EMA50:       CalculateEMA(closes, 50),
		MACD:        CalculateMACD(closes),
		RSI7:        CalculateRSI(closes, 7),
		RSI14:       CalculateRSI(closes, 14),
		ATR14:       CalculateATR(highs, lows, closes, 14),
		SMA50:       CalculateSMA(closes, 50),
		SMA200:      CalculateSMA(closes, 200),
		SMA50Slope:  CalculateSMASlope(closes, 50, SlopeLookback),
		SMA200Slope: CalculateSMASlope(closes, 200, SlopeLookback),
		Structure:   ClassifyStructure(candles, StructureLookback),
	}
	if len(closes) > 0 {
		b.LastClose = model.ReadingOf(closes[len(closes)-1])
	}
	if price <= 0 && b.LastClose.Ready {
		price = b.LastClose.Value
	}
	b.Levels = DetectLevels(candles, price, LevelLookback, LevelTolerancePct)
	b.Regime = ClassifyRegime(price, b.SMA50, b.SMA200, b.SMA50Slope, b.SMA200Slope)
	return b
}
