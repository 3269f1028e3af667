package calculator

import (
	"math"

	"CryptoSentinel/internal/model"
)

// StructureLookback is the number of candles scanned for structure swings.
const StructureLookback = 50

const structureSwingWindow = 3

// ClassifyStructure counts higher-high/higher-low against lower-low/lower-high
// transitions between consecutive swings (3 neighbours each side) over the
// last lookback candles.
func ClassifyStructure(candles []model.Candle, lookback int) model.Structure {
	window := tail(candles, lookback)
	if len(window) < 2*structureSwingWindow+1 {
		return model.Structure{Trend: model.RegimeUnclear}
	}

	highs, lows := swingPoints(window, structureSwingWindow)
	s := model.Structure{Ready: true}
	for i := 1; i < len(highs); i++ {
		switch {
		case highs[i].price > highs[i-1].price:
			s.HH++
		case highs[i].price < highs[i-1].price:
			s.LH++
		}
	}
	for i := 1; i < len(lows); i++ {
		switch {
		case lows[i].price > lows[i-1].price:
			s.HL++
		case lows[i].price < lows[i-1].price:
			s.LL++
		}
	}

	up := s.HH + s.HL
	down := s.LL + s.LH
	total := up + down
	switch {
	case total > 0 && up > down:
		s.Trend = model.RegimeUptrend
		s.Strength = float64(up) / float64(total) * 100
	case total > 0 && down > up:
		s.Trend = model.RegimeDowntrend
		s.Strength = float64(down) / float64(total) * 100
	default:
		s.Trend = model.RegimeRange
		if extremes := s.HH + s.LL; extremes > 0 {
			imbalance := math.Abs(float64(s.HH-s.LL)) / float64(extremes)
			s.Strength = (1 - imbalance) * 100
		}
	}
	return s
}
