package calculator

import (
	"math"
	"sort"

	"CryptoSentinel/internal/model"
)

const (
	// LevelLookback is the number of candles scanned for swing points.
	LevelLookback = 100
	// LevelTolerancePct is the clustering distance, in percent of level price.
	LevelTolerancePct = 0.5

	levelSwingWindow = 2
	levelsPerSide    = 3
)

// DetectLevels finds support and resistance levels over the last lookback
// candles. Swing highs and lows (strictly beyond 2 neighbours each side) are
// clustered when within tolerancePct of the running cluster mean; clusters
// below or at price become support, above become resistance. Each side keeps
// its 3 most-touched levels.
func DetectLevels(candles []model.Candle, price float64, lookback int, tolerancePct float64) model.Levels {
	window := tail(candles, lookback)
	if len(window) < 2*levelSwingWindow+1 || price <= 0 {
		return model.Levels{}
	}

	var points []float64
	highs, lows := swingPoints(window, levelSwingWindow)
	for _, s := range highs {
		points = append(points, s.price)
	}
	for _, s := range lows {
		points = append(points, s.price)
	}

	var support, resistance []model.Level
	for _, lvl := range clusterLevels(points, tolerancePct) {
		if lvl.Price <= price {
			support = append(support, lvl)
		} else {
			resistance = append(resistance, lvl)
		}
	}
	support = topLevels(support, price)
	resistance = topLevels(resistance, price)

	out := model.Levels{Support: support, Resistance: resistance, Ready: true}
	for _, l := range support {
		if out.NearestSupport == nil || l.Price > *out.NearestSupport {
			p := l.Price
			out.NearestSupport = &p
		}
	}
	for _, l := range resistance {
		if out.NearestResistance == nil || l.Price < *out.NearestResistance {
			p := l.Price
			out.NearestResistance = &p
		}
	}
	return out
}

func clusterLevels(points []float64, tolerancePct float64) []model.Level {
	if len(points) == 0 {
		return nil
	}
	sorted := append([]float64(nil), points...)
	sort.Float64s(sorted)

	var levels []model.Level
	sum, count := sorted[0], 1
	for _, p := range sorted[1:] {
		mean := sum / float64(count)
		if math.Abs(p-mean)/mean*100 <= tolerancePct {
			sum += p
			count++
			continue
		}
		levels = append(levels, model.Level{Price: mean, Touches: count})
		sum, count = p, 1
	}
	return append(levels, model.Level{Price: sum / float64(count), Touches: count})
}

// topLevels ranks by touch count, breaking ties by distance to price.
func topLevels(levels []model.Level, price float64) []model.Level {
	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].Touches != levels[j].Touches {
			return levels[i].Touches > levels[j].Touches
		}
		return math.Abs(levels[i].Price-price) < math.Abs(levels[j].Price-price)
	})
	if len(levels) > levelsPerSide {
		levels = levels[:levelsPerSide]
	}
	return levels
}

type swing struct {
	index int
	price float64
}

// swingPoints returns candles whose high (low) is strictly above (below) the
// highs (lows) of w neighbours on each side, in time order.
func swingPoints(candles []model.Candle, w int) (highs, lows []swing) {
	for i := w; i < len(candles)-w; i++ {
		isHigh, isLow := true, true
		for k := 1; k <= w; k++ {
			if candles[i].High <= candles[i-k].High || candles[i].High <= candles[i+k].High {
				isHigh = false
			}
			if candles[i].Low >= candles[i-k].Low || candles[i].Low >= candles[i+k].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, swing{index: i, price: candles[i].High})
		}
		if isLow {
			lows = append(lows, swing{index: i, price: candles[i].Low})
		}
	}
	return highs, lows
}

func tail(candles []model.Candle, n int) []model.Candle {
	if n > 0 && len(candles) > n {
		return candles[len(candles)-n:]
	}
	return candles
}
