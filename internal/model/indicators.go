package model

import "time"

// Reading is a single indicator value. Ready is false when the input was
// shorter than the indicator's minimum window; Value is then meaningless.
type Reading struct {
	Value float64 `json:"value"`
	Ready bool    `json:"ready"`
}

// NotReady is the insufficient-data reading.
var NotReady = Reading{}

// ReadingOf wraps a defined value.
func ReadingOf(v float64) Reading {
	return Reading{Value: v, Ready: true}
}

// MACDReading holds the MACD line, its signal and the histogram.
type MACDReading struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Ready     bool    `json:"ready"`
}

// Level is a clustered support or resistance price.
type Level struct {
	Price   float64 `json:"price"`
	Touches int     `json:"touches"`
}

// Levels is the support/resistance result. Nearest* are nil when no level
// exists on that side of the current price.
type Levels struct {
	Support           []Level  `json:"support"`
	Resistance        []Level  `json:"resistance"`
	NearestSupport    *float64 `json:"nearest_support,omitempty"`
	NearestResistance *float64 `json:"nearest_resistance,omitempty"`
	Ready             bool     `json:"ready"`
}

// Regime classifies the prevailing trend.
type Regime string

const (
	RegimeUptrend   Regime = "UPTREND"
	RegimeDowntrend Regime = "DOWNTREND"
	RegimeRange     Regime = "RANGE"
	RegimeUnclear   Regime = "UNCLEAR"
)

// Structure is the swing-based price-structure classification.
type Structure struct {
	Trend    Regime  `json:"trend"`
	Strength float64 `json:"strength"`
	HH       int     `json:"hh"`
	HL       int     `json:"hl"`
	LL       int     `json:"ll"`
	LH       int     `json:"lh"`
	Ready    bool    `json:"ready"`
}

// Bias is a directional label derived from a pair of indicators.
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
)

// IndicatorBundle is everything computed for one symbol at one resolution.
type IndicatorBundle struct {
	Candles     int         `json:"candles"`
	LastClose   Reading     `json:"last_close"`
	EMA20       Reading     `json:"ema20"`
	EMA50       Reading     `json:"ema50"`
	MACD        MACDReading `json:"macd"`
	RSI7        Reading     `json:"rsi7"`
	RSI14       Reading     `json:"rsi14"`
	ATR14       Reading     `json:"atr14"`
	SMA50       Reading     `json:"sma50"`
	SMA200      Reading     `json:"sma200"`
	SMA50Slope  Reading     `json:"sma50_slope"`
	SMA200Slope Reading     `json:"sma200_slope"`
	Levels      Levels      `json:"levels"`
	Structure   Structure   `json:"structure"`
	Regime      Regime      `json:"regime"`
}

// MarketSnapshot is the immutable per-symbol view handed to the
// decision-maker and the exit-plan engine.
type MarketSnapshot struct {
	Symbol      string                         `json:"symbol"`
	Price       float64                        `json:"price"`
	Bundles     map[Resolution]IndicatorBundle `json:"bundles"`
	Regime      Regime                         `json:"regime"`
	Trend1h     Bias                           `json:"trend_1h"`
	Momentum3m  Bias                           `json:"momentum_3m"`
	Momentum15m Bias                           `json:"momentum_15m"`
	GeneratedAt time.Time                      `json:"generated_at"`
}
