package model

import (
	"fmt"
	"time"
)

// Resolution is the time-bucket size of a candle series.
type Resolution string

const (
	Res3m  Resolution = "3m"
	Res15m Resolution = "15m"
	Res1h  Resolution = "1h"
	Res4h  Resolution = "4h"
)

// AllResolutions lists every tracked resolution, finest first.
var AllResolutions = []Resolution{Res3m, Res15m, Res1h, Res4h}

// ParseResolution converts a string such as "15m" into a Resolution.
func ParseResolution(s string) (Resolution, error) {
	for _, r := range AllResolutions {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown resolution %q", s)
}

// Period returns the bucket length, which is also the poller cadence.
func (r Resolution) Period() time.Duration {
	switch r {
	case Res3m:
		return 3 * time.Minute
	case Res15m:
		return 15 * time.Minute
	case Res1h:
		return time.Hour
	case Res4h:
		return 4 * time.Hour
	}
	return 0
}

// Retention is the maximum number of candles kept per symbol.
func (r Resolution) Retention() int {
	switch r {
	case Res3m:
		return 80
	case Res15m:
		return 100
	case Res1h:
		return 150
	case Res4h:
		return 300
	}
	return 0
}

// Backfill is the number of candles requested when a poller starts.
// 4h needs 200 for SMA200 plus the slope lookback.
func (r Resolution) Backfill() int {
	switch r {
	case Res3m:
		return 80
	case Res15m:
		return 100
	case Res1h:
		return 150
	case Res4h:
		return 250
	}
	return 0
}

// MinCandles is the readiness window: a symbol is not handed to the
// decision-maker until every resolution holds at least this many candles.
func (r Resolution) MinCandles() int {
	switch r {
	case Res3m, Res15m:
		return 26
	case Res1h, Res4h:
		return 50
	}
	return 0
}

// Candle is one OHLCV bucket. OpenTime is the exchange-assigned open time in
// milliseconds since epoch.
type Candle struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Time returns OpenTime as a time.Time.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime)
}

// Closes extracts close prices in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
