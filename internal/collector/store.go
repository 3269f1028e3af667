package collector

import (
	"sync"

	"CryptoSentinel/internal/model"
)

type seriesKey struct {
	symbol string
	res    model.Resolution
}

// series is one bounded FIFO guarded by its own lock.
type series struct {
	mu      sync.RWMutex
	candles []model.Candle
	limit   int
}

// CandleStore holds a bounded candle sequence per (symbol, resolution).
// Each sequence has its own lock, so a poller appending to one never blocks
// readers of another.
type CandleStore struct {
	mu     sync.RWMutex
	series map[seriesKey]*series
}

// NewCandleStore creates an empty store.
func NewCandleStore() *CandleStore {
	return &CandleStore{series: make(map[seriesKey]*series)}
}

func (s *CandleStore) get(symbol string, res model.Resolution, create bool) *series {
	key := seriesKey{symbol: symbol, res: res}
	s.mu.RLock()
	ser := s.series[key]
	s.mu.RUnlock()
	if ser != nil || !create {
		return ser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ser = s.series[key]; ser == nil {
		ser = &series{limit: res.Retention()}
		s.series[key] = ser
	}
	return ser
}

// Append adds c to the tail. It is a no-op, returning false, when the tail
// already has the same or a later open time. The oldest candle is evicted
// once the resolution's retention cap is exceeded.
func (s *CandleStore) Append(symbol string, res model.Resolution, c model.Candle) bool {
	ser := s.get(symbol, res, true)
	ser.mu.Lock()
	defer ser.mu.Unlock()

	if n := len(ser.candles); n > 0 && ser.candles[n-1].OpenTime >= c.OpenTime {
		return false
	}
	ser.candles = append(ser.candles, c)
	if over := len(ser.candles) - ser.limit; ser.limit > 0 && over > 0 {
		kept := make([]model.Candle, ser.limit, ser.limit+1)
		copy(kept, ser.candles[over:])
		ser.candles = kept
	}
	return true
}

// AppendAll appends candles in order and returns how many were accepted.
func (s *CandleStore) AppendAll(symbol string, res model.Resolution, candles []model.Candle) int {
	n := 0
	for _, c := range candles {
		if s.Append(symbol, res, c) {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the sequence, oldest first.
func (s *CandleStore) Snapshot(symbol string, res model.Resolution) []model.Candle {
	ser := s.get(symbol, res, false)
	if ser == nil {
		return nil
	}
	ser.mu.RLock()
	defer ser.mu.RUnlock()
	out := make([]model.Candle, len(ser.candles))
	copy(out, ser.candles)
	return out
}

// Len returns the number of stored candles.
func (s *CandleStore) Len(symbol string, res model.Resolution) int {
	ser := s.get(symbol, res, false)
	if ser == nil {
		return 0
	}
	ser.mu.RLock()
	defer ser.mu.RUnlock()
	return len(ser.candles)
}

// Last returns the newest candle.
func (s *CandleStore) Last(symbol string, res model.Resolution) (model.Candle, bool) {
	ser := s.get(symbol, res, false)
	if ser == nil {
		return model.Candle{}, false
	}
	ser.mu.RLock()
	defer ser.mu.RUnlock()
	if len(ser.candles) == 0 {
		return model.Candle{}, false
	}
	return ser.candles[len(ser.candles)-1], true
}
