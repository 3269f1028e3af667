package collector

import (
	"sync"
	"time"
)

type pricePoint struct {
	price float64
	at    time.Time
}

// PriceCache holds the latest streamed price per symbol.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
}

func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]pricePoint)}
}

// Set records price for symbol observed at at.
func (c *PriceCache) Set(symbol string, price float64, at time.Time) {
	if price <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = pricePoint{price: price, at: at}
}

// Fresh returns prices for symbols observed no earlier than now-maxAge.
func (c *PriceCache) Fresh(symbols []string, maxAge time.Duration, now time.Time) map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if p, ok := c.prices[s]; ok && now.Sub(p.at) <= maxAge {
			out[s] = p.price
		}
	}
	return out
}
