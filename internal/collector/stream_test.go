package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPriceStream_URL(t *testing.T) {
	s := NewPriceStream("wss://stream.binance.com:9443/", []string{"BTC", "ETH"}, "USDT", NewPriceCache(), zerolog.Nop())
	assert.Equal(t, "wss://stream.binance.com:9443/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker", s.URL)
}

func TestPriceStream_Handle(t *testing.T) {
	cache := NewPriceCache()
	s := NewPriceStream("wss://example", []string{"BTC"}, "USDT", cache, zerolog.Nop())

	msg := `{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1700000000000,"s":"BTCUSDT","c":"65000.5"}}`
	require.NoError(t, s.handle([]byte(msg)))

	got := cache.Fresh([]string{"BTC"}, time.Minute, time.UnixMilli(1700000030000))
	assert.Equal(t, map[string]float64{"BTC": 65000.5}, got)

	assert.Error(t, s.handle([]byte(`{"stream":"x","data":{}}`)))
	assert.Error(t, s.handle([]byte(`{"stream":"x","data":{"s":"BTCUSDT","c":"nan?"}}`)))
	assert.Error(t, s.handle([]byte(`not json`)))
}

func TestPriceStream_RunAgainstServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"stream":"ethusdt@miniTicker","data":{"s":"ETHUSDT","c":"3200"}}`))
		// hold the connection until the client goes away
		conn.ReadMessage()
	}))
	defer srv.Close()

	cache := NewPriceCache()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewPriceStream(wsURL, []string{"ETH"}, "USDT", cache, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return cache.Fresh([]string{"ETH"}, time.Minute, time.Now())["ETH"] == 3200
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestPriceCache_Fresh(t *testing.T) {
	c := NewPriceCache()
	now := time.Now()
	c.Set("BTC", 100, now.Add(-10*time.Second))
	c.Set("ETH", 50, now.Add(-2*time.Minute))
	c.Set("SOL", 0, now)

	got := c.Fresh([]string{"BTC", "ETH", "SOL"}, 30*time.Second, now)
	assert.Equal(t, map[string]float64{"BTC": 100}, got)
}
