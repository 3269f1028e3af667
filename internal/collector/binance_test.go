package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CryptoSentinel/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const klinesBody = `[
 [1700000180000,"101.0","103.0","100.5","102.0","12.5",1700000359999,"0",10,"0","0","0"],
 [1700000000000,"100.0","102.0","99.0","101.0","10.0",1700000179999,"0",10,"0","0","0"]
]`

func TestBinanceFetcher_FetchCandles(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(klinesBody))
	}))
	defer srv.Close()

	f := NewBinanceFetcher(srv.URL, "USDT", "", time.Second)
	now := time.UnixMilli(1700000600000)
	f.now = func() time.Time { return now }

	candles, err := f.FetchCandles(context.Background(), "btc", model.Res3m, 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, "BTCUSDT", gotQuery["symbol"])
	assert.Equal(t, "3m", gotQuery["interval"])
	assert.Equal(t, "2", gotQuery["limit"])
	assert.Equal(t, "1700000420000", gotQuery["endTime"])

	// sorted oldest first
	assert.Equal(t, int64(1700000000000), candles[0].OpenTime)
	assert.Equal(t, model.Candle{OpenTime: 1700000180000, Open: 101, High: 103, Low: 100.5, Close: 102, Volume: 12.5}, candles[1])
}

func TestBinanceFetcher_RateLimited(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusTeapot} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		f := NewBinanceFetcher(srv.URL, "USDT", "", time.Second)
		_, err := f.FetchCandles(context.Background(), "ETH", model.Res1h, 1)
		assert.True(t, errors.Is(err, ErrRateLimited), "status %d", code)
		srv.Close()
	}
}

func TestBinanceFetcher_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewBinanceFetcher(srv.URL, "USDT", "", time.Second)
	_, err := f.FetchCandles(context.Background(), "ETH", model.Res1h, 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRateLimited))
}

func TestBinanceFetcher_FetchLatestPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, `["BTCUSDT","ETHUSDT"]`, r.URL.Query().Get("symbols"))
		w.Write([]byte(`[{"symbol":"BTCUSDT","price":"65000.10"},{"symbol":"ETHUSDT","price":"bad"}]`))
	}))
	defer srv.Close()

	f := NewBinanceFetcher(srv.URL, "USDT", "", time.Second)
	prices, err := f.FetchLatestPrices(context.Background(), []string{"BTC", "ETH"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BTC": 65000.10}, prices)
}

func TestDecodeKlines_Malformed(t *testing.T) {
	_, err := decodeKlines([]byte(`[[1700000000000,"1","2"]]`))
	assert.Error(t, err)
	_, err = decodeKlines([]byte(`[[1700000000000,"x","2","1","1","1"]]`))
	assert.Error(t, err)
	_, err = decodeKlines([]byte(`{"code":-1121}`))
	assert.Error(t, err)
	_, err = decodeKlines([]byte(`[["1700000000000","1","2","1","1","1"]]`))
	assert.Error(t, err)
}
