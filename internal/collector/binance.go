package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"CryptoSentinel/internal/model"

	"github.com/tidwall/gjson"
)

// BinanceFetcher implements Fetcher using the Binance public REST API.
type BinanceFetcher struct {
	BaseURL    string
	QuoteAsset string
	Client     *http.Client
	// ClosedOnly bounds kline requests with endTime = now - period so the
	// still-forming candle is never returned.
	ClosedOnly bool

	now func() time.Time
}

// NewBinanceFetcher creates a new fetcher with optional proxy support.
func NewBinanceFetcher(baseURL, quoteAsset, proxyURL string, timeout time.Duration) *BinanceFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BinanceFetcher{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		QuoteAsset: strings.ToUpper(quoteAsset),
		ClosedOnly: true,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		now: time.Now,
	}
}

func (f *BinanceFetcher) Name() string { return "binance" }

func (f *BinanceFetcher) pair(symbol string) string {
	return strings.ToUpper(symbol) + f.QuoteAsset
}

func (f *BinanceFetcher) FetchCandles(ctx context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", f.pair(symbol))
	q.Set("interval", string(res))
	q.Set("limit", strconv.Itoa(limit))
	if f.ClosedOnly {
		q.Set("endTime", strconv.FormatInt(f.now().Add(-res.Period()).UnixMilli(), 10))
	}
	body, err := f.get(ctx, f.BaseURL+"/api/v3/klines?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, res, err)
	}
	candles, err := decodeKlines(body)
	if err != nil {
		return nil, fmt.Errorf("decode klines %s %s: %w", symbol, res, err)
	}
	return candles, nil
}

func (f *BinanceFetcher) FetchLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	pairs := make([]string, len(symbols))
	for i, s := range symbols {
		pairs[i] = f.pair(s)
	}
	raw, err := json.Marshal(pairs)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("symbols", string(raw))
	body, err := f.get(ctx, f.BaseURL+"/api/v3/ticker/price?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode prices: invalid json")
	}
	tickers := gjson.ParseBytes(body).Array()
	prices := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		p, err := strconv.ParseFloat(t.Get("price").String(), 64)
		if err != nil || p <= 0 {
			continue
		}
		prices[strings.TrimSuffix(t.Get("symbol").String(), f.QuoteAsset)] = p
	}
	return prices, nil
}

func (f *BinanceFetcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// decodeKlines parses Binance kline arrays:
// [openTime, "open", "high", "low", "close", "volume", closeTime, ...].
func decodeKlines(body []byte) ([]model.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid kline json")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("want kline array, got %s", root.Type)
	}
	rows := root.Array()
	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		fields := row.Array()
		if len(fields) < 6 {
			return nil, fmt.Errorf("row %d: want at least 6 fields, got %d", i, len(fields))
		}
		if fields[0].Type != gjson.Number {
			return nil, fmt.Errorf("row %d open time: not a number", i)
		}
		openTime := fields[0].Int()
		vals := make([]float64, 5)
		for j := range vals {
			v, err := strconv.ParseFloat(fields[j+1].String(), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d field %d: %w", i, j+1, err)
			}
			vals[j] = v
		}
		candles = append(candles, model.Candle{
			OpenTime: openTime,
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	// Ensure chronological order
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime < candles[j].OpenTime })
	return candles, nil
}
