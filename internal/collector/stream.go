package collector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"CryptoSentinel/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// PriceStream subscribes to Binance miniTicker streams and keeps a
// PriceCache current between candle closes.
type PriceStream struct {
	URL        string
	Symbols    []string
	QuoteAsset string
	Cache      *PriceCache
	Backoff    *Backoff
	Metrics    *metrics.Metrics

	log zerolog.Logger
}

// NewPriceStream creates a stream for symbols against baseURL, e.g.
// wss://stream.binance.com:9443.
func NewPriceStream(baseURL string, symbols []string, quoteAsset string, cache *PriceCache, log zerolog.Logger) *PriceStream {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s+quoteAsset) + "@miniTicker"
	}
	return &PriceStream{
		URL:        fmt.Sprintf("%s/stream?streams=%s", strings.TrimRight(baseURL, "/"), strings.Join(streams, "/")),
		Symbols:    symbols,
		QuoteAsset: strings.ToUpper(quoteAsset),
		Cache:      cache,
		Backoff:    NewBackoff(time.Second, time.Minute),
		log:        log.With().Str("component", "price_stream").Logger(),
	}
}

// Run consumes the stream, reconnecting with backoff, until ctx is done.
func (s *PriceStream) Run(ctx context.Context) {
	for ctx.Err() == nil {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		d := s.Backoff.Next()
		s.Metrics.Reconnected()
		s.log.Warn().Err(err).Dur("retry_in", d).Msg("price stream disconnected")
		if sleepCtx(ctx, d) != nil {
			return
		}
	}
}

func (s *PriceStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.log.Info().Strs("symbols", s.Symbols).Msg("price stream connected")
	s.Backoff.Reset()

	// Unblock ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.handle(msg); err != nil {
			s.log.Debug().Err(err).Msg("skip stream message")
		}
	}
}

// handle applies one combined-stream frame:
// {"stream":"btcusdt@miniTicker","data":{"E":...,"s":"BTCUSDT","c":"65000.1",...}}.
func (s *PriceStream) handle(msg []byte) error {
	if !gjson.ValidBytes(msg) {
		return fmt.Errorf("decode: invalid json")
	}
	f := gjson.GetManyBytes(msg, "stream", "data.s", "data.c", "data.E")
	symbol := f[1].String()
	if symbol == "" {
		return fmt.Errorf("no symbol in stream %q", f[0].String())
	}
	price, err := strconv.ParseFloat(f[2].String(), 64)
	if err != nil {
		return fmt.Errorf("parse price: %w", err)
	}
	at := time.Now()
	if e := f[3].Int(); e > 0 {
		at = time.UnixMilli(e)
	}
	s.Cache.Set(strings.TrimSuffix(strings.ToUpper(symbol), s.QuoteAsset), price, at)
	return nil
}
