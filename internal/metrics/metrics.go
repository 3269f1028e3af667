package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the bot. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	CandlesAppended *prometheus.CounterVec // symbol, resolution
	FetchErrors     *prometheus.CounterVec // resolution, kind
	RateLimitWaits  prometheus.Counter
	StreamReconnect prometheus.Counter

	CycleDuration prometheus.Histogram
	CycleErrors   prometheus.Counter
	ForcedCloses  *prometheus.CounterVec // trigger
	Trades        *prometheus.CounterVec // action, outcome

	AccountValue  prometheus.Gauge
	AccountCash   prometheus.Gauge
	OpenPositions prometheus.Gauge
	ActivePlans   prometheus.Gauge
	ReadySymbols  prometheus.Gauge
}

// New creates all collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		CandlesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_candles_appended_total",
			Help: "Candles appended to the candle store",
		}, []string{"symbol", "resolution"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_fetch_errors_total",
			Help: "Market data fetch failures by kind",
		}, []string{"resolution", "kind"}),
		RateLimitWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_rate_limit_backoffs_total",
			Help: "Backoff waits caused by rate-limit responses",
		}),
		StreamReconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_price_stream_reconnects_total",
			Help: "Price stream reconnection attempts",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_cycle_duration_seconds",
			Help:    "Trading cycle latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_cycle_errors_total",
			Help: "Trading cycles that ended in error",
		}),
		ForcedCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_forced_closes_total",
			Help: "Positions closed by exit plans",
		}, []string{"trigger"}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_trades_total",
			Help: "Executed decisions by action and outcome",
		}, []string{"action", "outcome"}),
		AccountValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_account_total_value_usd",
			Help: "Account total value",
		}),
		AccountCash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_account_cash_usd",
			Help: "Free cash",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_open_positions",
			Help: "Open positions",
		}),
		ActivePlans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_active_exit_plans",
			Help: "Active exit plans",
		}),
		ReadySymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_ready_symbols",
			Help: "Symbols with enough candles on every resolution",
		}),
	}
	m.Registry.MustRegister(
		m.CandlesAppended, m.FetchErrors, m.RateLimitWaits, m.StreamReconnect,
		m.CycleDuration, m.CycleErrors, m.ForcedCloses, m.Trades,
		m.AccountValue, m.AccountCash, m.OpenPositions, m.ActivePlans, m.ReadySymbols,
	)
	return m
}

func (m *Metrics) CandleAppended(symbol, resolution string) {
	if m == nil {
		return
	}
	m.CandlesAppended.WithLabelValues(symbol, resolution).Inc()
}

func (m *Metrics) FetchError(resolution, kind string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(resolution, kind).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitWaits.Inc()
}

func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.StreamReconnect.Inc()
}

func (m *Metrics) ObserveCycle(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
	if err != nil {
		m.CycleErrors.Inc()
	}
}

func (m *Metrics) ForcedClose(trigger string) {
	if m == nil {
		return
	}
	m.ForcedCloses.WithLabelValues(trigger).Inc()
}

func (m *Metrics) Trade(action string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failed"
	}
	m.Trades.WithLabelValues(action, outcome).Inc()
}

// SetAccount updates the account gauges.
func (m *Metrics) SetAccount(total, cash float64, positions, plans int) {
	if m == nil {
		return
	}
	m.AccountValue.Set(total)
	m.AccountCash.Set(cash)
	m.OpenPositions.Set(float64(positions))
	m.ActivePlans.Set(float64(plans))
}

func (m *Metrics) SetReady(n int) {
	if m == nil {
		return
	}
	m.ReadySymbols.Set(float64(n))
}

// Health tracks liveness details reported on /healthz.
type Health struct {
	mu          sync.RWMutex
	started     time.Time
	lastCycle   time.Time
	lastError   string
	readySymbol int
	totalSymbol int
}

// NewHealth creates a Health tracker.
func NewHealth() *Health {
	return &Health{started: time.Now()}
}

// CycleDone records the outcome of a trading cycle.
func (h *Health) CycleDone(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCycle = time.Now()
	h.lastError = ""
	if err != nil {
		h.lastError = err.Error()
	}
}

// SetReadiness records how many symbols passed the readiness gate.
func (h *Health) SetReadiness(ready, total int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readySymbol = ready
	h.totalSymbol = total
}

// ServeHTTP writes the health status as JSON.
func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	body := map[string]any{
		"status":        "ok",
		"uptime":        time.Since(h.started).Round(time.Second).String(),
		"ready_symbols": h.readySymbol,
		"total_symbols": h.totalSymbol,
		"last_error":    h.lastError,
	}
	if !h.lastCycle.IsZero() {
		body["last_cycle"] = h.lastCycle.UTC().Format(time.RFC3339)
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// Server exposes /metrics and /healthz.
type Server struct {
	srv *http.Server
}

// Serve starts the HTTP server in the background.
func Serve(addr string, m *Metrics, h *Health) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return &Server{srv: srv}
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
