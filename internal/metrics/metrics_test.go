package metrics

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := New()
	m.CandleAppended("BTC", "3m")
	m.CandleAppended("BTC", "3m")
	m.ForcedClose("stop_loss")
	m.Trade("open_long", false)
	m.ObserveCycle(time.Second, errors.New("boom"))
	m.SetAccount(10500, 9000, 2, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CandlesAppended.WithLabelValues("BTC", "3m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForcedCloses.WithLabelValues("stop_loss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Trades.WithLabelValues("open_long", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CycleErrors))
	assert.Equal(t, 10500.0, testutil.ToFloat64(m.AccountValue))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpenPositions))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CandleAppended("BTC", "3m")
	m.ObserveCycle(time.Second, nil)
	m.SetReady(3)
}

func TestHealthServeHTTP(t *testing.T) {
	h := NewHealth()
	h.SetReadiness(4, 6)
	h.CycleDone(errors.New("decision timeout"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 4.0, body["ready_symbols"])
	assert.Equal(t, "decision timeout", body["last_error"])
	assert.Contains(t, body, "last_cycle")
}
