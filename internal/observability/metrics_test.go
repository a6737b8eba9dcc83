package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTurnCounts(t *testing.T) {
	m := NewMetrics()
	m.ObserveTurn("created", "ok")
	m.ObserveTurn("created", "ok")
	m.ObserveTurn("", "invalid")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("created", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("none", "invalid")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.ObserveGeneration(150*time.Millisecond, errors.New("boom"))
	m.ObserveHTTP(http.MethodPost, "/api/character-chat", http.StatusOK, 10*time.Millisecond)
	m.RegisterSessionGauge(func() float64 { return 3 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `animo_generation_duration_seconds_count{outcome="error"} 1`))
	assert.True(t, strings.Contains(body, `animo_http_requests_total{method="POST",route="/api/character-chat",status="200"} 1`))
	assert.True(t, strings.Contains(body, "animo_chat_sessions 3"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("reset", "ok")
	m.ObserveGeneration(time.Second, nil)
	m.ObserveHTTP(http.MethodGet, "/", 200, time.Millisecond)
	m.RegisterSessionGauge(func() float64 { return 0 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
