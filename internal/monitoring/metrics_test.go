package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Generation("llm")
		m.LLMAttempt("ok")
		m.CacheLookup(true)
		m.Evaluation("mcq", "exact")
		m.EmbeddingCacheLookup(false)
	})
}

func TestCountersAndEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	m.Generation("fallback")
	m.Generation("fallback")
	m.CacheLookup(false)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.generations.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", m.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `question_generations_total{source="fallback"} 2`)
	assert.Contains(t, w.Body.String(), `http_requests_total{endpoint="/ping",method="GET",status="200"} 1`)
}
