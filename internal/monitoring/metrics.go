package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for the HTTP surface and the assessment core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	generations     *prometheus.CounterVec
	llmAttempts     *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	evaluations     *prometheus.CounterVec
	embeddingCache  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 30},
			},
			[]string{"method", "endpoint"},
		),
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "question_generations_total",
				Help: "Generation requests by result source",
			},
			[]string{"source"},
		),
		llmAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_attempts_total",
				Help: "Calls to the text generation collaborator by outcome",
			},
			[]string{"outcome"},
		),
		llmLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_call_duration_seconds",
				Help:    "Latency of text generation calls",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"provider"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "result_cache_lookups_total",
				Help: "Result cache lookups by result",
			},
			[]string{"result"},
		),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evaluations_total",
				Help: "Evaluated submissions by item kind and scoring strategy",
			},
			[]string{"kind", "strategy"},
		),
		embeddingCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_cache_lookups_total",
				Help: "Reference embedding cache lookups by result",
			},
			[]string{"result"},
		),
		gatherer: reg,
	}
	reg.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.generations,
		m.llmAttempts,
		m.llmLatency,
		m.cacheLookups,
		m.evaluations,
		m.embeddingCache,
	)
	return m
}

func (m *Metrics) Generation(source string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(source).Inc()
}

func (m *Metrics) LLMAttempt(outcome string) {
	if m == nil {
		return
	}
	m.llmAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLLM(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(hitLabel(hit)).Inc()
}

func (m *Metrics) Evaluation(kind, strategy string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(kind, strategy).Inc()
}

func (m *Metrics) EmbeddingCacheLookup(hit bool) {
	if m == nil {
		return
	}
	m.embeddingCache.WithLabelValues(hitLabel(hit)).Inc()
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		m.requestCounter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Status(404) }
	}
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
