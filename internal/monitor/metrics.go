package monitor

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects service metrics for Prometheus
type Metrics struct {
	// Flow pipeline
	PrintsIngested *prometheus.CounterVec
	PrintsDropped  *prometheus.CounterVec
	BurstsEmitted  *prometheus.CounterVec

	// Chain polling
	ChainPolls     *prometheus.CounterVec
	ChainPollErrs  *prometheus.CounterVec
	ChainContracts *prometheus.GaugeVec

	// Bias output
	BiasVerdicts   *prometheus.CounterVec
	BiasConfidence *prometheus.GaugeVec
	NetGammaUSD    *prometheus.GaugeVec

	// API
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
}

// NewMetrics registers and returns the service metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PrintsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gexflow_prints_ingested_total",
			Help: "Trade prints accepted into the rolling window",
		}, []string{"underlying"}),
		PrintsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gexflow_prints_dropped_total",
			Help: "Trade prints rejected at the ingest boundary",
		}, []string{"underlying"}),
		BurstsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gexflow_bursts_emitted_total",
			Help: "Flow burst events emitted",
		}, []string{"underlying", "side"}),
		ChainPolls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gexflow_chain_polls_total",
			Help: "Option chain snapshot polls",
		}, []string{"underlying"}),
		ChainPollErrs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gexflow_chain_poll_errors_total",
			Help: "Failed option chain polls",
		}, []string{"underlying"}),
		ChainContracts: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gexflow_chain_contracts",
			Help: "Contracts in the latest chain snapshot",
		}, []string{"underlying"}),
		BiasVerdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gexflow_bias_verdicts_total",
			Help: "Bias verdicts computed, by direction",
		}, []string{"underlying", "bias"}),
		BiasConfidence: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gexflow_bias_confidence",
			Help: "Confidence of the latest bias verdict",
		}, []string{"underlying"}),
		NetGammaUSD: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gexflow_net_gamma_usd",
			Help: "Net dealer gamma inside the regime band, USD",
		}, []string{"underlying"}),
		apiRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gexflow_api_requests_total",
			Help: "API requests by route and status",
		}, []string{"method", "path", "status"}),
		apiDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gexflow_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Middleware records per-request API metrics
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.apiRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.apiDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
