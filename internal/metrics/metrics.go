// Package metrics holds the prometheus instruments for webhooks, call routing and notifications.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"voice-orchestrator/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhook outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeMalformed = "malformed"
	OutcomeError     = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	webhooks      *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	voicemails    *prometheus.CounterVec
	notifications *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

// New registers every instrument on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_webhooks_total",
			Help: "Provider callbacks handled, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_routing_decisions_total",
			Help: "Call flow steps returned to the provider, by action.",
		}, []string{"action"}),
		voicemails: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_voicemails_created_total",
			Help: "Voicemails created, by the strategy that found the parent call.",
		}, []string{"matched_by"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_notifications_total",
			Help: "Notification jobs finished, by job and outcome.",
		}, []string{"job", "outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		}),
	}
}

func (m *Metrics) Webhook(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) Decision(action string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(action).Inc()
}

func (m *Metrics) VoicemailCreated(matchedBy string) {
	if m == nil {
		return
	}
	m.voicemails.WithLabelValues(matchedBy).Inc()
}

// JobOutcome matches worker.Config.OnOutcome.
func (m *Metrics) JobOutcome(job string, o worker.Outcome) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(job, string(o)).Inc()
}

// Middleware records request count, latency and in-flight requests.
// The route label is the matched template to keep cardinality low.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		m.httpRequests.With(labels).Inc()
		m.httpDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
