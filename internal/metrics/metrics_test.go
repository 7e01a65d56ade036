package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voice-orchestrator/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Webhook("status", OutcomeOK)
	m.Webhook("status", OutcomeOK)
	m.Webhook("status", OutcomeRejected)
	m.JobOutcome("sms.call", worker.OutcomeSent)
	m.Decision("ring")
	m.VoicemailCreated("exact_call_id")

	if got := testutil.ToFloat64(m.webhooks.WithLabelValues("status", OutcomeOK)); got != 2 {
		t.Fatalf("expected 2 ok webhooks, got %v", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("sms.call", "sent")); got != 1 {
		t.Fatalf("expected 1 sent sms, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Webhook("status", OutcomeOK)
	m.JobOutcome("sms.call", worker.OutcomeFailed)
	m.Decision("ring")
	m.VoicemailCreated("synthesized")
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `http_requests_total{method="GET",route="/healthz",status="200"} 1`) {
		t.Fatalf("expected request counter in exposition:\n%s", w.Body.String())
	}
}
