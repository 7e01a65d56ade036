package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"voice-orchestrator/internal/auth"
	"voice-orchestrator/internal/callevent"
	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/metrics"
	"voice-orchestrator/internal/reporting"
	"voice-orchestrator/internal/routing"
	"voice-orchestrator/internal/telephony"
	"voice-orchestrator/internal/voicemail"
	"voice-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: decode the callback, call internal services, return TwiML or JSON.
type Handlers struct {
	Calls      *calls.Service
	Events     *callevent.Service
	Voicemail  *voicemail.Service
	Routing    *routing.Orchestrator
	Recordings RecordingFetcher
	Reports    *reporting.Service
	Softphone  *auth.SoftphoneMinter
	Metrics    *metrics.Metrics
	Ready      []Check
}

// RecordingFetcher opens recording media at the provider.
type RecordingFetcher interface {
	FetchRecording(ctx context.Context, recordingURL string) (telephony.Media, error)
}

// Check is one readiness probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

const contentTypeXML = "text/xml; charset=utf-8"

// endpoint is the metrics label for a webhook route.
func endpoint(c *gin.Context) string {
	p := c.FullPath()
	if p == "" {
		p = c.Request.URL.Path
	}
	return strings.TrimPrefix(p, "/voice/")
}

// decode parses the callback for kind. It writes the response itself and returns false when
// the handler should stop: a callback missing its correlation id is acknowledged and dropped.
func decode[T telephony.Callback](h Handlers, c *gin.Context, kind telephony.Kind) (T, bool) {
	var zero T
	log := logger.FromGin(c)

	cb, err := telephony.ParseCallback(c.Request, kind)
	switch {
	case errors.Is(err, telephony.ErrMissingCorrelationID):
		log.Warn("callback without correlation id dropped", "kind", kind)
		h.Metrics.Webhook(endpoint(c), metrics.OutcomeMalformed)
		c.Data(http.StatusOK, contentTypeXML, []byte(telephony.EmptyDocument))
		return zero, false
	case err != nil:
		log.Warn("callback decode failed", "kind", kind, "err", err)
		h.Metrics.Webhook(endpoint(c), metrics.OutcomeMalformed)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return zero, false
	}

	v, ok := cb.(T)
	if !ok {
		log.Error("callback decoded to unexpected type", "kind", kind)
		h.Metrics.Webhook(endpoint(c), metrics.OutcomeError)
		c.AbortWithStatus(http.StatusInternalServerError)
		return zero, false
	}
	return v, true
}

// respond renders an orchestrator decision.
func (h Handlers) respond(c *gin.Context, d routing.Decision) {
	body := telephony.EmptyDocument
	if d.Doc != nil {
		rendered, err := d.Doc.Render()
		if err != nil {
			logger.FromGin(c).Error("twiml render failed", "action", d.Action, "err", err)
			h.Metrics.Webhook(endpoint(c), metrics.OutcomeError)
			_ = c.Error(err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		body = rendered
	}
	logger.FromGin(c).Debug("call flow step", "action", d.Action, "reason", d.Reason)
	h.Metrics.Decision(string(d.Action))
	h.Metrics.Webhook(endpoint(c), metrics.OutcomeOK)
	c.Data(http.StatusOK, contentTypeXML, []byte(body))
}

// ack answers a callback that needs no further instructions.
func (h Handlers) ack(c *gin.Context) {
	h.Metrics.Webhook(endpoint(c), metrics.OutcomeOK)
	c.Data(http.StatusOK, contentTypeXML, []byte(telephony.EmptyDocument))
}

// stateFailed answers a failed state write. It is the only non-2xx a signed callback gets.
func (h Handlers) stateFailed(c *gin.Context, msg string, err error) {
	logger.FromGin(c).Error(msg, "err", err)
	h.Metrics.Webhook(endpoint(c), metrics.OutcomeError)
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "state write failed"})
}
