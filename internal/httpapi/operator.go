package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"voice-orchestrator/internal/auth"
	"voice-orchestrator/internal/callevent"
	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/reporting"
	"voice-orchestrator/internal/voicemail"
	"voice-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

// GetCall returns the call record and its IVR events.
func (h Handlers) GetCall(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("providerCallId")

	rec, err := h.Calls.Get(ctx, id)
	switch {
	case errors.Is(err, calls.ErrNotFound), errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	case err != nil:
		logger.FromGin(c).Error("call lookup failed", "provider_call_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	events, err := h.Events.ListByCall(ctx, id)
	if err != nil {
		logger.FromGin(c).Error("call events lookup failed", "provider_call_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if events == nil {
		events = []callevent.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"call": rec, "events": events})
}

func (h Handlers) GetVoicemail(c *gin.Context) {
	v, err := h.Voicemail.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, voicemail.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "voicemail not found"})
		return
	case err != nil:
		logger.FromGin(c).Error("voicemail lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"voicemail":    v,
		"playback_url": h.Routing.URL("/voice/play-recording/"+v.ID, nil),
	})
}

// SoftphoneToken mints a voice access token for the browser softphone.
func (h Handlers) SoftphoneToken(c *gin.Context) {
	tok, err := h.Softphone.Mint(time.Now())
	switch {
	case errors.Is(err, auth.ErrSoftphoneNotConfigured):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "softphone not configured"})
		return
	case err != nil:
		logger.FromGin(c).Error("softphone token mint failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, tok)
}

const defaultReportWindow = 24 * time.Hour

// CallsReport summarizes call outcomes. from and to are RFC 3339; the default window is the last day.
func (h Handlers) CallsReport(c *gin.Context) {
	to := time.Now().UTC()
	from := to.Add(-defaultReportWindow)
	var err error
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
		from = to.Add(-defaultReportWindow)
	}
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
	}
	inboundOnly, _ := strconv.ParseBool(c.Query("inbound_only"))

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		Range:       reporting.TimeRange{From: from, To: to},
		InboundOnly: inboundOnly,
	})
	switch {
	case errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	case err != nil:
		logger.FromGin(c).Error("calls report failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}
