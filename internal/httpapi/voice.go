package httpapi

import (
	"context"
	"errors"
	"net/http"

	"voice-orchestrator/internal/callevent"
	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/metrics"
	"voice-orchestrator/internal/routing"
	"voice-orchestrator/internal/telephony"
	"voice-orchestrator/internal/voicemail"
	"voice-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Incoming is the first sighting of an inbound call. A failed upsert is logged and the caller
// still hears the menu; the status callback creates the record later.
func (h Handlers) Incoming(c *gin.Context) {
	n, ok := decode[telephony.CallNotice](h, c, telephony.KindIncoming)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	_, err := h.Calls.RecordSighting(ctx, calls.Sighting{
		ProviderCallID: n.CallSid,
		Direction:      calls.DirectionInbound,
		FromNumber:     n.From,
		ToNumber:       n.To,
		Status:         calls.ParseStatus(n.CallStatus),
	})
	if err != nil {
		logger.FromGin(c).Error("call sighting failed", "err", err)
	}
	h.respond(c, h.Routing.Greeting(ctx, n))
}

func (h Handlers) Status(c *gin.Context) {
	s, ok := decode[telephony.StatusUpdate](h, c, telephony.KindStatus)
	if !ok {
		return
	}
	dir := calls.DirectionOutbound
	if telephony.IsInboundDirection(s.Direction) {
		dir = calls.DirectionInbound
	}

	_, err := h.Calls.ApplyStatus(c.Request.Context(), calls.Sighting{
		ProviderCallID:  s.CallSid,
		Direction:       dir,
		FromNumber:      s.From,
		ToNumber:        s.To,
		Status:          calls.ParseStatus(s.CallStatus),
		DurationSeconds: s.DurationSeconds,
		At:              s.Timestamp,
	})
	if err != nil {
		h.stateFailed(c, "status apply failed", err)
		return
	}
	h.ack(c)
}

// Recording is the async recordingStatusCallback.
func (h Handlers) Recording(c *gin.Context) {
	h.recording(c, telephony.KindRecording)
}

// VoicemailRecorded is the inline <Record action>; the caller is still on the line.
func (h Handlers) VoicemailRecorded(c *gin.Context) {
	h.recording(c, telephony.KindVoicemailRecorded)
}

func (h Handlers) recording(c *gin.Context, kind telephony.Kind) {
	r, ok := decode[telephony.RecordingDone](h, c, kind)
	if !ok {
		return
	}
	log := logger.FromGin(c)

	if r.RecordingStatus != "" && r.RecordingStatus != "completed" {
		log.Info("recording not completed; ignored", "recording_status", r.RecordingStatus)
		h.finishRecording(c, kind)
		return
	}

	a := voicemail.Arrival{
		ProviderRecordingID: r.RecordingSid,
		ProviderCallID:      r.CallSid,
		FromNumber:          r.From,
		DurationSeconds:     r.DurationSeconds,
		RecordingURL:        r.RecordingURL,
	}
	if r.Mailbox != "" {
		a.Mailbox = routing.NormalizeMailbox(r.Mailbox)
	}

	out, err := h.Voicemail.RecordingCompleted(c.Request.Context(), a)
	if err != nil {
		h.stateFailed(c, "voicemail correlation failed", err)
		return
	}
	if out.Inserted {
		h.Metrics.VoicemailCreated(out.MatchedBy)
	}
	h.finishRecording(c, kind)
}

func (h Handlers) finishRecording(c *gin.Context, kind telephony.Kind) {
	if kind == telephony.KindVoicemailRecorded {
		h.respond(c, h.Routing.RecordingSaved())
		return
	}
	h.ack(c)
}

func (h Handlers) Transcription(c *gin.Context) {
	t, ok := decode[telephony.TranscriptionDone](h, c, telephony.KindTranscription)
	if !ok {
		return
	}
	status := voicemail.TranscriptionCompleted
	if t.Failed() {
		status = voicemail.TranscriptionFailed
	}

	out, err := h.Voicemail.TranscriptionCompleted(c.Request.Context(), voicemail.Arrival{
		ProviderRecordingID: t.RecordingSid,
		ProviderCallID:      t.CallSid,
		FromNumber:          t.From,
		RecordingURL:        t.RecordingURL,
		TranscriptionText:   t.Text,
		TranscriptionStatus: status,
	})
	if err != nil {
		h.stateFailed(c, "transcription merge failed", err)
		return
	}
	if out.Created {
		h.Metrics.VoicemailCreated("transcription")
	}
	h.ack(c)
}

// gather adapts an orchestrator step that consumes a <Gather> result.
func (h Handlers) gather(step func(context.Context, telephony.GatherResult) routing.Decision) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, ok := decode[telephony.GatherResult](h, c, telephony.KindGather)
		if !ok {
			return
		}
		h.respond(c, step(c.Request.Context(), g))
	}
}

func (h Handlers) Menu(c *gin.Context)            { h.gather(h.Routing.Menu)(c) }
func (h Handlers) ConnectOperator(c *gin.Context) { h.gather(h.Routing.ConnectOperator)(c) }
func (h Handlers) ScreenCall(c *gin.Context)      { h.gather(h.Routing.ScreenCall)(c) }
func (h Handlers) ScreenResult(c *gin.Context)    { h.gather(h.Routing.ScreenResult)(c) }
func (h Handlers) TextBack(c *gin.Context)        { h.gather(h.Routing.TextBack)(c) }

func (h Handlers) DialStatus(c *gin.Context) {
	d, ok := decode[telephony.DialResult](h, c, telephony.KindDialResult)
	if !ok {
		return
	}
	h.respond(c, h.Routing.DialResult(c.Request.Context(), d))
}

// Event appends a provider-reported IVR event. Unknown names are kept as "other".
func (h Handlers) Event(c *gin.Context) {
	e, ok := decode[telephony.EventNotice](h, c, telephony.KindEvent)
	if !ok {
		return
	}
	err := h.Events.Append(c.Request.Context(), callevent.Reported(e.CallSid, e.Name, e.Digit, e.Mailbox, e.Detail))
	if err != nil {
		h.stateFailed(c, "call event append failed", err)
		return
	}
	h.Metrics.Webhook(endpoint(c), metrics.OutcomeOK)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PlayRecording streams a voicemail's audio. The id is the capability; no other auth applies.
func (h Handlers) PlayRecording(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromGin(c)

	v, err := h.Voicemail.Get(ctx, c.Param("id"))
	switch {
	case errors.Is(err, voicemail.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	case err != nil:
		log.Error("voicemail lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if v.RecordingURL == "" || h.Recordings == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "recording not available"})
		return
	}

	media, err := h.Recordings.FetchRecording(ctx, v.RecordingURL)
	switch {
	case errors.Is(err, telephony.ErrRecordingNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "recording not available"})
		return
	case err != nil:
		log.Warn("recording fetch failed", "voicemail_id", v.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "recording fetch failed"})
		return
	}
	defer media.Body.Close()

	ct := media.ContentType
	if ct == "" {
		ct = "audio/mpeg"
	}
	c.DataFromReader(http.StatusOK, media.ContentLength, ct, media.Body, map[string]string{
		"Cache-Control": "private, no-store",
	})
}
