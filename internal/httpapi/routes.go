package httpapi

import (
	"voice-orchestrator/internal/routing"

	"github.com/gin-gonic/gin"
)

// RegisterVoice wires the provider webhooks. signed guards every state-bearing callback
// and every step of the ring chain; incoming, event and playback stay open.
func (h Handlers) RegisterVoice(r gin.IRouter, signed gin.HandlerFunc) {
	open := r.Group("")
	open.POST(routing.PathIncoming, h.Incoming)
	open.POST("/voice/event", h.Event)
	open.GET("/voice/play-recording/:id", h.PlayRecording)

	s := r.Group("", signed)
	s.POST("/voice/status", h.Status)
	s.POST(routing.PathRecording, h.Recording)
	s.POST(routing.PathVoicemailDone, h.VoicemailRecorded)
	s.POST(routing.PathTranscription, h.Transcription)
	s.POST(routing.PathMenu, h.Menu)
	s.POST(routing.PathConnectOperator, h.ConnectOperator)
	s.POST(routing.PathScreenCall, h.ScreenCall)
	s.POST(routing.PathScreenResult, h.ScreenResult)
	s.POST(routing.PathDialStatus, h.DialStatus)
	s.POST(routing.PathTextBack, h.TextBack)
}

// RegisterOperator wires the bearer-protected read API. guards run in order after authentication.
func (h Handlers) RegisterOperator(r gin.IRouter, authMW gin.HandlerFunc, readers, softphone gin.HandlerFunc) {
	v1 := r.Group("/v1", authMW)
	v1.GET("/calls/:providerCallId", readers, h.GetCall)
	v1.GET("/voicemails/:id", readers, h.GetVoicemail)
	v1.GET("/reports/calls", readers, h.CallsReport)
	v1.GET("/softphone/token", softphone, h.SoftphoneToken)
}

// RegisterHealth wires liveness and readiness.
func (h Handlers) RegisterHealth(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
}
