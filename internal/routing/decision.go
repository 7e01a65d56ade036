package routing

import "voice-orchestrator/internal/telephony"

// Decision is the orchestrator's output for one callback.
//
// Doc is the instruction document returned to the provider. Action and Reason
// are for internal logs and metrics only; they never reach the caller.
type Decision struct {
	Action Action
	Reason string
	Doc    *telephony.Response
}

type Action string

const (
	ActionMenu       Action = "menu"
	ActionRing       Action = "ring"
	ActionScreen     Action = "screen"
	ActionBridge     Action = "bridge"
	ActionReleaseLeg Action = "release_leg"
	ActionOfferText  Action = "offer_text"
	ActionTextBack   Action = "text_back"
	ActionVoicemail  Action = "voicemail"
	ActionHangup     Action = "hangup"
)
