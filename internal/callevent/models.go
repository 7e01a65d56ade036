package callevent

import (
	"strings"
	"time"
)

// Event is an immutable record of one IVR decision point.
//
// Invariants:
// - Events are never updated or deleted.
// - ProviderCallID is a nullable reference: an event may arrive before its call record exists.
type Event struct {
	ID             string `json:"id" db:"id"`
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	Type EventType `json:"event_type" db:"event_type"`

	// Digit is the DTMF key pressed, when the event is a keypress.
	Digit string `json:"digit,omitempty" db:"digit"`
	// Mailbox is the routing label in effect (operator, clinical).
	Mailbox string `json:"mailbox,omitempty" db:"mailbox"`
	// Detail is free text for ops; unknown event names land here.
	Detail string `json:"detail,omitempty" db:"detail"`

	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}

type EventType string

const (
	EventTypeCallStarted    EventType = "call_started"
	EventTypeMenuDigit      EventType = "menu_digit"
	EventTypeTransfer       EventType = "transfer"
	EventTypeScreenResult   EventType = "screen_result"
	EventTypeDialResult     EventType = "dial_result"
	EventTypeTextBack       EventType = "text_back"
	EventTypeVoicemailStart EventType = "voicemail_start"
	EventTypeOther          EventType = "other"
)

var knownTypes = map[EventType]bool{
	EventTypeCallStarted:    true,
	EventTypeMenuDigit:      true,
	EventTypeTransfer:       true,
	EventTypeScreenResult:   true,
	EventTypeDialResult:     true,
	EventTypeTextBack:       true,
	EventTypeVoicemailStart: true,
}

// ParseType maps a reported event name to a known type.
// Unknown names become EventTypeOther and known is false so callers can keep the raw name.
func ParseType(name string) (t EventType, known bool) {
	n := EventType(strings.ToLower(strings.TrimSpace(name)))
	if knownTypes[n] {
		return n, true
	}
	return EventTypeOther, false
}
