package calls

import (
	"errors"
	"strings"
	"time"
)

// CallRecord is one call as seen across all of its webhook deliveries.
//
// Invariant: ProviderCallID is unique. The row is created by whichever callback
// names the call first and is only updated afterward.
//
// NOTE: Disposition is derived here, never reported by the provider.
// An empty Disposition means "not yet decided" (NULL in Postgres).
type CallRecord struct {
	ID             string    `json:"id" db:"id"`
	ProviderCallID string    `json:"provider_call_id" db:"provider_call_id"`
	Direction      Direction `json:"direction" db:"direction"`

	FromNumber string `json:"from_number" db:"from_number"`
	ToNumber   string `json:"to_number" db:"to_number"`

	Status      CallStatus  `json:"status" db:"status"`
	Disposition Disposition `json:"disposition,omitempty" db:"disposition"`

	// Duration is the call duration in seconds.
	DurationSeconds int        `json:"duration_seconds" db:"duration_seconds"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// CallerIdentity is a contact id in the external directory. Lookup only.
	CallerIdentity string `json:"caller_identity,omitempty" db:"caller_identity"`

	// Synthetic marks parents fabricated so an orphan voicemail has somewhere to hang.
	Synthetic bool `json:"synthetic,omitempty" db:"synthetic"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Inbound reports whether a caller reached us.
func (c CallRecord) Inbound() bool { return c.Direction == DirectionInbound }

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusFailed     CallStatus = "failed"
	CallStatusCanceled   CallStatus = "canceled"
)

// ParseStatus normalizes a provider status. Unknown values are kept verbatim and are never terminal.
func ParseStatus(s string) CallStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	if s == "cancelled" {
		s = string(CallStatusCanceled)
	}
	return CallStatus(s)
}

// Terminal reports whether no further lifecycle transition is expected.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusNoAnswer, CallStatusBusy, CallStatusFailed, CallStatusCanceled:
		return true
	default:
		return false
	}
}

type Disposition string

const (
	DispositionAnswered  Disposition = "answered"
	DispositionMissed    Disposition = "missed"
	DispositionVoicemail Disposition = "voicemail"
	DispositionAbandoned Disposition = "abandoned"
)

// Label is the human wording used in notifications.
func (d Disposition) Label() string {
	switch d {
	case DispositionAnswered:
		return "Answered call"
	case DispositionMissed:
		return "Missed call"
	case DispositionVoicemail:
		return "New voicemail"
	case DispositionAbandoned:
		return "Abandoned call"
	default:
		return "Call"
	}
}

// DeriveDisposition classifies a terminal status. "completed" alone is ambiguous,
// so duration decides between answered and an instant drop.
// ok is false for non-terminal statuses.
func DeriveDisposition(status CallStatus, durationSeconds int) (d Disposition, ok bool) {
	switch status {
	case CallStatusCompleted:
		if durationSeconds > 0 {
			return DispositionAnswered, true
		}
		return DispositionMissed, true
	case CallStatusNoAnswer, CallStatusBusy:
		return DispositionMissed, true
	case CallStatusFailed, CallStatusCanceled:
		return DispositionAbandoned, true
	default:
		return "", false
	}
}

// Sighting is what one callback knows about a call.
type Sighting struct {
	ProviderCallID  string
	Direction       Direction
	FromNumber      string
	ToNumber        string
	Status          CallStatus
	DurationSeconds int
	At              time.Time

	// OverwriteStatus applies Status to an existing row (status callbacks, last write wins).
	// First-sighting notices only set it on insert so a late notice cannot rewind a finished call.
	OverwriteStatus bool
	Synthetic       bool
}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)
