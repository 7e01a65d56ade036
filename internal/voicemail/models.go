// Package voicemail joins recording and transcription callbacks into exactly one voicemail per recording.
package voicemail

import (
	"errors"
	"time"
)

// MailboxOperator is assumed when the delivering callback did not say which mailbox recorded.
const MailboxOperator = "operator"

// UnknownNumber is the placeholder stored until a delivery reports the caller.
const UnknownNumber = "unknown"

// VoicemailRecord is one completed recording.
//
// Invariant: at most one row per ProviderRecordingID, even though the provider reports
// the same recording through two independent callbacks.
type VoicemailRecord struct {
	// ID is random and doubles as the playback capability token.
	ID                  string `json:"id" db:"id"`
	ProviderRecordingID string `json:"provider_recording_id" db:"provider_recording_id"`
	ProviderCallID      string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	// CallRef is the parent call_logs.id.
	CallRef string `json:"call_log_id,omitempty" db:"call_log_id"`

	FromNumber      string `json:"from_number" db:"from_number"`
	DurationSeconds int    `json:"duration_seconds" db:"duration_seconds"`
	Mailbox         string `json:"mailbox" db:"mailbox"`
	RecordingURL    string `json:"-" db:"recording_url"`

	TranscriptionText   string              `json:"transcription_text,omitempty" db:"transcription_text"`
	TranscriptionStatus TranscriptionStatus `json:"transcription_status,omitempty" db:"transcription_status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// NotifiedAt is set once the parent call is marked voicemail and the first notice is claimed.
	NotifiedAt *time.Time `json:"-" db:"notified_at"`
}

// MailboxLabel returns the mailbox, defaulting to the operator box.
func (v VoicemailRecord) MailboxLabel() string {
	if v.Mailbox == "" {
		return MailboxOperator
	}
	return v.Mailbox
}

type TranscriptionStatus string

const (
	TranscriptionPending   TranscriptionStatus = "pending"
	TranscriptionCompleted TranscriptionStatus = "completed"
	TranscriptionFailed    TranscriptionStatus = "failed"
)

// Arrival is what one recording or transcription callback knows.
type Arrival struct {
	ProviderRecordingID string
	ProviderCallID      string
	FromNumber          string
	DurationSeconds     int
	Mailbox             string
	RecordingURL        string
	At                  time.Time

	// Set only when a transcription callback is the first to name the recording.
	TranscriptionText   string
	TranscriptionStatus TranscriptionStatus
}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

func placeholder(number string) bool {
	return number == "" || number == UnknownNumber
}
