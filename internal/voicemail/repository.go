package voicemail

import "context"

// Repository is the persistence contract for voicemails.
//
// Every write is one atomic statement keyed by provider_recording_id, so the two
// recording callbacks and the transcription callback may race freely.
type Repository interface {
	GetByID(ctx context.Context, id string) (VoicemailRecord, error)
	GetByRecordingID(ctx context.Context, providerRecordingID string) (VoicemailRecord, error)

	// InsertIfAbsent inserts v unless a row with the same recording id exists.
	// inserted is false when another delivery got there first; the stored row is returned either way.
	InsertIfAbsent(ctx context.Context, v VoicemailRecord) (rec VoicemailRecord, inserted bool, err error)

	// FillGaps copies fields from patch only where the stored row still has a placeholder.
	FillGaps(ctx context.Context, providerRecordingID string, patch VoicemailRecord) (VoicemailRecord, error)

	// ClaimNotification sets notified_at if it is still empty and reports whether this caller won.
	ClaimNotification(ctx context.Context, providerRecordingID string) (bool, error)

	// ApplyTranscription sets the transcript while the stored status is empty or pending.
	// applied is false when the row is missing or already transcribed.
	ApplyTranscription(ctx context.Context, providerRecordingID, text string, status TranscriptionStatus) (rec VoicemailRecord, applied bool, err error)
}
