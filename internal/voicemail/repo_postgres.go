package voicemail

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the voicemails table from migrations/0003_voicemails.sql,
// in particular UNIQUE (provider_recording_id).

type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const voicemailColumns = `id, provider_recording_id, provider_call_id, COALESCE(call_log_id::text, ''),
from_number, duration_seconds, mailbox, recording_url,
COALESCE(transcription_text, ''), COALESCE(transcription_status, ''), created_at, updated_at, notified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoicemail(row rowScanner) (VoicemailRecord, error) {
	var (
		v        VoicemailRecord
		notified sql.NullTime
	)
	if err := row.Scan(
		&v.ID,
		&v.ProviderRecordingID,
		&v.ProviderCallID,
		&v.CallRef,
		&v.FromNumber,
		&v.DurationSeconds,
		&v.Mailbox,
		&v.RecordingURL,
		&v.TranscriptionText,
		&v.TranscriptionStatus,
		&v.CreatedAt,
		&v.UpdatedAt,
		&notified,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VoicemailRecord{}, ErrNotFound
		}
		return VoicemailRecord{}, err
	}
	if notified.Valid {
		t := notified.Time
		v.NotifiedAt = &t
	}
	return v, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (VoicemailRecord, error) {
	q := `SELECT ` + voicemailColumns + ` FROM voicemails WHERE id = $1`
	return scanVoicemail(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) GetByRecordingID(ctx context.Context, providerRecordingID string) (VoicemailRecord, error) {
	q := `SELECT ` + voicemailColumns + ` FROM voicemails WHERE provider_recording_id = $1`
	return scanVoicemail(r.db.QueryRowContext(ctx, q, providerRecordingID))
}

func (r *PostgresRepo) InsertIfAbsent(ctx context.Context, v VoicemailRecord) (VoicemailRecord, bool, error) {
	if v.ProviderRecordingID == "" || v.ID == "" {
		return VoicemailRecord{}, false, ErrInvalidArgument
	}
	const q = `
INSERT INTO voicemails (
  id, provider_recording_id, provider_call_id, call_log_id, from_number, duration_seconds,
  mailbox, recording_url, transcription_text, transcription_status, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11
)
ON CONFLICT (provider_recording_id) DO NOTHING
RETURNING ` + voicemailColumns

	rec, err := scanVoicemail(r.db.QueryRowContext(ctx, q,
		v.ID,
		v.ProviderRecordingID,
		v.ProviderCallID,
		nullable(v.CallRef),
		v.FromNumber,
		v.DurationSeconds,
		v.Mailbox,
		v.RecordingURL,
		nullable(v.TranscriptionText),
		nullable(string(v.TranscriptionStatus)),
		v.CreatedAt,
	))
	if errors.Is(err, ErrNotFound) {
		// DO NOTHING returns no row: another delivery inserted first.
		existing, err := r.GetByRecordingID(ctx, v.ProviderRecordingID)
		return existing, false, err
	}
	if err != nil {
		return VoicemailRecord{}, false, err
	}
	return rec, true, nil
}

func (r *PostgresRepo) FillGaps(ctx context.Context, providerRecordingID string, patch VoicemailRecord) (VoicemailRecord, error) {
	const q = `
UPDATE voicemails SET
  from_number = CASE WHEN from_number IN ('', 'unknown') AND $2 NOT IN ('', 'unknown')
                     THEN $2 ELSE from_number END,
  call_log_id = COALESCE(call_log_id, $3::uuid),
  provider_call_id = CASE WHEN provider_call_id = '' THEN $4 ELSE provider_call_id END,
  duration_seconds = CASE WHEN duration_seconds = 0 THEN $5 ELSE duration_seconds END,
  mailbox = CASE WHEN mailbox = '' THEN $6 ELSE mailbox END,
  recording_url = CASE WHEN recording_url = '' THEN $7 ELSE recording_url END,
  updated_at = $8
WHERE provider_recording_id = $1
RETURNING ` + voicemailColumns

	return scanVoicemail(r.db.QueryRowContext(ctx, q,
		providerRecordingID,
		patch.FromNumber,
		nullable(patch.CallRef),
		patch.ProviderCallID,
		patch.DurationSeconds,
		patch.Mailbox,
		patch.RecordingURL,
		r.clock().UTC(),
	))
}

func (r *PostgresRepo) ClaimNotification(ctx context.Context, providerRecordingID string) (bool, error) {
	const q = `
UPDATE voicemails SET notified_at = $2
WHERE provider_recording_id = $1 AND notified_at IS NULL
`
	res, err := r.db.ExecContext(ctx, q, providerRecordingID, r.clock().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) ApplyTranscription(ctx context.Context, providerRecordingID, text string, status TranscriptionStatus) (VoicemailRecord, bool, error) {
	const q = `
UPDATE voicemails
SET transcription_text = $2, transcription_status = $3, updated_at = $4
WHERE provider_recording_id = $1
  AND (transcription_status IS NULL OR transcription_status = 'pending')
RETURNING ` + voicemailColumns

	rec, err := scanVoicemail(r.db.QueryRowContext(ctx, q, providerRecordingID, text, status, r.clock().UTC()))
	if errors.Is(err, ErrNotFound) {
		return VoicemailRecord{}, false, nil
	}
	if err != nil {
		return VoicemailRecord{}, false, err
	}
	return rec, true, nil
}
