package voicemail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-orchestrator/internal/calls"
	"voice-orchestrator/pkg/logger"

	"github.com/google/uuid"
)

// Notifier receives the two voicemail notifications. Implementations must not block.
type Notifier interface {
	// VoicemailCreated fires once, on the recording delivery that wins the notification claim.
	VoicemailCreated(ctx context.Context, v VoicemailRecord)
	// VoicemailTranscribed fires once, when the transcript (or its failure) is recorded.
	VoicemailTranscribed(ctx context.Context, v VoicemailRecord)
}

// Service is the voicemail correlator.
//
// Invariants:
// - One VoicemailRecord per provider recording id, whichever callback arrives first.
// - The second delivery fills placeholders only; it never overwrites a good value.
// - The parent call is marked voicemail before the notification claim, so a failed
//   delivery leaves the claim open and its retry finishes the job.
type Service struct {
	repo     Repository
	calls    CallStore
	chain    Chain
	notifier Notifier
	clock    func() time.Time
}

func NewService(repo Repository, store CallStore, notifier Notifier) *Service {
	s := &Service{repo: repo, calls: store, notifier: notifier, clock: time.Now}
	s.chain = DefaultChain(store, func() time.Time { return s.clock() })
	return s
}

// Outcome reports what one recording delivery did.
type Outcome struct {
	Record   VoicemailRecord
	Inserted bool
	// Notified is true on the delivery that won the notification claim.
	Notified bool
	// MatchedBy names the strategy that found the parent call; empty on the update branch.
	MatchedBy string
}

// RecordingCompleted handles either recording-completion callback.
func (s *Service) RecordingCompleted(ctx context.Context, a Arrival) (Outcome, error) {
	out, err := s.correlate(ctx, a)
	if err != nil {
		return Outcome{}, err
	}
	claimed, err := s.finalize(ctx, out.Record)
	if err != nil {
		return Outcome{}, err
	}
	if claimed {
		out.Notified = true
		if s.notifier != nil {
			s.notifier.VoicemailCreated(ctx, out.Record)
		}
	}
	return out, nil
}

// TranscriptionOutcome reports what one transcription delivery did.
type TranscriptionOutcome struct {
	Record  VoicemailRecord
	Applied bool
	// Created is true when the transcription was the first callback to name the recording.
	Created bool
}

// TranscriptionCompleted merges a transcript into its voicemail and sends the transcript-bearing
// notification. A duplicate delivery is a no-op.
func (s *Service) TranscriptionCompleted(ctx context.Context, a Arrival) (TranscriptionOutcome, error) {
	if a.ProviderRecordingID == "" {
		return TranscriptionOutcome{}, ErrInvalidArgument
	}
	if a.TranscriptionStatus == "" {
		a.TranscriptionStatus = TranscriptionCompleted
	}
	log := logger.From(ctx).With("provider_recording_id", a.ProviderRecordingID)

	var created bool
	existing, err := s.repo.GetByRecordingID(ctx, a.ProviderRecordingID)
	switch {
	case errors.Is(err, ErrNotFound):
		// Transcription beat both recording callbacks: create a pending voicemail first.
		pending := a
		pending.TranscriptionText = ""
		pending.TranscriptionStatus = ""
		out, err := s.correlate(ctx, pending)
		if err != nil {
			return TranscriptionOutcome{}, err
		}
		existing, created = out.Record, out.Inserted
		if created {
			log.Info("voicemail created from transcription", "matched_by", out.MatchedBy)
		}
	case err != nil:
		return TranscriptionOutcome{}, fmt.Errorf("voicemail: lookup: %w", err)
	}

	// Claiming here suppresses the plain created notice; the transcript notice replaces it.
	if _, err := s.finalize(ctx, existing); err != nil {
		return TranscriptionOutcome{}, err
	}

	rec, applied, err := s.repo.ApplyTranscription(ctx, a.ProviderRecordingID, a.TranscriptionText, a.TranscriptionStatus)
	if err != nil {
		return TranscriptionOutcome{}, fmt.Errorf("voicemail: apply transcription: %w", err)
	}
	if !applied {
		log.Debug("transcription already recorded")
		return TranscriptionOutcome{Record: existing, Created: created}, nil
	}
	s.notifyTranscribed(ctx, rec)
	return TranscriptionOutcome{Record: rec, Applied: true, Created: created}, nil
}

// Get returns a voicemail by its capability id.
func (s *Service) Get(ctx context.Context, id string) (VoicemailRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return VoicemailRecord{}, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) correlate(ctx context.Context, a Arrival) (Outcome, error) {
	if a.ProviderRecordingID == "" {
		return Outcome{}, ErrInvalidArgument
	}
	if a.At.IsZero() {
		a.At = s.clock().UTC()
	}
	log := logger.From(ctx).With("provider_recording_id", a.ProviderRecordingID)

	existing, err := s.repo.GetByRecordingID(ctx, a.ProviderRecordingID)
	switch {
	case err == nil:
		rec, err := s.merge(ctx, existing, a)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Record: rec}, nil
	case !errors.Is(err, ErrNotFound):
		return Outcome{}, fmt.Errorf("voicemail: lookup: %w", err)
	}

	parent, matchedBy, err := s.chain.Resolve(ctx, a)
	if err != nil {
		return Outcome{}, err
	}

	v := VoicemailRecord{
		ID:                  uuid.NewString(),
		ProviderRecordingID: a.ProviderRecordingID,
		ProviderCallID:      a.ProviderCallID,
		CallRef:             parent.ID,
		FromNumber:          a.FromNumber,
		DurationSeconds:     a.DurationSeconds,
		Mailbox:             a.Mailbox,
		RecordingURL:        a.RecordingURL,
		TranscriptionText:   a.TranscriptionText,
		TranscriptionStatus: a.TranscriptionStatus,
		CreatedAt:           a.At,
		UpdatedAt:           a.At,
	}
	if placeholder(v.FromNumber) {
		v.FromNumber = UnknownNumber
		if !placeholder(parent.FromNumber) {
			v.FromNumber = parent.FromNumber
		}
	}
	if v.ProviderCallID == "" && !parent.Synthetic {
		v.ProviderCallID = parent.ProviderCallID
	}
	if v.TranscriptionStatus == "" {
		v.TranscriptionStatus = TranscriptionPending
	}

	rec, inserted, err := s.repo.InsertIfAbsent(ctx, v)
	if err != nil {
		return Outcome{}, fmt.Errorf("voicemail: insert: %w", err)
	}
	if !inserted {
		// Lost the race to the sibling callback: fall back to the update branch.
		rec, err = s.merge(ctx, rec, a)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Record: rec}, nil
	}

	log.Info("voicemail recorded", "matched_by", matchedBy, "call_log_id", parent.ID, "mailbox", rec.MailboxLabel())
	return Outcome{Record: rec, Inserted: true, MatchedBy: matchedBy}, nil
}

// finalize marks the parent call voicemail and claims the one-time notification.
// Both steps are idempotent, so a delivery that failed between them heals on retry.
func (s *Service) finalize(ctx context.Context, rec VoicemailRecord) (bool, error) {
	if rec.NotifiedAt != nil {
		return false, nil
	}
	if rec.CallRef != "" {
		if err := s.calls.SetDisposition(ctx, rec.CallRef, calls.DispositionVoicemail); err != nil {
			return false, fmt.Errorf("voicemail: mark call %s: %w", rec.CallRef, err)
		}
	}
	claimed, err := s.repo.ClaimNotification(ctx, rec.ProviderRecordingID)
	if err != nil {
		return false, fmt.Errorf("voicemail: claim notification: %w", err)
	}
	return claimed, nil
}

func (s *Service) merge(ctx context.Context, existing VoicemailRecord, a Arrival) (VoicemailRecord, error) {
	patch := VoicemailRecord{
		ProviderCallID:  a.ProviderCallID,
		FromNumber:      a.FromNumber,
		DurationSeconds: a.DurationSeconds,
		Mailbox:         a.Mailbox,
		RecordingURL:    a.RecordingURL,
	}
	if existing.CallRef == "" {
		if parent, ok, err := (ExactCallID{Calls: s.calls}).Match(ctx, a); err == nil && ok {
			patch.CallRef = parent.ID
		}
	}
	rec, err := s.repo.FillGaps(ctx, existing.ProviderRecordingID, patch)
	if err != nil {
		return VoicemailRecord{}, fmt.Errorf("voicemail: merge: %w", err)
	}
	return rec, nil
}

func (s *Service) notifyTranscribed(ctx context.Context, v VoicemailRecord) {
	if s.notifier != nil {
		s.notifier.VoicemailTranscribed(ctx, v)
	}
}
