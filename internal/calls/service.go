package calls

import (
	"context"
	"fmt"
	"time"

	"voice-orchestrator/pkg/logger"
)

// IdentityResolver maps a caller number to a directory contact, creating one on a miss.
type IdentityResolver interface {
	ResolveOrCreate(ctx context.Context, phone string) (string, error)
}

// Notifier is told once per inbound call that reaches a terminal status.
// Implementations must not block; delivery happens in the background.
type Notifier interface {
	CallEnded(ctx context.Context, rec CallRecord)
}

// Service applies call lifecycle callbacks to the store.
//
// Invariants:
// - One CallRecord per provider_call_id, whichever callback arrives first.
// - At most one terminal notification per inbound call, guarded by the notified_at claim.
// - Directory and notification failures never fail the callback.
type Service struct {
	repo     Repository
	identity IdentityResolver
	notifier Notifier
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository, identity IdentityResolver, notifier Notifier) *Service {
	return &Service{repo: repo, identity: identity, notifier: notifier, clock: time.Now}
}

// StatusOutcome reports what one status callback did.
type StatusOutcome struct {
	Record      CallRecord
	Inserted    bool
	Disposition Disposition
	// Claimed is true for the single delivery that decided the disposition.
	Claimed  bool
	Notified bool
}

// RecordSighting handles the first-sighting notice: create or refresh the record and make sure
// the caller has an identity. A late notice never rewinds the status.
func (s *Service) RecordSighting(ctx context.Context, in Sighting) (CallRecord, error) {
	if in.ProviderCallID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	if in.Status == "" {
		in.Status = CallStatusRinging
	}
	in.OverwriteStatus = false
	in.At = s.at(in.At)

	rec, _, err := s.repo.Upsert(ctx, in)
	if err != nil {
		return CallRecord{}, fmt.Errorf("calls: upsert %s: %w", in.ProviderCallID, err)
	}
	if rec.CallerIdentity == "" {
		rec.CallerIdentity = s.resolveIdentity(ctx, rec)
	}
	return rec, nil
}

// ApplyStatus handles a status callback. The status is applied unconditionally; a record the
// callback creates gets the same identity resolution as the first-sighting path.
func (s *Service) ApplyStatus(ctx context.Context, in Sighting) (StatusOutcome, error) {
	if in.ProviderCallID == "" {
		return StatusOutcome{}, ErrInvalidArgument
	}
	in.OverwriteStatus = true
	in.At = s.at(in.At)
	log := logger.From(ctx).With("provider_call_id", in.ProviderCallID, "status", in.Status)

	rec, inserted, err := s.repo.Upsert(ctx, in)
	if err != nil {
		return StatusOutcome{}, fmt.Errorf("calls: upsert %s: %w", in.ProviderCallID, err)
	}
	out := StatusOutcome{Record: rec, Inserted: inserted}

	if inserted {
		rec.CallerIdentity = s.resolveIdentity(ctx, rec)
		out.Record = rec
	}

	d, terminal := DeriveDisposition(rec.Status, rec.DurationSeconds)
	if !terminal {
		return out, nil
	}
	out.Disposition = d

	kept, claimed, err := s.repo.ClaimDisposition(ctx, rec.ProviderCallID, d)
	if err != nil {
		return out, fmt.Errorf("calls: claim disposition %s: %w", rec.ProviderCallID, err)
	}
	out.Claimed = claimed
	if !claimed {
		log.Debug("terminal status already handled")
		return out, nil
	}
	out.Disposition = kept
	out.Record.Disposition = kept

	// A voicemail call is announced by the voicemail and transcript notices instead.
	if rec.Inbound() && kept != DispositionVoicemail && s.notifier != nil {
		s.notifier.CallEnded(ctx, out.Record)
		out.Notified = true
	}
	log.Info("call ended", "disposition", kept, "duration_seconds", rec.DurationSeconds, "notified", out.Notified)
	return out, nil
}

// MarkUnanswered records that no human picked up. It is a no-op once a disposition is set.
func (s *Service) MarkUnanswered(ctx context.Context, providerCallID string) error {
	if providerCallID == "" {
		return ErrInvalidArgument
	}
	if err := s.repo.MarkUnanswered(ctx, providerCallID); err != nil {
		return fmt.Errorf("calls: mark unanswered %s: %w", providerCallID, err)
	}
	return nil
}

// Get returns a record by provider call id.
func (s *Service) Get(ctx context.Context, providerCallID string) (CallRecord, error) {
	if providerCallID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	return s.repo.GetByProviderCallID(ctx, providerCallID)
}

func (s *Service) resolveIdentity(ctx context.Context, rec CallRecord) string {
	if s.identity == nil || !rec.Inbound() {
		return ""
	}
	log := logger.From(ctx)
	id, err := s.identity.ResolveOrCreate(ctx, rec.FromNumber)
	if err != nil {
		log.Warn("caller identity resolution failed", "provider_call_id", rec.ProviderCallID, "err", err)
		return ""
	}
	if id == "" {
		return ""
	}
	if err := s.repo.SetCallerIdentity(ctx, rec.ProviderCallID, id); err != nil {
		log.Warn("caller identity store failed", "provider_call_id", rec.ProviderCallID, "err", err)
		return ""
	}
	return id
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock().UTC()
	}
	return t.UTC()
}
