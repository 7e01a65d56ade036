package callevent

import (
	"context"
	"errors"
	"time"

	"voice-orchestrator/pkg/logger"

	"github.com/google/uuid"
)

// Service logs IVR decision points for audit and analytics.
//
// IMPORTANT:
// - Callers should treat event logging as best-effort; use Log from call flows.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("callevent: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("callevent: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Log appends and swallows the error after logging it. Call flows must never fail on audit.
func (s *Service) Log(ctx context.Context, e Event) {
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("call event append failed", "event_type", e.Type, "provider_call_id", e.ProviderCallID, "err", err)
	}
}

// Reported converts a provider-reported event name into an Event.
// Unknown names are kept as EventTypeOther with the raw name prefixed to the detail.
func Reported(providerCallID, name, digit, mailbox, detail string) Event {
	t, known := ParseType(name)
	if !known && name != "" {
		if detail == "" {
			detail = name
		} else {
			detail = name + ": " + detail
		}
	}
	return Event{
		ProviderCallID: providerCallID,
		Type:           t,
		Digit:          digit,
		Mailbox:        mailbox,
		Detail:         detail,
	}
}

func (s *Service) ListByCall(ctx context.Context, providerCallID string) ([]Event, error) {
	if providerCallID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.ListByCall(ctx, providerCallID)
}
