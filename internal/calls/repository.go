package calls

import (
	"context"
	"time"
)

// Repository is the persistence contract for call records.
//
// Every write is a single atomic statement keyed by provider_call_id; two handlers
// racing on the same call must both be safe without any in-process lock.
type Repository interface {
	// Upsert creates the record on first sighting or merges s into it. inserted reports which happened.
	Upsert(ctx context.Context, s Sighting) (rec CallRecord, inserted bool, err error)

	// SetCallerIdentity stores identity only when none is recorded yet.
	SetCallerIdentity(ctx context.Context, providerCallID, identity string) error

	// ClaimDisposition claims the call's single terminal notification. The winner stores d unless an
	// earlier step already recorded a disposition, and gets back the disposition that stands.
	ClaimDisposition(ctx context.Context, providerCallID string, d Disposition) (kept Disposition, won bool, err error)

	// MarkUnanswered records missed while no disposition is set. The ring flow calls it once no human
	// picked up, so the later completed status (talk time spent in the IVR) cannot read as answered.
	MarkUnanswered(ctx context.Context, providerCallID string) error

	// SetDisposition overrides the disposition unconditionally (voicemail outranks a derived value).
	SetDisposition(ctx context.Context, id string, d Disposition) error

	GetByID(ctx context.Context, id string) (CallRecord, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (CallRecord, error)

	// FindRecentInbound returns the newest inbound call from fromNumber started at or after since.
	FindRecentInbound(ctx context.Context, fromNumber string, since time.Time) (CallRecord, error)
}
