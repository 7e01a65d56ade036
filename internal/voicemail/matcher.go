package voicemail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-orchestrator/internal/calls"
)

// RecentCallWindow bounds how far back a caller's inbound call may be to adopt a recording.
const RecentCallWindow = 5 * time.Minute

// CallStore is the subset of the call state store the correlator needs.
type CallStore interface {
	GetByProviderCallID(ctx context.Context, providerCallID string) (calls.CallRecord, error)
	FindRecentInbound(ctx context.Context, fromNumber string, since time.Time) (calls.CallRecord, error)
	Upsert(ctx context.Context, s calls.Sighting) (calls.CallRecord, bool, error)
	SetDisposition(ctx context.Context, id string, d calls.Disposition) error
}

// Matcher is one strategy for finding a recording's parent call.
// ok is false when the strategy does not apply; err is reserved for store failures.
type Matcher interface {
	Name() string
	Match(ctx context.Context, a Arrival) (rec calls.CallRecord, ok bool, err error)
}

// Chain tries matchers in order; the first hit wins.
type Chain []Matcher

// DefaultChain is exact call id, then the caller's most recent inbound call, then a synthesized parent.
func DefaultChain(store CallStore, clock func() time.Time) Chain {
	return Chain{
		ExactCallID{Calls: store},
		RecentInboundFromNumber{Calls: store, Window: RecentCallWindow, Clock: clock},
		Synthesize{Calls: store},
	}
}

// Resolve returns the parent call and the name of the matcher that found it.
func (c Chain) Resolve(ctx context.Context, a Arrival) (calls.CallRecord, string, error) {
	for _, m := range c {
		rec, ok, err := m.Match(ctx, a)
		if err != nil {
			return calls.CallRecord{}, m.Name(), fmt.Errorf("voicemail: %s: %w", m.Name(), err)
		}
		if ok {
			return rec, m.Name(), nil
		}
	}
	return calls.CallRecord{}, "", ErrNotFound
}

// ExactCallID matches on the call id reported with the recording.
type ExactCallID struct {
	Calls CallStore
}

func (ExactCallID) Name() string { return "exact_call_id" }

func (m ExactCallID) Match(ctx context.Context, a Arrival) (calls.CallRecord, bool, error) {
	if a.ProviderCallID == "" {
		return calls.CallRecord{}, false, nil
	}
	rec, err := m.Calls.GetByProviderCallID(ctx, a.ProviderCallID)
	if errors.Is(err, calls.ErrNotFound) {
		return calls.CallRecord{}, false, nil
	}
	if err != nil {
		return calls.CallRecord{}, false, err
	}
	return rec, true, nil
}

// RecentInboundFromNumber adopts the caller's newest inbound call inside Window.
// It covers the provider remapping call ids across an internal redirect.
type RecentInboundFromNumber struct {
	Calls  CallStore
	Window time.Duration
	Clock  func() time.Time
}

func (RecentInboundFromNumber) Name() string { return "recent_inbound_from_number" }

func (m RecentInboundFromNumber) Match(ctx context.Context, a Arrival) (calls.CallRecord, bool, error) {
	if placeholder(a.FromNumber) {
		return calls.CallRecord{}, false, nil
	}
	ref := a.At
	if ref.IsZero() {
		clock := m.Clock
		if clock == nil {
			clock = time.Now
		}
		ref = clock()
	}
	window := m.Window
	if window <= 0 {
		window = RecentCallWindow
	}
	rec, err := m.Calls.FindRecentInbound(ctx, a.FromNumber, ref.Add(-window).UTC())
	if errors.Is(err, calls.ErrNotFound) {
		return calls.CallRecord{}, false, nil
	}
	if err != nil {
		return calls.CallRecord{}, false, err
	}
	return rec, true, nil
}

// Synthesize creates a minimal parent so a voicemail is never orphaned.
// It reuses the reported call id when there is one, so later status callbacks land on the same row.
type Synthesize struct {
	Calls CallStore
}

func (Synthesize) Name() string { return "synthesized" }

func (m Synthesize) Match(ctx context.Context, a Arrival) (calls.CallRecord, bool, error) {
	pid := a.ProviderCallID
	if pid == "" {
		pid = "synthetic:" + a.ProviderRecordingID
	}
	from := a.FromNumber
	if from == "" {
		from = UnknownNumber
	}
	rec, _, err := m.Calls.Upsert(ctx, calls.Sighting{
		ProviderCallID:  pid,
		Direction:       calls.DirectionInbound,
		FromNumber:      from,
		Status:          calls.CallStatusCompleted,
		DurationSeconds: a.DurationSeconds,
		At:              a.At,
		Synthetic:       true,
	})
	if err != nil {
		return calls.CallRecord{}, false, err
	}
	return rec, true, nil
}
