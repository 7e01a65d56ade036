package voicemail

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voice-orchestrator/internal/calls"
)

var t0 = time.Date(2025, 10, 14, 17, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu          sync.Mutex
	created     []VoicemailRecord
	transcribed []VoicemailRecord
}

func (n *recordingNotifier) VoicemailCreated(_ context.Context, v VoicemailRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, v)
}

func (n *recordingNotifier) VoicemailTranscribed(_ context.Context, v VoicemailRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transcribed = append(n.transcribed, v)
}

type fixture struct {
	svc   *Service
	repo  *MemoryRepo
	calls *calls.MemoryRepo
	n     *recordingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{repo: NewMemoryRepo(), calls: calls.NewMemoryRepo(), n: &recordingNotifier{}}
	f.svc = NewService(f.repo, f.calls, f.n)
	f.svc.clock = func() time.Time { return t0 }
	return f
}

func (f fixture) seedCall(t *testing.T, pid, from string, at time.Time) calls.CallRecord {
	t.Helper()
	rec, _, err := f.calls.Upsert(context.Background(), calls.Sighting{
		ProviderCallID: pid,
		Direction:      calls.DirectionInbound,
		FromNumber:     from,
		Status:         calls.CallStatusInProgress,
		At:             at,
	})
	if err != nil {
		t.Fatalf("seed call: %v", err)
	}
	return rec
}

// The inline action callback knows the caller and mailbox.
func actionArrival() Arrival {
	return Arrival{
		ProviderRecordingID: "RE1",
		ProviderCallID:      "CA1",
		FromNumber:          "+13105551234",
		DurationSeconds:     14,
		Mailbox:             "operator",
		RecordingURL:        "https://api.twilio.com/2010-04-01/Accounts/AC1/Recordings/RE1",
	}
}

// The async status callback usually lacks From and mailbox.
func statusArrival() Arrival {
	return Arrival{
		ProviderRecordingID: "RE1",
		ProviderCallID:      "CA1",
		DurationSeconds:     14,
		RecordingURL:        "https://api.twilio.com/2010-04-01/Accounts/AC1/Recordings/RE1",
	}
}

func TestRecordingCompleted_EitherOrderYieldsOneVoicemail(t *testing.T) {
	orders := map[string][]Arrival{
		"action_first": {actionArrival(), statusArrival()},
		"status_first": {statusArrival(), actionArrival()},
	}
	for name, seq := range orders {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			call := f.seedCall(t, "CA1", "+13105551234", t0.Add(-time.Minute))

			for _, a := range seq {
				if _, err := f.svc.RecordingCompleted(context.Background(), a); err != nil {
					t.Fatalf("recording: %v", err)
				}
			}

			recs := f.repo.Records()
			if len(recs) != 1 {
				t.Fatalf("expected 1 voicemail, got %d", len(recs))
			}
			v := recs[0]
			if v.CallRef != call.ID || v.FromNumber != "+13105551234" || v.MailboxLabel() != "operator" {
				t.Fatalf("unexpected merged voicemail: %+v", v)
			}
			if len(f.n.created) != 1 {
				t.Fatalf("expected exactly one created notification, got %d", len(f.n.created))
			}
			parent, _ := f.calls.GetByProviderCallID(context.Background(), "CA1")
			if parent.Disposition != calls.DispositionVoicemail {
				t.Fatalf("expected parent disposition voicemail, got %q", parent.Disposition)
			}
		})
	}
}

// flakyCalls fails the first SetDisposition, as a dropped database connection would.
type flakyCalls struct {
	*calls.MemoryRepo
	mu    sync.Mutex
	fails int
}

func (c *flakyCalls) SetDisposition(ctx context.Context, id string, d calls.Disposition) error {
	c.mu.Lock()
	if c.fails > 0 {
		c.fails--
		c.mu.Unlock()
		return errors.New("connection reset")
	}
	c.mu.Unlock()
	return c.MemoryRepo.SetDisposition(ctx, id, d)
}

func TestRecordingCompleted_RetryAfterMarkFailureFinishes(t *testing.T) {
	f := newFixture(t)
	store := &flakyCalls{MemoryRepo: f.calls, fails: 1}
	f.svc = NewService(f.repo, store, f.n)
	f.svc.clock = func() time.Time { return t0 }
	f.seedCall(t, "CA1", "+13105551234", t0.Add(-time.Minute))

	if _, err := f.svc.RecordingCompleted(context.Background(), actionArrival()); err == nil {
		t.Fatalf("expected the first delivery to fail")
	}
	if len(f.n.created) != 0 {
		t.Fatalf("expected no notification before the call is marked, got %d", len(f.n.created))
	}

	out, err := f.svc.RecordingCompleted(context.Background(), actionArrival())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if out.Inserted || !out.Notified {
		t.Fatalf("expected the retry to merge and notify, got %+v", out)
	}
	parent, _ := f.calls.GetByProviderCallID(context.Background(), "CA1")
	if parent.Disposition != calls.DispositionVoicemail {
		t.Fatalf("expected parent disposition voicemail, got %q", parent.Disposition)
	}

	if _, err := f.svc.RecordingCompleted(context.Background(), statusArrival()); err != nil {
		t.Fatalf("status delivery: %v", err)
	}
	if len(f.n.created) != 1 {
		t.Fatalf("expected exactly one created notification, got %d", len(f.n.created))
	}
}

func TestTranscription_RetryAfterMarkFailureFinishes(t *testing.T) {
	f := newFixture(t)
	store := &flakyCalls{MemoryRepo: f.calls, fails: 1}
	f.svc = NewService(f.repo, store, f.n)
	f.svc.clock = func() time.Time { return t0 }
	f.seedCall(t, "CA1", "+13105551234", t0)

	tr := Arrival{ProviderRecordingID: "RE1", ProviderCallID: "CA1", TranscriptionText: "Call me.", TranscriptionStatus: TranscriptionCompleted}
	if _, err := f.svc.TranscriptionCompleted(context.Background(), tr); err == nil {
		t.Fatalf("expected the first delivery to fail")
	}
	out, err := f.svc.TranscriptionCompleted(context.Background(), tr)
	if err != nil || !out.Applied {
		t.Fatalf("expected the retry to apply the transcript, got %+v err=%v", out, err)
	}
	parent, _ := f.calls.GetByProviderCallID(context.Background(), "CA1")
	if parent.Disposition != calls.DispositionVoicemail {
		t.Fatalf("expected parent disposition voicemail, got %q", parent.Disposition)
	}
	if len(f.n.created) != 0 || len(f.n.transcribed) != 1 {
		t.Fatalf("expected only the transcript notification, got created=%d transcribed=%d", len(f.n.created), len(f.n.transcribed))
	}
}

func TestRecordingCompleted_ConcurrentDeliveries(t *testing.T) {
	f := newFixture(t)
	f.seedCall(t, "CA1", "+13105551234", t0.Add(-time.Minute))

	var wg sync.WaitGroup
	for _, a := range []Arrival{actionArrival(), statusArrival(), actionArrival(), statusArrival()} {
		wg.Add(1)
		go func(a Arrival) {
			defer wg.Done()
			if _, err := f.svc.RecordingCompleted(context.Background(), a); err != nil {
				t.Errorf("recording: %v", err)
			}
		}(a)
	}
	wg.Wait()

	if got := len(f.repo.Records()); got != 1 {
		t.Fatalf("expected 1 voicemail, got %d", got)
	}
	if len(f.n.created) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.n.created))
	}
}

func TestRecordingCompleted_SecondDeliveryNeverDowngrades(t *testing.T) {
	f := newFixture(t)
	f.seedCall(t, "CA1", "+13105551234", t0)

	a := actionArrival()
	a.Mailbox = "clinical"
	if _, err := f.svc.RecordingCompleted(context.Background(), a); err != nil {
		t.Fatalf("recording: %v", err)
	}
	weak := statusArrival()
	weak.FromNumber = UnknownNumber
	weak.DurationSeconds = 0
	out, err := f.svc.RecordingCompleted(context.Background(), weak)
	if err != nil {
		t.Fatalf("recording: %v", err)
	}
	if out.Inserted {
		t.Fatalf("expected update branch")
	}
	if out.Record.FromNumber != "+13105551234" || out.Record.Mailbox != "clinical" || out.Record.DurationSeconds != 14 {
		t.Fatalf("weak delivery overwrote good values: %+v", out.Record)
	}
}

func TestMatcherTiers(t *testing.T) {
	t.Run("exact call id", func(t *testing.T) {
		f := newFixture(t)
		f.seedCall(t, "CA1", "+13105551234", t0.Add(-time.Hour))
		out, err := f.svc.RecordingCompleted(context.Background(), actionArrival())
		if err != nil || out.MatchedBy != "exact_call_id" {
			t.Fatalf("expected exact match, got %q err=%v", out.MatchedBy, err)
		}
	})

	t.Run("recent inbound from number", func(t *testing.T) {
		f := newFixture(t)
		call := f.seedCall(t, "CA-before-redirect", "+13105551234", t0.Add(-4*time.Minute))
		a := actionArrival()
		a.ProviderCallID = "CA-after-redirect"
		out, err := f.svc.RecordingCompleted(context.Background(), a)
		if err != nil || out.MatchedBy != "recent_inbound_from_number" || out.Record.CallRef != call.ID {
			t.Fatalf("expected recent-inbound match on %s, got %q ref=%s err=%v", call.ID, out.MatchedBy, out.Record.CallRef, err)
		}
	})

	t.Run("outside window synthesizes", func(t *testing.T) {
		f := newFixture(t)
		f.seedCall(t, "CA-old", "+13105551234", t0.Add(-6*time.Minute))
		a := actionArrival()
		a.ProviderCallID = "CA-new"
		out, err := f.svc.RecordingCompleted(context.Background(), a)
		if err != nil || out.MatchedBy != "synthesized" {
			t.Fatalf("expected synthesized parent, got %q err=%v", out.MatchedBy, err)
		}
		parent, err := f.calls.GetByProviderCallID(context.Background(), "CA-new")
		if err != nil || !parent.Synthetic || parent.Disposition != calls.DispositionVoicemail {
			t.Fatalf("expected synthetic parent under the reported id, got %+v err=%v", parent, err)
		}
	})

	t.Run("no identifiers at all", func(t *testing.T) {
		f := newFixture(t)
		out, err := f.svc.RecordingCompleted(context.Background(), Arrival{ProviderRecordingID: "RE9"})
		if err != nil || out.MatchedBy != "synthesized" || out.Record.CallRef == "" {
			t.Fatalf("expected synthesized parent, got %+v err=%v", out, err)
		}
		if out.Record.FromNumber != UnknownNumber {
			t.Fatalf("expected placeholder caller, got %q", out.Record.FromNumber)
		}
		if _, err := f.calls.GetByProviderCallID(context.Background(), "synthetic:RE9"); err != nil {
			t.Fatalf("expected synthetic call id, got %v", err)
		}
	})
}

type stubMatcher struct {
	name string
	hit  bool
	err  error
	seen *[]string
}

func (m stubMatcher) Name() string { return m.name }

func (m stubMatcher) Match(context.Context, Arrival) (calls.CallRecord, bool, error) {
	*m.seen = append(*m.seen, m.name)
	return calls.CallRecord{ID: m.name}, m.hit, m.err
}

func TestChain_StopsAtFirstHit(t *testing.T) {
	var seen []string
	c := Chain{
		stubMatcher{name: "a", seen: &seen},
		stubMatcher{name: "b", hit: true, seen: &seen},
		stubMatcher{name: "c", hit: true, seen: &seen},
	}
	rec, by, err := c.Resolve(context.Background(), Arrival{})
	if err != nil || by != "b" || rec.ID != "b" {
		t.Fatalf("unexpected resolve: %v %q %v", rec, by, err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected c never consulted, saw %v", seen)
	}
}

func TestChain_StoreErrorStops(t *testing.T) {
	var seen []string
	c := Chain{stubMatcher{name: "a", err: errors.New("db down"), seen: &seen}, stubMatcher{name: "b", hit: true, seen: &seen}}
	if _, _, err := c.Resolve(context.Background(), Arrival{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTranscription_AfterRecordingNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	f.seedCall(t, "CA1", "+13105551234", t0)
	if _, err := f.svc.RecordingCompleted(context.Background(), actionArrival()); err != nil {
		t.Fatalf("recording: %v", err)
	}

	tr := Arrival{ProviderRecordingID: "RE1", TranscriptionText: "Hi, please call me back.", TranscriptionStatus: TranscriptionCompleted}
	out, err := f.svc.TranscriptionCompleted(context.Background(), tr)
	if err != nil || !out.Applied || out.Created {
		t.Fatalf("expected transcript applied, got %+v err=%v", out, err)
	}
	if out.Record.TranscriptionText != "Hi, please call me back." {
		t.Fatalf("unexpected transcript: %q", out.Record.TranscriptionText)
	}

	out, err = f.svc.TranscriptionCompleted(context.Background(), tr)
	if err != nil || out.Applied {
		t.Fatalf("expected duplicate transcription to be a no-op, got %+v err=%v", out, err)
	}
	if len(f.n.transcribed) != 1 || len(f.n.created) != 1 {
		t.Fatalf("expected one of each notification, got created=%d transcribed=%d", len(f.n.created), len(f.n.transcribed))
	}
}

func TestTranscription_FirstCreatesVoicemail(t *testing.T) {
	f := newFixture(t)
	f.seedCall(t, "CA1", "+13105551234", t0)

	out, err := f.svc.TranscriptionCompleted(context.Background(), Arrival{
		ProviderRecordingID: "RE1",
		ProviderCallID:      "CA1",
		TranscriptionText:   "Calling about my appointment.",
		TranscriptionStatus: TranscriptionCompleted,
	})
	if err != nil || !out.Created {
		t.Fatalf("expected creation, got %+v err=%v", out, err)
	}

	for _, a := range []Arrival{actionArrival(), statusArrival()} {
		if _, err := f.svc.RecordingCompleted(context.Background(), a); err != nil {
			t.Fatalf("recording: %v", err)
		}
	}
	recs := f.repo.Records()
	if len(recs) != 1 || recs[0].TranscriptionText != "Calling about my appointment." || recs[0].FromNumber != "+13105551234" {
		t.Fatalf("unexpected voicemails: %+v", recs)
	}
	if len(f.n.created) != 0 || len(f.n.transcribed) != 1 {
		t.Fatalf("expected only the transcript notification, got created=%d transcribed=%d", len(f.n.created), len(f.n.transcribed))
	}
}

func TestGet_RejectsNonUUID(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Get(context.Background(), "../etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
