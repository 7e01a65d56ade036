package telephony

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrMissingCorrelationID is returned when a callback lacks the id its handler keys on.
// The provider will keep sending the same payload, so handlers answer 200 and drop it.
var ErrMissingCorrelationID = errors.New("telephony: missing correlation id")

// Kind names every provider callback the service understands.
// Routes pick the kind; decoding never inspects the URL path.
type Kind string

const (
	KindIncoming          Kind = "incoming"
	KindStatus            Kind = "status"
	KindRecording         Kind = "recording"
	KindVoicemailRecorded Kind = "voicemail-recorded"
	KindTranscription     Kind = "transcription"
	KindDialResult        Kind = "dial-result"
	KindGather            Kind = "gather"
	KindEvent             Kind = "event"
)

// Callback is the closed set of decoded provider payloads.
// Use a type switch over the concrete types below.
type Callback interface {
	Kind() Kind
	CallSID() string
	isCallback()
}

// CallNotice is the first-sighting notice for an inbound call.
type CallNotice struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	Direction  string
	CallStatus string
	CallerName string
	// ForwardedFrom is set when the carrier forwarded the call.
	ForwardedFrom string
}

// StatusUpdate is a call lifecycle status callback.
type StatusUpdate struct {
	CallSid    string
	From       string
	To         string
	Direction  string
	CallStatus string
	// DurationSeconds is CallDuration; zero until the call is terminal.
	DurationSeconds int
	Timestamp       time.Time
}

// RecordingSource says which of the two completion paths delivered a recording.
type RecordingSource string

const (
	// RecordingFromAction is the inline <Record action> callback; it carries the caller's From.
	RecordingFromAction RecordingSource = "action"
	// RecordingFromStatus is the async recordingStatusCallback; it usually lacks From.
	RecordingFromStatus RecordingSource = "status"
)

// RecordingDone is a completed recording from either delivery path.
type RecordingDone struct {
	Source          RecordingSource
	RecordingSid    string
	RecordingURL    string
	RecordingStatus string
	DurationSeconds int
	CallSid         string
	From            string
	To              string
	// Mailbox is the routing label from the callback URL; empty on the async path.
	Mailbox string
}

// TranscriptionDone carries transcription text for a recording.
type TranscriptionDone struct {
	RecordingSid     string
	RecordingURL     string
	TranscriptionSid string
	Text             string
	Status           string
	CallSid          string
	From             string
	To               string
}

// Failed reports whether the provider gave up transcribing.
func (t TranscriptionDone) Failed() bool {
	return strings.EqualFold(t.Status, "failed") || (strings.TrimSpace(t.Text) == "" && !strings.EqualFold(t.Status, "completed"))
}

// DialResult is the <Dial action> callback after all legs finished or timed out.
type DialResult struct {
	CallSid         string
	From            string
	To              string
	DialCallStatus  string
	DialCallSid     string
	DurationSeconds int
	Mailbox         string
}

// Answered reports whether some leg connected a human.
func (d DialResult) Answered() bool {
	switch strings.ToLower(d.DialCallStatus) {
	case "completed", "answered":
		return true
	default:
		return false
	}
}

// GatherResult is a <Gather action> callback. Digits is empty on timeout.
type GatherResult struct {
	CallSid string
	// ParentCallSid is set when the gather runs on a dialed leg (screening).
	ParentCallSid string
	From          string
	To            string
	Digits        string
	Mailbox       string
	// Attempt counts menu replays; carried in the action URL.
	Attempt int
}

// RootCallSID is the caller's call id, whichever leg the gather ran on.
func (g GatherResult) RootCallSID() string { return firstNonEmpty(g.ParentCallSid, g.CallSid) }

// TimedOut reports whether the caller pressed nothing.
func (g GatherResult) TimedOut() bool { return g.Digits == "" }

// EventNotice is an IVR decision point reported by the provider flow.
// Name comes from either "event_type" or "EventType".
type EventNotice struct {
	CallSid string
	Name    string
	Digit   string
	Mailbox string
	Detail  string
}

func (CallNotice) Kind() Kind        { return KindIncoming }
func (StatusUpdate) Kind() Kind      { return KindStatus }
func (TranscriptionDone) Kind() Kind { return KindTranscription }
func (DialResult) Kind() Kind        { return KindDialResult }
func (GatherResult) Kind() Kind      { return KindGather }
func (EventNotice) Kind() Kind       { return KindEvent }

func (r RecordingDone) Kind() Kind {
	if r.Source == RecordingFromAction {
		return KindVoicemailRecorded
	}
	return KindRecording
}

func (c CallNotice) CallSID() string        { return c.CallSid }
func (s StatusUpdate) CallSID() string      { return s.CallSid }
func (r RecordingDone) CallSID() string     { return r.CallSid }
func (t TranscriptionDone) CallSID() string { return t.CallSid }
func (d DialResult) CallSID() string        { return d.CallSid }
func (g GatherResult) CallSID() string      { return g.CallSid }
func (e EventNotice) CallSID() string       { return e.CallSid }

func (CallNotice) isCallback()        {}
func (StatusUpdate) isCallback()      {}
func (RecordingDone) isCallback()     {}
func (TranscriptionDone) isCallback() {}
func (DialResult) isCallback()        {}
func (GatherResult) isCallback()      {}
func (EventNotice) isCallback()       {}

// ParseCallback parses the request form (body and query) and decodes it as kind.
func ParseCallback(r *http.Request, kind Kind) (Callback, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("telephony: parse form: %w", err)
	}
	return Decode(kind, r.Form)
}

// Decode maps provider form fields to the typed callback for kind.
// State-bearing kinds return ErrMissingCorrelationID when their natural key is absent.
func Decode(kind Kind, form url.Values) (Callback, error) {
	get := func(k string) string { return strings.TrimSpace(form.Get(k)) }

	switch kind {
	case KindIncoming:
		c := CallNotice{
			CallSid:       get("CallSid"),
			AccountSid:    get("AccountSid"),
			From:          normalizePhone(get("From")),
			To:            normalizePhone(get("To")),
			Direction:     get("Direction"),
			CallStatus:    get("CallStatus"),
			CallerName:    get("CallerName"),
			ForwardedFrom: normalizePhone(get("ForwardedFrom")),
		}
		if c.CallSid == "" {
			return c, ErrMissingCorrelationID
		}
		return c, nil

	case KindStatus:
		s := StatusUpdate{
			CallSid:         get("CallSid"),
			From:            normalizePhone(get("From")),
			To:              normalizePhone(get("To")),
			Direction:       get("Direction"),
			CallStatus:      strings.ToLower(get("CallStatus")),
			DurationSeconds: atoiNonNegative(get("CallDuration")),
			Timestamp:       parseTimestamp(get("Timestamp")),
		}
		if s.CallSid == "" {
			return s, ErrMissingCorrelationID
		}
		return s, nil

	case KindRecording, KindVoicemailRecorded:
		src := RecordingFromStatus
		if kind == KindVoicemailRecorded {
			src = RecordingFromAction
		}
		r := RecordingDone{
			Source:          src,
			RecordingSid:    get("RecordingSid"),
			RecordingURL:    get("RecordingUrl"),
			RecordingStatus: strings.ToLower(get("RecordingStatus")),
			DurationSeconds: atoiNonNegative(get("RecordingDuration")),
			CallSid:         get("CallSid"),
			From:            normalizePhone(get("From")),
			To:              normalizePhone(get("To")),
			Mailbox:         strings.ToLower(get("mailbox")),
		}
		if r.RecordingSid == "" {
			return r, ErrMissingCorrelationID
		}
		return r, nil

	case KindTranscription:
		t := TranscriptionDone{
			RecordingSid:     get("RecordingSid"),
			RecordingURL:     get("RecordingUrl"),
			TranscriptionSid: get("TranscriptionSid"),
			Text:             get("TranscriptionText"),
			Status:           strings.ToLower(get("TranscriptionStatus")),
			CallSid:          get("CallSid"),
			From:             normalizePhone(get("From")),
			To:               normalizePhone(get("To")),
		}
		if t.RecordingSid == "" {
			return t, ErrMissingCorrelationID
		}
		return t, nil

	case KindDialResult:
		return DialResult{
			CallSid:         get("CallSid"),
			From:            normalizePhone(get("From")),
			To:              normalizePhone(get("To")),
			DialCallStatus:  strings.ToLower(get("DialCallStatus")),
			DialCallSid:     get("DialCallSid"),
			DurationSeconds: atoiNonNegative(get("DialCallDuration")),
			Mailbox:         strings.ToLower(get("mailbox")),
		}, nil

	case KindGather:
		return GatherResult{
			CallSid:       get("CallSid"),
			ParentCallSid: get("ParentCallSid"),
			From:          normalizePhone(get("From")),
			To:            normalizePhone(get("To")),
			Digits:        get("Digits"),
			Mailbox:       strings.ToLower(get("mailbox")),
			Attempt:       atoiNonNegative(get("attempt")),
		}, nil

	case KindEvent:
		name := get("event_type")
		if name == "" {
			name = get("EventType")
		}
		return EventNotice{
			CallSid: get("CallSid"),
			Name:    strings.ToLower(name),
			Digit:   firstNonEmpty(get("digit"), get("Digits")),
			Mailbox: strings.ToLower(get("mailbox")),
			Detail:  firstNonEmpty(get("detail"), get("Detail")),
		}, nil

	default:
		return nil, fmt.Errorf("telephony: unknown callback kind %q", kind)
	}
}

// IsInboundDirection reports whether a provider Direction value describes a caller reaching us.
// Empty counts as inbound: status callbacks for our own number omit it on some accounts.
func IsInboundDirection(direction string) bool {
	d := strings.ToLower(direction)
	return d == "" || d == "inbound"
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}

func atoiNonNegative(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Twilio stamps status callbacks in RFC 1123 with a numeric zone.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
