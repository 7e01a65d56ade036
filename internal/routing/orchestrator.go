// Package routing drives a live inbound call: the entry menu, the simultaneous
// ring with desk screening, the text-back offer and the voicemail handoff.
//
// Every step is a pure function of one callback plus configuration. The provider
// carries flow state between steps in the callback URLs (mailbox, attempt), so any
// instance can answer any step.
package routing

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"voice-orchestrator/internal/callevent"
	"voice-orchestrator/internal/telephony"
)

// Callback paths. Instruction documents always reference them as absolute URLs
// because the provider fetches later steps outside the caller's context.
const (
	PathIncoming        = "/voice/incoming"
	PathMenu            = "/voice/menu"
	PathConnectOperator = "/voice/connect-operator"
	PathScreenCall      = "/voice/screen-call"
	PathScreenResult    = "/voice/screen-call-result"
	PathDialStatus      = "/voice/connect-operator-status"
	PathTextBack        = "/voice/connect-operator-text"
	PathRecording       = "/voice/recording"
	PathVoicemailDone   = "/voice/voicemail-recorded"
	PathTranscription   = "/voice/transcription"
)

const (
	MailboxOperator = "operator"
	MailboxClinical = "clinical"
)

type Config struct {
	PublicBaseURL string

	// Ring destinations; any subset may be empty.
	DeskSIPURI        string
	SoftphoneIdentity string
	FallbackNumber    string

	DialTimeout   time.Duration
	ScreenTimeout time.Duration
	OfferTimeout  time.Duration
	MaxRecording  time.Duration

	// SMSTimeout bounds the text-back send inside the webhook response.
	SMSTimeout time.Duration

	// Voice is the TTS voice for every <Say>; empty uses the provider default.
	Voice string
}

func (c Config) withDefaults() Config {
	out := c
	out.PublicBaseURL = strings.TrimRight(out.PublicBaseURL, "/")
	if out.DialTimeout <= 0 {
		out.DialTimeout = 20 * time.Second
	}
	if out.ScreenTimeout <= 0 {
		out.ScreenTimeout = 5 * time.Second
	}
	if out.OfferTimeout <= 0 {
		out.OfferTimeout = 5 * time.Second
	}
	if out.MaxRecording <= 0 {
		out.MaxRecording = 120 * time.Second
	}
	if out.SMSTimeout <= 0 {
		out.SMSTimeout = 5 * time.Second
	}
	return out
}

// EventLogger records IVR decision points. callevent.Service satisfies it.
type EventLogger interface {
	Log(ctx context.Context, e callevent.Event)
}

// CallMarker records that the caller reached no one. calls.Service satisfies it.
type CallMarker interface {
	MarkUnanswered(ctx context.Context, providerCallID string) error
}

// ThreadStore is the external conversation thread store.
type ThreadStore interface {
	FindOrCreate(ctx context.Context, phone string) (string, error)
	AppendOutboundMessage(ctx context.Context, threadID, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, msg telephony.SMS) (string, error)
}

// NameResolver labels the caller for the screening whisper.
type NameResolver interface {
	DisplayName(ctx context.Context, raw string) string
}

// Orchestrator builds the instruction document for each step of the call flow.
type Orchestrator struct {
	cfg     Config
	events  EventLogger
	calls   CallMarker
	threads ThreadStore
	sms     SMSSender
	names   NameResolver
	log     *slog.Logger
}

func NewOrchestrator(cfg Config, events EventLogger, marker CallMarker, threads ThreadStore, sms SMSSender, names NameResolver, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg.withDefaults(),
		events:  events,
		calls:   marker,
		threads: threads,
		sms:     sms,
		names:   names,
		log:     log.With("component", "routing"),
	}
}

// URL renders an absolute callback URL on the public base.
func (o *Orchestrator) URL(path string, q url.Values) string {
	u := o.cfg.PublicBaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (o *Orchestrator) mailboxURL(path, mailbox string) string {
	return o.URL(path, url.Values{"mailbox": {NormalizeMailbox(mailbox)}})
}

func (o *Orchestrator) doc() *telephony.Response {
	r := telephony.NewResponse()
	r.Voice = o.cfg.Voice
	return r
}

func (o *Orchestrator) event(ctx context.Context, e callevent.Event) {
	if o.events != nil {
		o.events.Log(ctx, e)
	}
}

var mailboxPattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// NormalizeMailbox lowercases a mailbox label and falls back to the operator box
// for anything that is not a short slug.
func NormalizeMailbox(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if !mailboxPattern.MatchString(m) {
		return MailboxOperator
	}
	return m
}

func seconds(d time.Duration) int {
	s := int(d / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
