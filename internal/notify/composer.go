// Package notify turns terminal calls and voicemails into operator SMS and email.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/phone"
	"voice-orchestrator/internal/voicemail"
)

// NameResolver returns the best human label for a caller number.
// phone.Correlator satisfies it.
type NameResolver interface {
	DisplayName(ctx context.Context, raw string) string
}

const (
	timestampLayout = "Mon, 02 Jan 2006 3:04 PM MST"

	// Keeps a transcript SMS within a handful of segments.
	maxSMSTranscript = 320

	transcriptUnavailable = "(transcription unavailable)"
)

// Summary is one composed notification in both channel shapes.
type Summary struct {
	SMS     string
	Subject string
	Text    string
}

// Composer builds notification text. It is safe for concurrent use.
type Composer struct {
	names   NameResolver
	loc     *time.Location
	baseURL string
	clock   func() time.Time
}

func NewComposer(names NameResolver, loc *time.Location, publicBaseURL string) *Composer {
	if loc == nil {
		loc = time.UTC
	}
	return &Composer{
		names:   names,
		loc:     loc,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		clock:   time.Now,
	}
}

// PlaybackURL is the capability link for a voicemail recording.
func (c *Composer) PlaybackURL(voicemailID string) string {
	return c.baseURL + "/voice/play-recording/" + voicemailID
}

// Call summarizes a terminal inbound call.
func (c *Composer) Call(ctx context.Context, rec calls.CallRecord) Summary {
	caller := c.caller(ctx, rec.FromNumber)
	label := rec.Disposition.Label()
	if label == "" {
		label = "Call ended"
	}
	at := rec.StartedAt
	if rec.EndedAt != nil {
		at = *rec.EndedAt
	}
	when := c.local(at)
	dur := formatDuration(rec.DurationSeconds)

	var b strings.Builder
	fmt.Fprintf(&b, "%s from %s.\n\n", label, caller)
	fmt.Fprintf(&b, "Number: %s\n", phone.Display(rec.FromNumber))
	fmt.Fprintf(&b, "Date: %s\n", when)
	fmt.Fprintf(&b, "Duration: %s\n", dur)
	fmt.Fprintf(&b, "Status: %s\n", rec.Status)
	fmt.Fprintf(&b, "Call ID: %s\n", rec.ProviderCallID)

	return Summary{
		SMS:     fmt.Sprintf("%s from %s, %s, %s", label, caller, dur, when),
		Subject: fmt.Sprintf("%s from %s", label, caller),
		Text:    b.String(),
	}
}

// Voicemail is the plain "you have a voicemail" notice, sent before any transcript exists.
func (c *Composer) Voicemail(ctx context.Context, v voicemail.VoicemailRecord) Summary {
	caller := c.caller(ctx, v.FromNumber)
	body := c.voicemailBody(v, caller)
	return Summary{
		SMS:     fmt.Sprintf("New voicemail from %s (%s). Listen: %s", caller, formatDuration(v.DurationSeconds), c.PlaybackURL(v.ID)),
		Subject: fmt.Sprintf("New voicemail from %s", caller),
		Text:    body,
	}
}

// Transcript is the transcript-bearing notice that supersedes Voicemail.
func (c *Composer) Transcript(ctx context.Context, v voicemail.VoicemailRecord) Summary {
	caller := c.caller(ctx, v.FromNumber)
	text := strings.TrimSpace(v.TranscriptionText)
	if v.TranscriptionStatus == voicemail.TranscriptionFailed || text == "" {
		text = transcriptUnavailable
	}

	var b strings.Builder
	b.WriteString(c.voicemailBody(v, caller))
	b.WriteString("\nTranscript:\n")
	b.WriteString(text)
	b.WriteString("\n")

	return Summary{
		SMS: fmt.Sprintf("Voicemail from %s (%s, %s): %q Listen: %s",
			caller, v.MailboxLabel(), formatDuration(v.DurationSeconds), truncateRunes(text, maxSMSTranscript), c.PlaybackURL(v.ID)),
		Subject: fmt.Sprintf("Voicemail from %s (%s)", caller, v.MailboxLabel()),
		Text:    b.String(),
	}
}

func (c *Composer) voicemailBody(v voicemail.VoicemailRecord, caller string) string {
	at := v.CreatedAt
	if at.IsZero() {
		at = c.clock()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have a new voicemail message in %s.\n\n", v.MailboxLabel())
	fmt.Fprintf(&b, "From: %s\n", caller)
	fmt.Fprintf(&b, "Date: %s\n", c.local(at))
	fmt.Fprintf(&b, "Duration: %s\n", formatDuration(v.DurationSeconds))
	fmt.Fprintf(&b, "Listen: %s\n", c.PlaybackURL(v.ID))
	return b.String()
}

// caller prefers the directory name and keeps the number alongside it.
func (c *Composer) caller(ctx context.Context, raw string) string {
	number := phone.Display(raw)
	if c.names == nil || phone.IsAnonymous(raw) {
		return number
	}
	name := strings.TrimSpace(c.names.DisplayName(ctx, raw))
	if name == "" || name == number {
		return number
	}
	return fmt.Sprintf("%s (%s)", name, number)
}

func (c *Composer) local(t time.Time) string {
	return t.In(c.loc).Format(timestampLayout)
}

// formatDuration converts seconds into a human-readable string like "2m 15s".
func formatDuration(secs int) string {
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	m := secs / 60
	s := secs % 60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
