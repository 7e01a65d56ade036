package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/email"
	"voice-orchestrator/internal/telephony"
	"voice-orchestrator/internal/voicemail"
	"voice-orchestrator/internal/worker"
)

type captureJobs struct {
	jobs []worker.Job
	full bool
}

func (c *captureJobs) Submit(j worker.Job) bool {
	if c.full {
		return false
	}
	c.jobs = append(c.jobs, j)
	return true
}

func (c *captureJobs) keys() []string {
	var out []string
	for _, j := range c.jobs {
		out = append(out, j.Key)
	}
	return out
}

func (c *captureJobs) runAll(t *testing.T) []error {
	t.Helper()
	var errs []error
	for _, j := range c.jobs {
		errs = append(errs, j.Run(context.Background()))
	}
	return errs
}

type fakeSMS struct {
	sent []telephony.SMS
	err  error
}

func (f *fakeSMS) SendSMS(_ context.Context, m telephony.SMS) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "SM1", nil
}

type fakeEmail struct {
	sent []email.Message
	err  error
}

func (f *fakeEmail) Send(_ context.Context, m email.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type staticNames map[string]string

func (s staticNames) DisplayName(_ context.Context, raw string) string {
	return s[raw]
}

var la, _ = time.LoadLocation("America/Los_Angeles")

func newTestFanout(jobs *captureJobs, sms *fakeSMS, mail *fakeEmail) *Fanout {
	c := NewComposer(staticNames{"+13105551234": "Jane Doe"}, la, "https://voice.example.com/")
	return NewFanout(Recipients{SMSTo: "+14155550000", SMSFrom: "+14155550001", EmailTo: []string{"ops@example.com"}}, c, jobs, sms, mail, nil)
}

func endedCall() calls.CallRecord {
	ended := time.Date(2025, 10, 14, 17, 2, 0, 0, time.UTC)
	return calls.CallRecord{
		ProviderCallID:  "CA1",
		Direction:       calls.DirectionInbound,
		FromNumber:      "+13105551234",
		Status:          calls.CallStatusNoAnswer,
		Disposition:     calls.DispositionMissed,
		StartedAt:       ended.Add(-20 * time.Second),
		EndedAt:         &ended,
		DurationSeconds: 0,
	}
}

func voicemailRecord() voicemail.VoicemailRecord {
	return voicemail.VoicemailRecord{
		ID:                  "7f0c1c5e-8d56-4c39-9a4e-3e0b8b0cc001",
		ProviderRecordingID: "RE1",
		FromNumber:          "+13105551234",
		DurationSeconds:     135,
		Mailbox:             "clinical",
		CreatedAt:           time.Date(2025, 10, 14, 17, 3, 0, 0, time.UTC),
	}
}

func TestCallEnded_SendsSMSAndEmail(t *testing.T) {
	jobs, sms, mail := &captureJobs{}, &fakeSMS{}, &fakeEmail{}
	f := newTestFanout(jobs, sms, mail)

	f.CallEnded(context.Background(), endedCall())

	if got := strings.Join(jobs.keys(), ","); got != "sms:call:CA1,email:call:CA1" {
		t.Fatalf("unexpected job keys: %s", got)
	}
	for _, err := range jobs.runAll(t) {
		if err != nil {
			t.Fatalf("job: %v", err)
		}
	}
	if len(sms.sent) != 1 || len(mail.sent) != 1 {
		t.Fatalf("expected one of each channel, got sms=%d email=%d", len(sms.sent), len(mail.sent))
	}
	body := sms.sent[0].Body
	for _, want := range []string{"Missed call", "Jane Doe", "(310) 555-1234", "0s", "10:02 AM PDT"} {
		if !strings.Contains(body, want) {
			t.Fatalf("sms %q missing %q", body, want)
		}
	}
	if sms.sent[0].To != "+14155550000" || sms.sent[0].From != "+14155550001" {
		t.Fatalf("unexpected sms routing: %+v", sms.sent[0])
	}
	if mail.sent[0].Subject != "Missed call from Jane Doe ((310) 555-1234)" {
		t.Fatalf("unexpected subject: %q", mail.sent[0].Subject)
	}
}

func TestVoicemailCreated_EmailOnly(t *testing.T) {
	jobs, sms, mail := &captureJobs{}, &fakeSMS{}, &fakeEmail{}
	f := newTestFanout(jobs, sms, mail)

	f.VoicemailCreated(context.Background(), voicemailRecord())

	if got := strings.Join(jobs.keys(), ","); got != "email:voicemail:RE1" {
		t.Fatalf("unexpected job keys: %s", got)
	}
	jobs.runAll(t)
	if len(sms.sent) != 0 {
		t.Fatalf("plain voicemail must not text")
	}
	text := mail.sent[0].Text
	for _, want := range []string{"in clinical", "2m 15s", "https://voice.example.com/voice/play-recording/7f0c1c5e-8d56-4c39-9a4e-3e0b8b0cc001"} {
		if !strings.Contains(text, want) {
			t.Fatalf("email body missing %q:\n%s", want, text)
		}
	}
}

func TestVoicemailTranscribed_CarriesTranscript(t *testing.T) {
	jobs, sms, mail := &captureJobs{}, &fakeSMS{}, &fakeEmail{}
	f := newTestFanout(jobs, sms, mail)

	v := voicemailRecord()
	v.TranscriptionText = "Please call me back about my refill."
	v.TranscriptionStatus = voicemail.TranscriptionCompleted
	f.VoicemailTranscribed(context.Background(), v)

	if got := strings.Join(jobs.keys(), ","); got != "sms:transcript:RE1,email:transcript:RE1" {
		t.Fatalf("unexpected job keys: %s", got)
	}
	jobs.runAll(t)
	if !strings.Contains(sms.sent[0].Body, "about my refill") || !strings.Contains(mail.sent[0].Text, "Transcript:\nPlease call me back") {
		t.Fatalf("transcript missing: sms=%q email=%q", sms.sent[0].Body, mail.sent[0].Text)
	}
}

func TestVoicemailTranscribed_FailedTranscription(t *testing.T) {
	jobs, sms, mail := &captureJobs{}, &fakeSMS{}, &fakeEmail{}
	f := newTestFanout(jobs, sms, mail)

	v := voicemailRecord()
	v.TranscriptionStatus = voicemail.TranscriptionFailed
	f.VoicemailTranscribed(context.Background(), v)
	jobs.runAll(t)

	if !strings.Contains(sms.sent[0].Body, transcriptUnavailable) {
		t.Fatalf("expected unavailable marker, got %q", sms.sent[0].Body)
	}
}

func TestChannelsFailIndependently(t *testing.T) {
	jobs, sms, mail := &captureJobs{}, &fakeSMS{err: errors.New("carrier down")}, &fakeEmail{}
	f := newTestFanout(jobs, sms, mail)

	f.CallEnded(context.Background(), endedCall())
	errs := jobs.runAll(t)

	if errs[0] == nil || worker.IsPermanent(errs[0]) {
		t.Fatalf("expected retryable sms error, got %v", errs[0])
	}
	if errs[1] != nil || len(mail.sent) != 1 {
		t.Fatalf("email should still go out, err=%v sent=%d", errs[1], len(mail.sent))
	}
}

func TestNotConfiguredIsPermanent(t *testing.T) {
	jobs := &captureJobs{}
	f := newTestFanout(jobs, &fakeSMS{err: telephony.ErrNotConfigured}, &fakeEmail{err: email.ErrNotConfigured})

	f.CallEnded(context.Background(), endedCall())
	for i, err := range jobs.runAll(t) {
		if !worker.IsPermanent(err) {
			t.Fatalf("job %d: expected permanent error, got %v", i, err)
		}
	}
}

func TestMissingRecipientsSkipChannel(t *testing.T) {
	jobs := &captureJobs{}
	c := NewComposer(nil, time.UTC, "https://voice.example.com")
	f := NewFanout(Recipients{EmailTo: []string{"ops@example.com"}}, c, jobs, &fakeSMS{}, &fakeEmail{}, nil)

	f.CallEnded(context.Background(), endedCall())
	if got := strings.Join(jobs.keys(), ","); got != "email:call:CA1" {
		t.Fatalf("unexpected job keys: %s", got)
	}
}

func TestFullQueueDoesNotPanic(t *testing.T) {
	f := newTestFanout(&captureJobs{full: true}, &fakeSMS{}, &fakeEmail{})
	f.CallEnded(context.Background(), endedCall())
}

func TestComposer_AnonymousCaller(t *testing.T) {
	c := NewComposer(staticNames{}, time.UTC, "")
	rec := endedCall()
	rec.FromNumber = "anonymous"
	s := c.Call(context.Background(), rec)
	if !strings.HasPrefix(s.Subject, "Missed call from Unknown caller") {
		t.Fatalf("unexpected subject: %q", s.Subject)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[int]string{0: "0s", 45: "45s", 60: "1m", 125: "2m 5s", 3600: "60m"}
	for in, want := range cases {
		if got := formatDuration(in); got != want {
			t.Fatalf("formatDuration(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo wörld", 5); got != "héll…" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := truncateRunes("short", 10); got != "short" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
