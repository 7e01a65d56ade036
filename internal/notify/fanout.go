package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/email"
	"voice-orchestrator/internal/telephony"
	"voice-orchestrator/internal/voicemail"
	"voice-orchestrator/internal/worker"
	"voice-orchestrator/pkg/logger"
)

// Submitter accepts background jobs without blocking. worker.Dispatcher satisfies it.
type Submitter interface {
	Submit(job worker.Job) bool
}

type SMSSender interface {
	SendSMS(ctx context.Context, msg telephony.SMS) (string, error)
}

type EmailSender interface {
	Send(ctx context.Context, msg email.Message) error
}

// Recipients is the fixed operational distribution list.
type Recipients struct {
	SMSTo   string
	SMSFrom string
	EmailTo []string
}

// Job names, also used as metric labels.
const (
	JobSMSCall         = "sms.call"
	JobEmailCall       = "email.call"
	JobEmailVoicemail  = "email.voicemail"
	JobSMSTranscript   = "sms.transcript"
	JobEmailTranscript = "email.transcript"
)

// Fanout implements calls.Notifier and voicemail.Notifier.
//
// Channel policy:
// - Terminal inbound call: SMS + email.
// - New voicemail: email only; the SMS waits for the transcript.
// - Transcript (or its failure): SMS + email carrying the text.
//
// Every channel is a separate job, so one failing never holds back the other.
type Fanout struct {
	to       Recipients
	composer *Composer
	jobs     Submitter
	sms      SMSSender
	email    EmailSender
	log      *slog.Logger
}

func NewFanout(to Recipients, composer *Composer, jobs Submitter, sms SMSSender, mail EmailSender, log *slog.Logger) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{
		to:       to,
		composer: composer,
		jobs:     jobs,
		sms:      sms,
		email:    mail,
		log:      log.With("component", "notify"),
	}
}

var (
	_ calls.Notifier     = (*Fanout)(nil)
	_ voicemail.Notifier = (*Fanout)(nil)
)

func (f *Fanout) CallEnded(ctx context.Context, rec calls.CallRecord) {
	compose := func(ctx context.Context) Summary { return f.composer.Call(ctx, rec) }
	f.submitSMS(ctx, JobSMSCall, "sms:call:"+rec.ProviderCallID, compose)
	f.submitEmail(ctx, JobEmailCall, "email:call:"+rec.ProviderCallID, compose)
}

func (f *Fanout) VoicemailCreated(ctx context.Context, v voicemail.VoicemailRecord) {
	compose := func(ctx context.Context) Summary { return f.composer.Voicemail(ctx, v) }
	f.submitEmail(ctx, JobEmailVoicemail, "email:voicemail:"+v.ProviderRecordingID, compose)
}

func (f *Fanout) VoicemailTranscribed(ctx context.Context, v voicemail.VoicemailRecord) {
	compose := func(ctx context.Context) Summary { return f.composer.Transcript(ctx, v) }
	f.submitSMS(ctx, JobSMSTranscript, "sms:transcript:"+v.ProviderRecordingID, compose)
	f.submitEmail(ctx, JobEmailTranscript, "email:transcript:"+v.ProviderRecordingID, compose)
}

func (f *Fanout) submitSMS(ctx context.Context, name, key string, compose func(context.Context) Summary) {
	if f.sms == nil || f.to.SMSTo == "" {
		logger.From(ctx).Debug("sms channel disabled, skipping", "job", name)
		return
	}
	f.submit(worker.Job{
		Key:  key,
		Name: name,
		Run: func(ctx context.Context) error {
			s := compose(ctx)
			sid, err := f.sms.SendSMS(ctx, telephony.SMS{From: f.to.SMSFrom, To: f.to.SMSTo, Body: s.SMS})
			if err != nil {
				return classify(fmt.Errorf("notify: sms: %w", err))
			}
			logger.From(ctx).Info("notification sms sent", "message_sid", sid)
			return nil
		},
	})
}

func (f *Fanout) submitEmail(ctx context.Context, name, key string, compose func(context.Context) Summary) {
	if f.email == nil || len(f.to.EmailTo) == 0 {
		logger.From(ctx).Debug("email channel disabled, skipping", "job", name)
		return
	}
	f.submit(worker.Job{
		Key:  key,
		Name: name,
		Run: func(ctx context.Context) error {
			s := compose(ctx)
			err := f.email.Send(ctx, email.Message{To: f.to.EmailTo, Subject: s.Subject, Text: s.Text})
			if err != nil {
				return classify(fmt.Errorf("notify: email: %w", err))
			}
			logger.From(ctx).Info("notification email sent", "recipients", len(f.to.EmailTo))
			return nil
		},
	})
}

func (f *Fanout) submit(job worker.Job) {
	if f.jobs == nil {
		return
	}
	if !f.jobs.Submit(job) {
		f.log.Warn("notification dropped", "job", job.Name, "key", job.Key)
	}
}

// classify marks configuration errors as not retryable.
func classify(err error) error {
	if errors.Is(err, telephony.ErrNotConfigured) || errors.Is(err, email.ErrNotConfigured) {
		return worker.Permanent(err)
	}
	return err
}
