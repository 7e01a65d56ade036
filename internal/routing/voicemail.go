package routing

import (
	"context"

	"voice-orchestrator/internal/callevent"
	"voice-orchestrator/internal/telephony"
)

const (
	recordSilenceSeconds = 5

	noMessagePrompt = "We did not receive a message. Goodbye."
	savedPrompt     = "Thank you. Your message has been saved. Goodbye."
)

var voicemailPrompts = map[string]string{
	MailboxOperator: "Please leave a message after the tone. Press pound when you are finished.",
	MailboxClinical: "You have reached the clinical team. Please leave your name, date of birth and a brief message after the tone. Press pound when you are finished.",
}

// Voicemail is the only recording instruction in the flow; every path that ends in a
// voicemail goes through here, parameterized by mailbox.
func (o *Orchestrator) Voicemail(ctx context.Context, callSid, mailbox string) Decision {
	return o.voicemail(ctx, callSid, mailbox, "")
}

// RecordingSaved answers the inline recording callback once the caller is done.
func (o *Orchestrator) RecordingSaved() Decision {
	return Decision{Action: ActionHangup, Reason: "recorded", Doc: o.doc().Say(savedPrompt).Hangup()}
}

func (o *Orchestrator) voicemail(ctx context.Context, callSid, mailbox, preface string) Decision {
	mailbox = NormalizeMailbox(mailbox)
	o.event(ctx, callevent.Event{ProviderCallID: callSid, Type: callevent.EventTypeVoicemailStart, Mailbox: mailbox})
	o.markUnanswered(ctx, callSid)

	doc := o.doc()
	if preface != "" {
		doc.Say(preface)
	}
	o.appendVoicemail(doc, mailbox)
	return Decision{Action: ActionVoicemail, Reason: mailbox, Doc: doc}
}

func (o *Orchestrator) appendVoicemail(doc *telephony.Response, mailbox string) {
	prompt, ok := voicemailPrompts[mailbox]
	if !ok {
		prompt = voicemailPrompts[MailboxOperator]
	}
	doc.Say(prompt).
		Record(telephony.Record{
			Action:             o.mailboxURL(PathVoicemailDone, mailbox),
			StatusCallback:     o.mailboxURL(PathRecording, mailbox),
			TranscribeCallback: o.URL(PathTranscription, nil),
			MaxLength:          seconds(o.cfg.MaxRecording),
			Timeout:            recordSilenceSeconds,
		}).
		Say(noMessagePrompt).
		Hangup()
}
