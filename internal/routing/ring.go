package routing

import (
	"context"
	"fmt"

	"voice-orchestrator/internal/callevent"
	"voice-orchestrator/internal/phone"
	"voice-orchestrator/internal/telephony"
)

const (
	connectingPrompt = "Please hold while we connect you."
	screenPrompt     = "Call from %s. Press 1 to accept."
	offerTextPrompt  = "Sorry, no one is available right now. To get a text message from us instead of leaving a voicemail, press 1."
	textSentPrompt   = "Thank you. We have sent you a text message and will reply there shortly. Goodbye."
	textFailedPrompt = "Sorry, we could not send a text message."

	// TextBackBody is the acknowledgment texted to a caller who chose a text reply.
	TextBackBody = "Thanks for calling! We missed you, but we got your request and will reply to this text shortly."
)

// ConnectOperator rings every configured destination at once. The desk line and the
// fallback number are screened; the softphone is bridged on answer.
func (o *Orchestrator) ConnectOperator(ctx context.Context, g telephony.GatherResult) Decision {
	mailbox := NormalizeMailbox(g.Mailbox)
	screen := o.mailboxURL(PathScreenCall, mailbox)

	var legs []telephony.DialLeg
	if o.cfg.DeskSIPURI != "" {
		legs = append(legs, telephony.DialLeg{SIP: o.cfg.DeskSIPURI, AnswerURL: screen})
	}
	if o.cfg.SoftphoneIdentity != "" {
		legs = append(legs, telephony.DialLeg{Client: o.cfg.SoftphoneIdentity})
	}
	if o.cfg.FallbackNumber != "" {
		legs = append(legs, telephony.DialLeg{Number: o.cfg.FallbackNumber, AnswerURL: screen})
	}
	if len(legs) == 0 {
		o.log.Warn("no ring destinations configured, sending caller to voicemail", "call_sid", g.CallSid)
		return o.Voicemail(ctx, g.CallSid, mailbox)
	}

	o.event(ctx, callevent.Event{ProviderCallID: g.CallSid, Type: callevent.EventTypeTransfer, Mailbox: mailbox, Detail: fmt.Sprintf("%d legs", len(legs))})
	doc := o.doc().
		Say(connectingPrompt).
		Dial(telephony.Dial{
			Action:  o.mailboxURL(PathDialStatus, mailbox),
			Timeout: seconds(o.cfg.DialTimeout),
			Legs:    legs,
		})
	return Decision{Action: ActionRing, Reason: "operator", Doc: doc}
}

// ScreenCall runs on a screened leg once it picks up, before it is bridged.
// No key within the timeout falls through to the hangup, which ends only this leg.
func (o *Orchestrator) ScreenCall(ctx context.Context, g telephony.GatherResult) Decision {
	caller := phone.Display(g.From)
	if o.names != nil && !phone.IsAnonymous(g.From) {
		caller = o.names.DisplayName(ctx, g.From)
	}
	doc := o.doc().
		Gather(telephony.Gather{
			Action:    o.mailboxURL(PathScreenResult, g.Mailbox),
			NumDigits: 1,
			Timeout:   seconds(o.cfg.ScreenTimeout),
			Prompt:    fmt.Sprintf(screenPrompt, caller),
		}).
		Hangup()
	return Decision{Action: ActionScreen, Reason: "whisper", Doc: doc}
}

// ScreenResult bridges on 1. Anything else releases the screened leg only, so the
// sibling legs keep ringing.
func (o *Orchestrator) ScreenResult(ctx context.Context, g telephony.GatherResult) Decision {
	e := callevent.Event{ProviderCallID: g.RootCallSID(), Type: callevent.EventTypeScreenResult, Digit: g.Digits, Mailbox: NormalizeMailbox(g.Mailbox)}
	if g.Digits == "1" {
		e.Detail = "accepted"
		o.event(ctx, e)
		return Decision{Action: ActionBridge, Reason: "accepted", Doc: o.doc()}
	}
	e.Detail = "declined"
	if g.TimedOut() {
		e.Detail = "timeout"
	}
	o.event(ctx, e)
	return Decision{Action: ActionReleaseLeg, Reason: e.Detail, Doc: o.doc().Hangup()}
}

// DialResult interprets the aggregate ring outcome. Unanswered callers get one chance
// to ask for a text reply before the voicemail instruction runs.
func (o *Orchestrator) DialResult(ctx context.Context, d telephony.DialResult) Decision {
	mailbox := NormalizeMailbox(d.Mailbox)
	o.event(ctx, callevent.Event{ProviderCallID: d.CallSid, Type: callevent.EventTypeDialResult, Mailbox: mailbox, Detail: d.DialCallStatus})

	if d.Answered() {
		return Decision{Action: ActionHangup, Reason: "bridged", Doc: o.doc().Hangup()}
	}
	o.markUnanswered(ctx, d.CallSid)
	if phone.IsAnonymous(d.From) {
		return o.Voicemail(ctx, d.CallSid, mailbox)
	}

	// An empty answer still posts to TextBack, which starts the voicemail. The trailing
	// recording only runs if that request cannot be made.
	doc := o.doc().Gather(telephony.Gather{
		Action:        o.mailboxURL(PathTextBack, mailbox),
		NumDigits:     1,
		Timeout:       seconds(o.cfg.OfferTimeout),
		Prompt:        offerTextPrompt,
		ActionOnEmpty: true,
	})
	o.appendVoicemail(doc, mailbox)
	return Decision{Action: ActionOfferText, Reason: d.DialCallStatus, Doc: doc}
}

// markUnanswered is best effort: the call flow continues if the store is down.
func (o *Orchestrator) markUnanswered(ctx context.Context, callSid string) {
	if o.calls == nil || callSid == "" {
		return
	}
	if err := o.calls.MarkUnanswered(ctx, callSid); err != nil {
		o.log.Warn("mark unanswered failed", "call_sid", callSid, "err", err)
	}
}

// TextBack handles the answer to the text-reply offer. Pressing 1 texts the caller
// from the number they dialed and ends the call without a recording. Any other key
// or a failed send falls through to voicemail.
func (o *Orchestrator) TextBack(ctx context.Context, g telephony.GatherResult) Decision {
	mailbox := NormalizeMailbox(g.Mailbox)
	if g.Digits != "1" {
		return o.Voicemail(ctx, g.CallSid, mailbox)
	}

	log := o.log.With("call_sid", g.CallSid)
	if err := o.sendTextBack(ctx, g); err != nil {
		log.Warn("text-back failed, falling back to voicemail", "err", err)
		d := o.voicemail(ctx, g.CallSid, mailbox, textFailedPrompt)
		d.Reason = "text_back_failed"
		return d
	}

	o.event(ctx, callevent.Event{ProviderCallID: g.CallSid, Type: callevent.EventTypeTextBack, Digit: g.Digits, Mailbox: mailbox})
	log.Info("text-back sent")
	return Decision{Action: ActionTextBack, Reason: "caller_request", Doc: o.doc().Say(textSentPrompt).Hangup()}
}

func (o *Orchestrator) sendTextBack(ctx context.Context, g telephony.GatherResult) error {
	if o.sms == nil {
		return telephony.ErrNotConfigured
	}
	if phone.IsAnonymous(g.From) || g.To == "" {
		return fmt.Errorf("routing: cannot text back from %q to %q", g.To, g.From)
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SMSTimeout)
	defer cancel()

	to := phone.Normalize(g.From)
	if _, err := o.sms.SendSMS(ctx, telephony.SMS{From: g.To, To: to, Body: TextBackBody}); err != nil {
		return err
	}

	// Thread failures are logged only; the text already went out.
	if o.threads == nil {
		return nil
	}
	threadID, err := o.threads.FindOrCreate(ctx, to)
	if err != nil {
		o.log.Warn("conversation thread lookup failed", "call_sid", g.CallSid, "err", err)
		return nil
	}
	if err := o.threads.AppendOutboundMessage(ctx, threadID, TextBackBody); err != nil {
		o.log.Warn("conversation thread append failed", "call_sid", g.CallSid, "thread_id", threadID, "err", err)
	}
	return nil
}
