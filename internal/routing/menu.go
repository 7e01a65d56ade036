package routing

import (
	"context"
	"net/url"
	"strconv"

	"voice-orchestrator/internal/callevent"
	"voice-orchestrator/internal/telephony"
)

const (
	greetingPrompt = "Thank you for calling. To reach the front desk, press 1. To leave a message for the clinical team, press 2."
	menuRetry      = "Sorry, that is not a valid choice."

	menuTimeoutSeconds = 5
	// One replay after an invalid key, then the operator.
	maxMenuReplays = 1
)

// Greeting answers the incoming-call notice with the entry menu.
func (o *Orchestrator) Greeting(ctx context.Context, n telephony.CallNotice) Decision {
	o.event(ctx, callevent.Event{ProviderCallID: n.CallSid, Type: callevent.EventTypeCallStarted, Detail: n.To})
	return Decision{Action: ActionMenu, Reason: "greeting", Doc: o.menu(0, "")}
}

// Menu handles the entry-menu gather. A timeout counts as choosing the operator.
func (o *Orchestrator) Menu(ctx context.Context, g telephony.GatherResult) Decision {
	e := callevent.Event{ProviderCallID: g.CallSid, Type: callevent.EventTypeMenuDigit, Digit: g.Digits}
	if g.TimedOut() {
		e.Detail = "timeout"
	}

	switch {
	case g.TimedOut() || g.Digits == "1":
		e.Mailbox = MailboxOperator
		o.event(ctx, e)
		doc := o.doc().Redirect(o.mailboxURL(PathConnectOperator, MailboxOperator))
		return Decision{Action: ActionRing, Reason: "menu_operator", Doc: doc}

	case g.Digits == "2":
		e.Mailbox = MailboxClinical
		o.event(ctx, e)
		return o.Voicemail(ctx, g.CallSid, MailboxClinical)

	case g.Attempt < maxMenuReplays:
		e.Detail = "invalid"
		o.event(ctx, e)
		return Decision{Action: ActionMenu, Reason: "menu_replay", Doc: o.menu(g.Attempt+1, menuRetry)}

	default:
		e.Detail = "invalid"
		e.Mailbox = MailboxOperator
		o.event(ctx, e)
		doc := o.doc().Redirect(o.mailboxURL(PathConnectOperator, MailboxOperator))
		return Decision{Action: ActionRing, Reason: "menu_exhausted", Doc: doc}
	}
}

func (o *Orchestrator) menu(attempt int, preface string) *telephony.Response {
	action := o.URL(PathMenu, nil)
	if attempt > 0 {
		action = o.URL(PathMenu, url.Values{"attempt": {strconv.Itoa(attempt)}})
	}
	doc := o.doc()
	if preface != "" {
		doc.Say(preface)
	}
	// No input falls through to the redirect, which the menu reads as a timeout.
	return doc.
		Gather(telephony.Gather{Action: action, NumDigits: 1, Timeout: menuTimeoutSeconds, Prompt: greetingPrompt}).
		Redirect(action)
}
