package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives the call flows need.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	NumDigits     int      `xml:"numDigits,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	ActionOnEmpty bool     `xml:"actionOnEmptyResult,attr,omitempty"`
	Prompts       []any    `xml:",any"`
}

type twimlDial struct {
	XMLName        xml.Name `xml:"Dial"`
	Action         string   `xml:"action,attr,omitempty"`
	Method         string   `xml:"method,attr,omitempty"`
	Timeout        int      `xml:"timeout,attr,omitempty"`
	AnswerOnBridge bool     `xml:"answerOnBridge,attr,omitempty"`
	CallerID       string   `xml:"callerId,attr,omitempty"`
	Legs           []any    `xml:",any"`
}

type twimlSip struct {
	XMLName xml.Name `xml:"Sip"`
	URL     string   `xml:"url,attr,omitempty"`
	Method  string   `xml:"method,attr,omitempty"`
	URI     string   `xml:",chardata"`
}

type twimlClient struct {
	XMLName  xml.Name `xml:"Client"`
	Identity string   `xml:",chardata"`
}

type twimlNumber struct {
	XMLName xml.Name `xml:"Number"`
	URL     string   `xml:"url,attr,omitempty"`
	Number  string   `xml:",chardata"`
}

type twimlRecord struct {
	XMLName                 xml.Name `xml:"Record"`
	Action                  string   `xml:"action,attr,omitempty"`
	Method                  string   `xml:"method,attr,omitempty"`
	MaxLength               int      `xml:"maxLength,attr,omitempty"`
	Timeout                 int      `xml:"timeout,attr,omitempty"`
	PlayBeep                bool     `xml:"playBeep,attr,omitempty"`
	FinishOnKey             string   `xml:"finishOnKey,attr,omitempty"`
	RecordingStatusCallback string   `xml:"recordingStatusCallback,attr,omitempty"`
	Transcribe              bool     `xml:"transcribe,attr,omitempty"`
	TranscribeCallback      string   `xml:"transcribeCallback,attr,omitempty"`
}

// Gather collects DTMF while speaking Prompt.
type Gather struct {
	Action    string
	NumDigits int
	// Timeout in whole seconds.
	Timeout int
	Prompt  string
	// ActionOnEmpty posts to Action even when no key was pressed.
	ActionOnEmpty bool
}

// DialLeg is one simultaneous destination inside a Dial. Exactly one of SIP, Client, Number is set.
type DialLeg struct {
	SIP    string
	Client string
	Number string
	// AnswerURL runs on the called party's leg once it picks up (screening).
	AnswerURL string
}

// Dial rings every leg at once and bridges the first to answer.
type Dial struct {
	Action   string
	Timeout  int
	CallerID string
	Legs     []DialLeg
}

// Record captures a voicemail with both completion callbacks and transcription.
type Record struct {
	Action             string
	StatusCallback     string
	TranscribeCallback string
	MaxLength          int
	Timeout            int
}

// Response accumulates verbs in order. The zero value is an empty document.
type Response struct {
	Voice string
	verbs []any
	err   error
}

// NewResponse starts an empty document.
func NewResponse() *Response { return &Response{} }

func (r *Response) Say(text string) *Response {
	r.verbs = append(r.verbs, r.say(text))
	return r
}

func (r *Response) Play(url string) *Response {
	r.verbs = append(r.verbs, twimlPlay{URL: url})
	return r
}

func (r *Response) Pause(seconds int) *Response {
	r.verbs = append(r.verbs, twimlPause{Length: seconds})
	return r
}

func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, twimlHangup{})
	return r
}

func (r *Response) Redirect(url string) *Response {
	r.verbs = append(r.verbs, twimlRedirect{Method: "POST", URL: url})
	return r
}

func (r *Response) Gather(g Gather) *Response {
	v := twimlGather{
		Input:         "dtmf",
		NumDigits:     g.NumDigits,
		Timeout:       g.Timeout,
		Action:        g.Action,
		Method:        "POST",
		ActionOnEmpty: g.ActionOnEmpty,
	}
	if g.Prompt != "" {
		v.Prompts = append(v.Prompts, r.say(g.Prompt))
	}
	r.verbs = append(r.verbs, v)
	return r
}

func (r *Response) Dial(d Dial) *Response {
	if len(d.Legs) == 0 {
		r.fail(errors.New("telephony: dial requires at least one leg"))
		return r
	}
	v := twimlDial{
		Action:         d.Action,
		Method:         "POST",
		Timeout:        d.Timeout,
		AnswerOnBridge: true,
		CallerID:       d.CallerID,
	}
	for _, leg := range d.Legs {
		switch {
		case leg.SIP != "":
			if !strings.HasPrefix(strings.ToLower(leg.SIP), "sip:") {
				r.fail(errors.New("telephony: sip leg must be a sip: uri"))
				return r
			}
			sip := twimlSip{URL: leg.AnswerURL, URI: leg.SIP}
			if leg.AnswerURL != "" {
				sip.Method = "POST"
			}
			v.Legs = append(v.Legs, sip)
		case leg.Client != "":
			v.Legs = append(v.Legs, twimlClient{Identity: leg.Client})
		case leg.Number != "":
			v.Legs = append(v.Legs, twimlNumber{URL: leg.AnswerURL, Number: leg.Number})
		default:
			r.fail(errors.New("telephony: empty dial leg"))
			return r
		}
	}
	r.verbs = append(r.verbs, v)
	return r
}

func (r *Response) Record(rec Record) *Response {
	r.verbs = append(r.verbs, twimlRecord{
		Action:                  rec.Action,
		Method:                  "POST",
		MaxLength:               rec.MaxLength,
		Timeout:                 rec.Timeout,
		PlayBeep:                true,
		FinishOnKey:             "#",
		RecordingStatusCallback: rec.StatusCallback,
		Transcribe:              rec.TranscribeCallback != "",
		TranscribeCallback:      rec.TranscribeCallback,
	})
	return r
}

// Render encodes the document with an XML header.
func (r *Response) Render() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	doc := twimlResponse{Verbs: r.verbs}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// EmptyDocument is what the provider gets when there is nothing more to do on the current leg.
const EmptyDocument = xml.Header + "<Response></Response>"

func (r *Response) say(text string) twimlSay {
	return twimlSay{Voice: r.Voice, Text: text}
}

func (r *Response) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
