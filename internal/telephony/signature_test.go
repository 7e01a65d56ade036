package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"testing"
)

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	payload := fullURL
	for _, k := range keys {
		payload += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifier_AcceptsValidSignature(t *testing.T) {
	v := NewVerifier("secret-token", "https://voice.example.com/", nil)
	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}, "CallDuration": {"42"}}
	sig := sign("secret-token", "https://voice.example.com/voice/status", form)

	if !v.Verify("/voice/status", form, sig) {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifier_RejectsTamperedPayload(t *testing.T) {
	v := NewVerifier("secret-token", "https://voice.example.com", nil)
	form := url.Values{"CallSid": {"CA1"}, "CallDuration": {"42"}}
	sig := sign("secret-token", "https://voice.example.com/voice/status", form)

	form.Set("CallDuration", "0")
	if v.Verify("/voice/status", form, sig) {
		t.Fatalf("expected tampered payload to fail")
	}
}

func TestVerifier_URLMustMatchPublicBase(t *testing.T) {
	v := NewVerifier("secret-token", "https://voice.example.com", nil)
	form := url.Values{"RecordingSid": {"RE1"}}
	// Signed against the internal address a proxy forwarded to.
	sig := sign("secret-token", "http://10.0.0.5:8080/voice/recording", form)

	if v.Verify("/voice/recording", form, sig) {
		t.Fatalf("expected signature over the wrong host to fail")
	}
}

func TestVerifier_QueryStringIsPartOfSignedURL(t *testing.T) {
	v := NewVerifier("secret-token", "https://voice.example.com", nil)
	form := url.Values{"RecordingSid": {"RE1"}}
	sig := sign("secret-token", "https://voice.example.com/voice/voicemail-recorded?mailbox=clinical", form)

	if !v.Verify("/voice/voicemail-recorded?mailbox=clinical", form, sig) {
		t.Fatalf("expected signature with query to verify")
	}
	if v.Verify("/voice/voicemail-recorded?mailbox=operator", form, sig) {
		t.Fatalf("expected changed query to fail")
	}
}

func TestVerifier_MissingHeaderIsInvalid(t *testing.T) {
	v := NewVerifier("secret-token", "https://voice.example.com", nil)
	if v.Verify("/voice/status", url.Values{"CallSid": {"CA1"}}, "") {
		t.Fatalf("expected missing signature to fail")
	}
	if v.Verify("/voice/status", nil, "not-base64!!") {
		t.Fatalf("expected garbage signature to fail")
	}
}

func TestVerifier_NoSecretSkips(t *testing.T) {
	v := NewVerifier("", "https://voice.example.com", nil)
	if v.Enabled() {
		t.Fatalf("expected verifier disabled without a token")
	}
	if !v.Verify("/voice/status", url.Values{}, "") {
		t.Fatalf("expected skip to accept")
	}
}
