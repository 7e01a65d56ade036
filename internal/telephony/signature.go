package telephony

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go/client"
)

// HeaderSignature carries the provider's HMAC over the full URL and sorted POST params.
const HeaderSignature = "X-Twilio-Signature"

// Verifier checks that a callback was signed with the account's auth token.
//
// The URL is rebuilt from the configured public base URL and the request URI,
// never from the local socket, so it matches what the provider signed behind a proxy.
type Verifier struct {
	baseURL   string
	validator *client.RequestValidator
	log       *slog.Logger
}

// NewVerifier returns a verifier. An empty authToken disables verification (dev only;
// config validation refuses that in production).
func NewVerifier(authToken, publicBaseURL string, log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	v := &Verifier{baseURL: strings.TrimRight(publicBaseURL, "/"), log: log}
	if authToken != "" {
		rv := client.NewRequestValidator(authToken)
		v.validator = &rv
	}
	return v
}

// Enabled reports whether a signing secret is configured.
func (v *Verifier) Enabled() bool { return v != nil && v.validator != nil }

// URL reconstructs the absolute URL the provider signed.
func (v *Verifier) URL(requestURI string) string {
	return v.baseURL + requestURI
}

// Verify is a pure predicate. Malformed input is invalid, never a panic.
func (v *Verifier) Verify(requestURI string, form url.Values, signature string) bool {
	if !v.Enabled() {
		v.log.Warn("webhook signature verification skipped: no auth token configured", "uri", requestURI)
		return true
	}
	if strings.TrimSpace(signature) == "" || requestURI == "" {
		return false
	}

	params := make(map[string]string, len(form))
	for k, vals := range form {
		if len(vals) > 0 {
			params[k] = vals[0]
		}
	}
	return v.validator.Validate(v.URL(requestURI), params, signature)
}
