package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig is the subset of account settings the REST adapter needs.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string

	// Timeout bounds every REST call; zero means 10s.
	Timeout time.Duration
	// MediaTimeout bounds recording downloads; zero means 15s.
	MediaTimeout time.Duration
}

// TwilioProvider talks to the Twilio REST API. Construct one per process and inject it.
type TwilioProvider struct {
	accountSID string
	rest       *twilio.RestClient
	media      *resty.Client
}

func NewTwilioProvider(cfg TwilioConfig) *TwilioProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MediaTimeout <= 0 {
		cfg.MediaTimeout = 15 * time.Second
	}
	p := &TwilioProvider{accountSID: cfg.AccountSID}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return p
	}

	p.rest = twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	p.rest.SetTimeout(cfg.Timeout)

	p.media = resty.New().
		SetTimeout(cfg.MediaTimeout).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetRetryCount(1).
		SetRetryWaitTime(250 * time.Millisecond)
	return p
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) SendSMS(ctx context.Context, msg SMS) (string, error) {
	if p.rest == nil {
		return "", ErrNotConfigured
	}
	if msg.To == "" || msg.From == "" || strings.TrimSpace(msg.Body) == "" {
		return "", errors.New("telephony: sms requires to, from and body")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(msg.From)
	params.SetBody(msg.Body)

	resp, err := p.rest.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("telephony: twilio create message: %w", err)
	}
	if resp == nil || resp.Sid == nil {
		return "", errors.New("telephony: twilio create message returned no sid")
	}
	return *resp.Sid, nil
}

// FetchRecording downloads the mp3 rendition of a recording.
func (p *TwilioProvider) FetchRecording(ctx context.Context, recordingURL string) (Media, error) {
	if p.media == nil {
		return Media{}, ErrNotConfigured
	}
	if recordingURL == "" {
		return Media{}, ErrRecordingNotFound
	}

	resp, err := p.media.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(mediaURL(recordingURL))
	if err != nil {
		return Media{}, fmt.Errorf("telephony: fetch recording: %w", err)
	}
	body := resp.RawBody()

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		_ = body.Close()
		return Media{}, ErrRecordingNotFound
	case resp.StatusCode() >= 300:
		_ = body.Close()
		return Media{}, fmt.Errorf("telephony: fetch recording: status %d", resp.StatusCode())
	}

	ct := resp.Header().Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}
	return Media{Body: body, ContentType: ct, ContentLength: resp.RawResponse.ContentLength}, nil
}

func mediaURL(recordingURL string) string {
	if strings.HasSuffix(recordingURL, ".mp3") || strings.HasSuffix(recordingURL, ".wav") {
		return recordingURL
	}
	return recordingURL + ".mp3"
}
