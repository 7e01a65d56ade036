package telephony

import (
	"context"
	"errors"
	"io"
)

// ErrNotConfigured is returned by provider calls when credentials are absent.
var ErrNotConfigured = errors.New("telephony: provider not configured")

// ErrRecordingNotFound means the provider has no media at the given URL.
var ErrRecordingNotFound = errors.New("telephony: recording not found")

// Provider defines the provider-agnostic REST surface used by business logic.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Webhook decoding and TwiML stay in this package too; callers see only typed values.
type Provider interface {
	Name() string

	// SendSMS sends body from one of our numbers and returns the provider message id.
	SendSMS(ctx context.Context, msg SMS) (string, error)

	// FetchRecording opens the media for a recording URL reported in a callback.
	// The caller must close the returned body.
	FetchRecording(ctx context.Context, recordingURL string) (Media, error)
}

// SMS is one outbound text message. From and To are E.164.
type SMS struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

// Media is a streamed recording.
type Media struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}
