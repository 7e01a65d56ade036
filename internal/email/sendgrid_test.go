package email

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type fakeClient struct {
	got    *mail.SGMailV3
	status int
	err    error
}

func (f *fakeClient) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.got = m
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status, Body: "bad request"}, nil
}

func TestSend_BuildsOnePersonalization(t *testing.T) {
	fc := &fakeClient{status: 202}
	s := &SendGridSender{client: fc, from: mail.NewEmail("Front Desk", "desk@example.com")}

	err := s.Send(context.Background(), Message{
		To:      []string{"a@example.com", " ", "b@example.com"},
		Subject: "Missed call",
		Text:    "Missed call from (310) 555-1234",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fc.got.Personalizations) != 1 || len(fc.got.Personalizations[0].To) != 2 {
		t.Fatalf("unexpected recipients: %+v", fc.got.Personalizations)
	}
	if fc.got.Subject != "Missed call" || len(fc.got.Content) != 1 {
		t.Fatalf("unexpected mail: %+v", fc.got)
	}
}

func TestSend_NonSuccessStatusIsError(t *testing.T) {
	s := &SendGridSender{client: &fakeClient{status: 400}, from: mail.NewEmail("", "desk@example.com")}
	if err := s.Send(context.Background(), Message{To: []string{"a@example.com"}, Text: "x"}); err == nil {
		t.Fatalf("expected error for 400")
	}
}

func TestSend_Unconfigured(t *testing.T) {
	s := NewSendGridSender("", "desk@example.com", "")
	if err := s.Send(context.Background(), Message{To: []string{"a@example.com"}}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
