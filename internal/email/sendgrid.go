// Package email sends operational mail through SendGrid.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("email: sender not configured")

// Message is one email to a distribution list.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// client is the slice of the SendGrid client we call.
type client interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridSender struct {
	client   client
	from     *mail.Email
	disabled bool
}

// NewSendGridSender builds a sender. An empty apiKey yields a sender that reports ErrNotConfigured.
func NewSendGridSender(apiKey, fromAddress, fromName string) *SendGridSender {
	s := &SendGridSender{from: mail.NewEmail(fromName, fromAddress)}
	if apiKey == "" || fromAddress == "" {
		s.disabled = true
		return s
	}
	s.client = sendgrid.NewSendClient(apiKey)
	return s
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if s.disabled || s.client == nil {
		return ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return errors.New("email: no recipients")
	}

	m := mail.NewV3Mail()
	m.SetFrom(s.from)
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	for _, addr := range msg.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			p.AddTos(mail.NewEmail("", addr))
		}
	}
	m.AddPersonalizations(p)

	m.AddContent(mail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("email: sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("email: sendgrid status %d: %s", resp.StatusCode, truncate(resp.Body, 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
