package mailer

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v3"

	"github.com/foxzi/clientdesk/internal/config"
)

// Mailgun sends through the Mailgun API
type Mailgun struct {
	identity
	mg mailgun.Mailgun
}

// NewMailgun creates the Mailgun provider
func NewMailgun(cfg config.MailgunConfig, senderEmail, senderName string) *Mailgun {
	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	if cfg.BaseURL != "" {
		mg.SetAPIBase(cfg.BaseURL)
	}

	return &Mailgun{
		identity: identity{email: senderEmail, name: senderName},
		mg:       mg,
	}
}

// Send implements Sender
func (s *Mailgun) Send(ctx context.Context, msg *Message) error {
	m := s.mg.NewMessage(s.from(msg), msg.Subject, msg.Text, Address(msg.ToName, msg.To))
	if msg.HTML != "" {
		m.SetHtml(msg.HTML)
	}
	if msg.ReplyTo != "" {
		m.SetReplyTo(msg.ReplyTo)
	}
	for k, v := range msg.Headers {
		m.AddHeader(k, v)
	}
	for _, a := range msg.Attachments {
		m.AddBufferAttachment(a.Filename, a.Content)
	}

	if _, _, err := s.mg.Send(ctx, m); err != nil {
		return fmt.Errorf("mailgun: failed to send email: %w", err)
	}
	return nil
}
