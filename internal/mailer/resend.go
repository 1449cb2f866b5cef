package mailer

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v3"

	"github.com/foxzi/clientdesk/internal/config"
)

// Resend sends through the Resend API
type Resend struct {
	identity
	client *resend.Client
}

// NewResend creates the Resend provider
func NewResend(cfg config.ResendConfig, senderEmail, senderName string) (*Resend, error) {
	client := resend.NewClient(cfg.APIKey)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid resend base url: %w", err)
		}
		client.BaseURL = base
	}

	return &Resend{
		identity: identity{email: senderEmail, name: senderName},
		client:   client,
	}, nil
}

// Send implements Sender
func (s *Resend) Send(ctx context.Context, msg *Message) error {
	req := &resend.SendEmailRequest{
		From:    s.from(msg),
		To:      []string{Address(msg.ToName, msg.To)},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
		Headers: msg.Headers,
	}

	if len(msg.Attachments) > 0 {
		req.Attachments = make([]*resend.Attachment, len(msg.Attachments))
		for i, a := range msg.Attachments {
			req.Attachments[i] = &resend.Attachment{
				Filename:    a.Filename,
				Content:     a.Content,
				ContentType: a.ContentType,
			}
		}
	}

	if _, err := s.client.Emails.SendWithContext(ctx, req); err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	return nil
}
