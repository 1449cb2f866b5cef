package mailer

import (
	"context"
	"log/slog"
)

// Log writes messages to the logger instead of sending them
type Log struct {
	identity
	logger *slog.Logger
}

// NewLog creates the logging provider
func NewLog(senderEmail, senderName string, logger *slog.Logger) *Log {
	return &Log{identity: identity{email: senderEmail, name: senderName}, logger: logger}
}

// Send logs the message envelope
func (l *Log) Send(ctx context.Context, msg *Message) error {
	l.logger.Info("email",
		"from", l.from(msg),
		"to", Address(msg.ToName, msg.To),
		"reply_to", msg.ReplyTo,
		"subject", msg.Subject,
		"html_bytes", len(msg.HTML),
		"text_bytes", len(msg.Text),
		"attachments", len(msg.Attachments),
	)
	return nil
}
