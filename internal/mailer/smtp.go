package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/go-mail/mail"
	"github.com/google/uuid"

	"github.com/foxzi/clientdesk/internal/config"
	"github.com/foxzi/clientdesk/internal/dkim"
)

// DeliveryError is an SMTP failure classified as temporary or permanent
type DeliveryError struct {
	Temporary bool
	Code      int
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// IsTemporaryError reports whether err may succeed on retry
func IsTemporaryError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	var se *SimulatedError
	if errors.As(err, &se) {
		return se.Temporary
	}
	return false
}

// SMTP composes MIME messages and relays them through an SMTP server
type SMTP struct {
	identity
	cfg    config.SMTPConfig
	signer *dkim.Signer
	logger *slog.Logger
	now    func() time.Time
}

// NewSMTP creates the SMTP provider. signer may be nil.
func NewSMTP(cfg config.SMTPConfig, senderEmail, senderName string, signer *dkim.Signer, logger *slog.Logger) *SMTP {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	return &SMTP{
		identity: identity{email: senderEmail, name: senderName},
		cfg:      cfg,
		signer:   signer,
		logger:   logger,
		now:      time.Now,
	}
}

// Send implements Sender
func (s *SMTP) Send(ctx context.Context, msg *Message) error {
	data, err := s.Compose(msg)
	if err != nil {
		return err
	}

	if s.signer != nil {
		signed, err := s.signer.Sign(data)
		if err != nil {
			s.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", s.signer.Domain(),
				"error", err,
			)
		} else {
			data = signed
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.deliver(msg.To, data)
}

// Compose renders msg as a MIME message
func (s *SMTP) Compose(msg *Message) ([]byte, error) {
	m := mail.NewMessage()
	m.SetAddressHeader("From", s.email, s.displayName(msg))
	m.SetAddressHeader("To", msg.To, msg.ToName)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetDateHeader("Date", s.now())
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", uuid.New().String(), domainOf(s.email)))
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}

	for _, a := range msg.Attachments {
		content := a.Content
		settings := []mail.FileSetting{
			mail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, mail.SetHeader(map[string][]string{
				"Content-Type": {a.ContentType},
			}))
		}
		m.Attach(a.Filename, settings...)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to compose message: %w", err)
	}
	return buf.Bytes(), nil
}

// deliver relays data to the configured server
func (s *SMTP) deliver(to string, data []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{
		ServerName: s.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	var (
		c   *smtp.Client
		err error
	)
	if s.cfg.TLSMode == "ssl" {
		c, err = smtp.DialTLS(addr, tlsConfig)
	} else {
		c, err = smtp.Dial(addr)
	}
	if err != nil {
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("connection failed to %s: %v", addr, err),
		}
	}
	defer c.Close()

	c.CommandTimeout = s.cfg.Timeout
	c.SubmissionTimeout = s.cfg.Timeout

	if err := c.Hello(s.cfg.Hostname); err != nil {
		return categorizeError(err, "EHLO")
	}

	if s.cfg.TLSMode == "starttls" {
		if err := c.StartTLS(tlsConfig); err != nil {
			return categorizeError(err, "STARTTLS")
		}
	}

	if s.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
			return categorizeError(err, "AUTH")
		}
	}

	if err := c.Mail(s.email, nil); err != nil {
		return categorizeError(err, "MAIL FROM")
	}
	if err := c.Rcpt(to, nil); err != nil {
		return categorizeError(err, "RCPT TO "+to)
	}

	wc, err := c.Data()
	if err != nil {
		return categorizeError(err, "DATA")
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("failed to write message data: %v", err),
		}
	}
	if err := wc.Close(); err != nil {
		return categorizeError(err, "DATA close")
	}

	if err := c.Quit(); err != nil {
		s.logger.Debug("QUIT failed", "error", err)
	}

	s.logger.Info("message relayed", "relay", addr, "to", to)
	return nil
}

// categorizeError classifies an SMTP error by its reply code
func categorizeError(err error, stage string) *DeliveryError {
	de := &DeliveryError{
		Temporary: true,
		Message:   fmt.Sprintf("%s failed: %v", stage, err),
	}

	var se *smtp.SMTPError
	if errors.As(err, &se) {
		de.Code = se.Code
		de.Temporary = se.Code < 500
	}
	return de
}

func domainOf(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[at+1:]
	}
	return "localhost"
}
