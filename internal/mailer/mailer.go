// Package mailer delivers single email messages through a configured provider.
//
// Every provider sends from the one verified address in the configuration.
// A message may override only the display name shown next to it, and sets
// Reply-To so that answers reach the freelancer directly.
package mailer

import (
	"context"
	"errors"
	"net/mail"
	"strings"
)

var (
	// ErrNoRecipient indicates the message has no recipient address
	ErrNoRecipient = errors.New("email must have a recipient")

	// ErrInvalidRecipient indicates the recipient address does not parse
	ErrInvalidRecipient = errors.New("invalid recipient address")

	// ErrNoSubject indicates the message has no subject
	ErrNoSubject = errors.New("email must have a subject")

	// ErrNoContent indicates neither an HTML nor a text body was given
	ErrNoContent = errors.New("email must have content")

	// ErrUnknownProvider is returned by New for an unsupported provider name
	ErrUnknownProvider = errors.New("unknown mail provider")
)

// Attachment is a file sent with a message
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"content,omitempty"`
}

// Message is a fully rendered email for one recipient
type Message struct {
	To          string            `json:"to"`
	ToName      string            `json:"to_name,omitempty"`
	Subject     string            `json:"subject"`
	HTML        string            `json:"html,omitempty"`
	Text        string            `json:"text,omitempty"`
	FromName    string            `json:"from_name,omitempty"` // Display name over the verified address
	ReplyTo     string            `json:"reply_to,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
}

// Validate checks the message can be handed to a provider
func (m *Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return ErrInvalidRecipient
	}
	if strings.TrimSpace(m.Subject) == "" {
		return ErrNoSubject
	}
	if strings.TrimSpace(m.HTML) == "" && strings.TrimSpace(m.Text) == "" {
		return ErrNoContent
	}
	return nil
}

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, msg *Message) error

// Send calls f
func (f SenderFunc) Send(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Address formats a display name and address as an RFC 5322 mailbox
func Address(name, email string) string {
	if name == "" {
		return email
	}
	return (&mail.Address{Name: name, Address: email}).String()
}

// identity is the fixed sending address shared by all providers
type identity struct {
	email string
	name  string
}

// from returns the From mailbox for msg
func (id identity) from(msg *Message) string {
	return Address(id.displayName(msg), id.email)
}

func (id identity) displayName(msg *Message) string {
	if msg.FromName != "" {
		return msg.FromName
	}
	return id.name
}
