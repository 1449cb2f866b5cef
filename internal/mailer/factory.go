package mailer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/foxzi/clientdesk/internal/config"
	"github.com/foxzi/clientdesk/internal/dkim"
	"github.com/foxzi/clientdesk/internal/metrics"
	"github.com/foxzi/clientdesk/internal/store"
)

// Deps are the collaborators some providers need
type Deps struct {
	Store  store.Store  // Required by the sandbox provider
	Signer *dkim.Signer // Preloaded DKIM signer for smtp, read from cfg when nil
	Logger *slog.Logger
}

// New creates the provider selected in cfg, wrapped with validation and metrics
func New(cfg config.MailerConfig, deps Deps) (Sender, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "mailer", "provider", cfg.Provider)

	id := identity{email: cfg.SenderEmail, name: cfg.SenderName}

	var (
		sender Sender
		err    error
	)
	switch cfg.Provider {
	case config.ProviderResend:
		sender, err = NewResend(cfg.Resend, id.email, id.name)
	case config.ProviderMailgun:
		sender = NewMailgun(cfg.Mailgun, id.email, id.name)
	case config.ProviderSES:
		sender, err = NewSES(cfg.SES, id.email, id.name)
	case config.ProviderSMTP:
		signer := deps.Signer
		if signer == nil {
			signer, err = dkim.FromConfig(cfg.SMTP.DKIM)
		}
		if err == nil {
			sender = NewSMTP(cfg.SMTP, id.email, id.name, signer, logger)
		}
	case config.ProviderSandbox:
		if deps.Store == nil {
			return nil, fmt.Errorf("sandbox provider requires a store")
		}
		sb := NewSandbox(deps.Store, id.email, id.name, logger)
		sb.SetErrorSimulation(cfg.Sandbox.SimulateErrors, cfg.Sandbox.ErrorProbability)
		sender = sb
	case config.ProviderLog:
		sender = NewLog(id.email, id.name, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.Provider, err)
	}

	return Instrument(cfg.Provider, sender, logger), nil
}

// Instrument validates messages before sending and records the outcome
func Instrument(provider string, next Sender, logger *slog.Logger) Sender {
	return SenderFunc(func(ctx context.Context, msg *Message) error {
		if err := msg.Validate(); err != nil {
			metrics.IncEmailsFailed(provider)
			return err
		}

		if err := next.Send(ctx, msg); err != nil {
			metrics.IncEmailsFailed(provider)
			logger.Warn("email send failed", "to", msg.To, "error", err)
			return err
		}

		metrics.IncEmailsSent(provider)
		logger.Debug("email sent", "to", msg.To, "subject", msg.Subject)
		return nil
	})
}
