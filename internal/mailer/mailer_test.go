package mailer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/clientdesk/internal/config"
	"github.com/foxzi/clientdesk/internal/dkim"
	"github.com/foxzi/clientdesk/internal/metrics"
	"github.com/foxzi/clientdesk/internal/store"
	"github.com/foxzi/clientdesk/internal/store/bolt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) store.Store {
	t.Helper()

	s, err := bolt.Open(filepath.Join(t.TempDir(), "mail.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func validMessage() *Message {
	return &Message{
		To:       "jane@client.test",
		ToName:   "Jane Doe",
		Subject:  "Welcome aboard",
		HTML:     "<p>Hi Jane</p>",
		Text:     "Hi Jane",
		FromName: "Sue",
		ReplyTo:  "sue@freelancer.test",
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Message)
		want   error
	}{
		{"valid", func(m *Message) {}, nil},
		{"text only", func(m *Message) { m.HTML = "" }, nil},
		{"html only", func(m *Message) { m.Text = "" }, nil},
		{"no recipient", func(m *Message) { m.To = " " }, ErrNoRecipient},
		{"bad recipient", func(m *Message) { m.To = "jane" }, ErrInvalidRecipient},
		{"no subject", func(m *Message) { m.Subject = "" }, ErrNoSubject},
		{"no content", func(m *Message) { m.HTML, m.Text = "", " " }, ErrNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMessage()
			tt.modify(m)
			assert.ErrorIs(t, m.Validate(), tt.want)
		})
	}
}

func TestAddress(t *testing.T) {
	assert.Equal(t, "a@b.test", Address("", "a@b.test"))
	assert.Equal(t, `"Sue" <a@b.test>`, Address("Sue", "a@b.test"))
	assert.Equal(t, `"Sue, Studio" <a@b.test>`, Address("Sue, Studio", "a@b.test"))
}

func TestIdentityFrom(t *testing.T) {
	id := identity{email: "hello@studio.test", name: "Studio"}

	assert.Equal(t, `"Sue" <hello@studio.test>`, id.from(&Message{FromName: "Sue"}))
	assert.Equal(t, `"Studio" <hello@studio.test>`, id.from(&Message{}))
	assert.Equal(t, "hello@studio.test", identity{email: "hello@studio.test"}.from(&Message{}))
}

func TestInstrument(t *testing.T) {
	m := metrics.New()
	metrics.SetGlobal(m)
	defer metrics.SetGlobal(nil)

	calls := 0
	fail := false
	next := SenderFunc(func(ctx context.Context, msg *Message) error {
		calls++
		if fail {
			return errors.New("boom")
		}
		return nil
	})
	s := Instrument("test", next, discardLogger())

	require.NoError(t, s.Send(context.Background(), validMessage()))

	fail = true
	assert.Error(t, s.Send(context.Background(), validMessage()))

	err := s.Send(context.Background(), &Message{To: "jane@client.test"})
	assert.ErrorIs(t, err, ErrNoSubject)

	assert.Equal(t, 2, calls, "invalid messages never reach the provider")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSentTotal.WithLabelValues("test")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmailsFailedTotal.WithLabelValues("test")))
}

func TestNew(t *testing.T) {
	base := config.MailerConfig{SenderEmail: "hello@studio.test", SenderName: "Studio"}

	kp, err := dkim.GenerateKey("studio.test", "cd", 1024)
	require.NoError(t, err)
	signer := dkim.NewSigner(kp.PrivateKey, kp.Domain, kp.Selector)

	tests := []struct {
		name    string
		modify  func(*config.MailerConfig)
		deps    Deps
		wantErr error
		anyErr  bool
	}{
		{"log", func(c *config.MailerConfig) { c.Provider = config.ProviderLog }, Deps{}, nil, false},
		{"resend", func(c *config.MailerConfig) {
			c.Provider = config.ProviderResend
			c.Resend.APIKey = "re_test"
		}, Deps{}, nil, false},
		{"mailgun", func(c *config.MailerConfig) {
			c.Provider = config.ProviderMailgun
			c.Mailgun = config.MailgunConfig{Domain: "mg.studio.test", APIKey: "key"}
		}, Deps{}, nil, false},
		{"ses", func(c *config.MailerConfig) {
			c.Provider = config.ProviderSES
			c.SES = config.SESConfig{Region: "eu-west-1", AccessKeyID: "id", SecretAccessKey: "secret"}
		}, Deps{}, nil, false},
		{"smtp", func(c *config.MailerConfig) {
			c.Provider = config.ProviderSMTP
			c.SMTP = config.SMTPConfig{Host: "localhost", Port: 25}
		}, Deps{}, nil, false},
		{"smtp with missing dkim key", func(c *config.MailerConfig) {
			c.Provider = config.ProviderSMTP
			c.SMTP = config.SMTPConfig{Host: "localhost", DKIM: config.DKIMConfig{Enabled: true, KeyFile: "/nonexistent/key.pem"}}
		}, Deps{}, nil, true},
		{"smtp with preloaded signer", func(c *config.MailerConfig) {
			c.Provider = config.ProviderSMTP
			c.SMTP = config.SMTPConfig{Host: "localhost", DKIM: config.DKIMConfig{Enabled: true, KeyFile: "/nonexistent/key.pem"}}
		}, Deps{Signer: signer}, nil, false},
		{"sandbox without store", func(c *config.MailerConfig) { c.Provider = config.ProviderSandbox }, Deps{}, nil, true},
		{"unknown", func(c *config.MailerConfig) { c.Provider = "fax" }, Deps{}, ErrUnknownProvider, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)

			s, err := New(cfg, tt.deps)
			if tt.anyErr {
				assert.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestNewSandbox(t *testing.T) {
	st := testStore(t)
	s, err := New(config.MailerConfig{
		Provider:    config.ProviderSandbox,
		SenderEmail: "hello@studio.test",
	}, Deps{Store: st, Logger: discardLogger()})
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), validMessage()))

	docs, err := st.All(context.Background(), store.CollectionSandbox, "")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestLogProvider(t *testing.T) {
	l := NewLog("hello@studio.test", "Studio", discardLogger())
	assert.NoError(t, l.Send(context.Background(), validMessage()))
}
