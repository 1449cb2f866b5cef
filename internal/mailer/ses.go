package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"

	"github.com/foxzi/clientdesk/internal/config"
)

const sesCharset = "UTF-8"

// SES sends through Amazon Simple Email Service
type SES struct {
	identity
	ses              *ses.SES
	configurationSet string
}

// NewSES creates the SES provider. Static credentials are used when set,
// otherwise the AWS default credential chain applies.
func NewSES(cfg config.SESConfig, senderEmail, senderName string) (*SES, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.AccessKeyID != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return &SES{
		identity:         identity{email: senderEmail, name: senderName},
		ses:              ses.New(sess),
		configurationSet: cfg.ConfigurationSet,
	}, nil
}

// Send implements Sender. Attachments and custom headers require raw
// messages and are not sent through this provider.
func (s *SES) Send(ctx context.Context, msg *Message) error {
	body := &ses.Body{}
	if msg.HTML != "" {
		body.Html = &ses.Content{Charset: aws.String(sesCharset), Data: aws.String(msg.HTML)}
	}
	if msg.Text != "" {
		body.Text = &ses.Content{Charset: aws.String(sesCharset), Data: aws.String(msg.Text)}
	}

	input := &ses.SendEmailInput{
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(Address(msg.ToName, msg.To))},
		},
		Message: &ses.Message{
			Body:    body,
			Subject: &ses.Content{Charset: aws.String(sesCharset), Data: aws.String(msg.Subject)},
		},
		Source: aws.String(s.from(msg)),
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []*string{aws.String(msg.ReplyTo)}
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	if _, err := s.ses.SendEmailWithContext(ctx, input); err != nil {
		return fmt.Errorf("ses: failed to send email: %w", err)
	}
	return nil
}
