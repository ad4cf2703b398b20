// Package mailer sends transactional email through MailerSend.
package mailer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mailersend/mailersend-go"

	"github.com/iliyamo/bus-ticket-booking/internal/config"
)

type Attachment struct {
	Filename string
	Content  []byte
}

// Envelope is one outgoing email.
type Envelope struct {
	ToEmail     string
	ToName      string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

type Sender interface {
	Send(ctx context.Context, env Envelope) error
}

// MailerSend delivers envelopes with the MailerSend API.
type MailerSend struct {
	client *mailersend.Mailersend
	from   mailersend.From
	send   func(ctx context.Context, msg *mailersend.Message) (*mailersend.Response, error)
}

func NewMailerSend(cfg config.MailConfig) *MailerSend {
	client := mailersend.NewMailersend(cfg.APIKey)
	return &MailerSend{
		client: client,
		from:   mailersend.From{Name: cfg.FromName, Email: cfg.FromEmail},
		send:   client.Email.Send,
	}
}

// New returns a MailerSend sender, or a log-only sender when no API key is
// configured.
func New(cfg config.MailConfig) Sender {
	if cfg.APIKey == "" {
		return LogSender{Log: slog.Default()}
	}
	return NewMailerSend(cfg)
}

func (m *MailerSend) message(env Envelope) *mailersend.Message {
	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: env.ToName, Email: env.ToEmail}})
	msg.SetSubject(env.Subject)
	msg.SetHTML(env.HTML)
	msg.SetText(env.Text)
	for _, a := range env.Attachments {
		msg.AddAttachment(mailersend.Attachment{
			Filename:    a.Filename,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Disposition: "attachment",
		})
	}
	return msg
}

func (m *MailerSend) Send(ctx context.Context, env Envelope) error {
	if env.ToEmail == "" {
		return errors.New("mailer: recipient is required")
	}
	res, err := m.send(ctx, m.message(env))
	if err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}
	msgID := ""
	if res != nil && res.Response != nil {
		msgID = res.Header.Get("X-Message-Id")
	}
	slog.Info("email sent", "to", env.ToEmail, "subject", env.Subject, "message_id", msgID)
	return nil
}

// LogSender only logs what would have been sent.
type LogSender struct {
	Log *slog.Logger
}

func (l LogSender) Send(_ context.Context, env Envelope) error {
	l.Log.Info("email delivery disabled, skipping", "to", env.ToEmail, "subject", env.Subject, "attachments", len(env.Attachments))
	return nil
}
