package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/etagwatch/internal/status"
	"github.com/wneessen/go-mail"
)

// EmailConfig carries the SMTP settings for the email channel.
//
// Host, From, Username, and Password are required whenever Recipients is
// non-empty; that invariant is enforced at startup, before the channel is
// constructed.
type EmailConfig struct {
	Host       string
	Port       int
	From       string
	Username   string
	Password   string
	Recipients []string
}

// EmailChannel sends change and failure notifications over SMTP.
//
// One message is sent per recipient so recipients never see each other's
// addresses. With zero recipients the channel is a no-op that logs the skip.
type EmailChannel struct {
	cfg    EmailConfig
	logger *slog.Logger

	// send is swapped in tests to avoid a live SMTP dial
	send func(ctx context.Context, msgs ...*mail.Msg) error
}

// NewEmailChannel creates the email channel.
func NewEmailChannel(cfg EmailConfig, logger *slog.Logger) *EmailChannel {
	c := &EmailChannel{
		cfg:    cfg,
		logger: logger.With("channel", "email"),
	}
	c.send = c.dialAndSend
	return c
}

// Name implements [Channel].
func (c *EmailChannel) Name() string { return "email" }

// Send implements [Channel].
func (c *EmailChannel) Send(ctx context.Context, ev status.Event) error {
	if len(c.cfg.Recipients) == 0 {
		c.logger.Warn("no recipients configured, skipping email notification")
		return nil
	}

	subject, body := composeEmail(ev)

	msgs := make([]*mail.Msg, 0, len(c.cfg.Recipients))
	for _, rcpt := range c.cfg.Recipients {
		m := mail.NewMsg()
		if err := m.From(c.cfg.From); err != nil {
			return fmt.Errorf("invalid sender %q: %w", c.cfg.From, err)
		}
		if err := m.To(rcpt); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", rcpt, err)
		}
		m.Subject(subject)
		m.SetBodyString(mail.TypeTextPlain, body)
		msgs = append(msgs, m)
	}

	if err := c.send(ctx, msgs...); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	c.logger.Info("notification emails sent", "recipients", len(c.cfg.Recipients))
	return nil
}

// dialAndSend performs the real SMTP delivery.
func (c *EmailChannel) dialAndSend(ctx context.Context, msgs ...*mail.Msg) error {
	client, err := mail.NewClient(c.cfg.Host,
		mail.WithPort(c.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(c.cfg.Username),
		mail.WithPassword(c.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msgs...)
}

// composeEmail builds the subject/body pair deterministically from the event.
func composeEmail(ev status.Event) (subject, body string) {
	switch ev.Kind {
	case status.EventChange:
		subject = "Watched resource changed"
		body = fmt.Sprintf("Token: %s\nObserved: %s\n",
			ev.Token, ev.ObservedAt.UTC().Format(time.RFC3339))
	default:
		subject = fmt.Sprintf("Watcher error (%s)", ev.Class.String())
		if ev.Token != "" {
			body = fmt.Sprintf("The watcher hit a %s error.\nLast known token: %s\n",
				ev.Class.String(), ev.Token)
		} else {
			body = fmt.Sprintf("The watcher hit a %s error before any token was observed.\n",
				ev.Class.String())
		}
	}
	return subject, body
}
