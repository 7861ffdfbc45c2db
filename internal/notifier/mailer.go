package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/aklauser/marktplatz-backend/pkg/config"
)

// Mailer delivers a single email. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type smtpMailer struct {
	host string
	port int
	auth smtp.Auth
	from string
}

// NewSMTPMailer builds a plain SMTP mailer from the mail config.
func NewSMTPMailer(cfg config.MailConfig) (Mailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host required")
	}
	if cfg.DefaultFrom == "" {
		return nil, fmt.Errorf("smtp sender address required")
	}
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return &smtpMailer{
		host: cfg.Host,
		port: cfg.Port,
		auth: auth,
		from: cfg.DefaultFrom,
	}, nil
}

func (m *smtpMailer) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("recipient address required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	if err := smtp.SendMail(addr, m.auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}
