package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/wneessen/go-mail"
)

type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends html mail through a plain SMTP relay.
type SMTPMailer struct {
	settings SMTPSettings
}

func NewSMTPMailer(s SMTPSettings) (*SMTPMailer, error) {
	if s.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if s.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	if s.Port == 0 {
		s.Port = 587
	}
	if s.Timeout == 0 {
		s.Timeout = 10 * time.Second
	}
	return &SMTPMailer{settings: s}, nil
}

// NewSMTPMailerFromEnv returns (nil, nil) when SMTP_HOST is unset so callers can run without email.
func NewSMTPMailerFromEnv() (*SMTPMailer, error) {
	host := strings.TrimSpace(os.Getenv("SMTP_HOST"))
	if host == "" {
		return nil, nil
	}
	return NewSMTPMailer(SMTPSettings{
		Host:     host,
		Port:     utils.IntFromEnv("SMTP_PORT", 587),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
		Timeout:  utils.SecondsFromEnv("NOTIFY_EMAIL_TIMEOUT_SECONDS", 10*time.Second),
	})
}

func (m *SMTPMailer) SendEmail(ctx context.Context, to string, subject string, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.settings.From); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("smtp to %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	opts := []mail.Option{
		mail.WithPort(m.settings.Port),
		mail.WithTimeout(m.settings.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.settings.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.settings.Username),
			mail.WithPassword(m.settings.Password),
		)
	}
	client, err := mail.NewClient(m.settings.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
