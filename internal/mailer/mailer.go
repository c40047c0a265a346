package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/macina-app/macina/internal/config"
)

// Module provides the mailer to Fx.
var Module = fx.Provide(NewMailer)

// Message is one outbound email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Mailer sends email. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer builds an SMTP mailer, or a noop one when mail is disabled.
func NewMailer(cfg config.Config, logger *zap.Logger) Mailer {
	if !cfg.SMTP.Enabled {
		logger.Info("mail disabled, using noop mailer")
		return noopMailer{logger: logger}
	}
	return &smtpMailer{
		addr:     fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port),
		host:     cfg.SMTP.Host,
		username: cfg.SMTP.Username,
		password: cfg.SMTP.Password,
		from:     cfg.SMTP.From,
		logger:   logger,
	}
}

type noopMailer struct {
	logger *zap.Logger
}

func (n noopMailer) Send(_ context.Context, msg Message) error {
	if n.logger != nil {
		n.logger.Info("noop mailer drop", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	}
	return nil
}

type smtpMailer struct {
	addr     string
	host     string
	username string
	password string
	from     string
	logger   *zap.Logger
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients")
	}

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	payload := strings.Join([]string{
		"From: " + m.from,
		"To: " + strings.Join(msg.To, ", "),
		"Subject: " + msg.Subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		msg.Body,
	}, "\r\n")

	if err := smtp.SendMail(m.addr, auth, m.from, msg.To, []byte(payload)); err != nil {
		if m.logger != nil {
			m.logger.Error("smtp send failed", zap.Strings("to", msg.To), zap.Error(err))
		}
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
