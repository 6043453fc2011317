package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"mailroom/core/port/out"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Enabled  bool
}

// SMTPSender sends outbound mail over implicit TLS. Sending is
// feature-flagged: while disabled every call returns SendStatusBlocked
// without opening a connection.
type SMTPSender struct {
	cfg SMTPConfig
	log zerolog.Logger
}

func NewSMTPSender(cfg SMTPConfig, log zerolog.Logger) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	return &SMTPSender{
		cfg: cfg,
		log: log.With().Str("component", "smtp").Logger(),
	}
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject, body string) (out.SendStatus, error) {
	if !s.cfg.Enabled {
		s.log.Info().Strs("to", to).Str("subject", subject).Msg("outbound sending disabled, send blocked")
		return out.SendStatusBlocked, nil
	}

	msg := strings.NewReader(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		s.cfg.From,
		strings.Join(to, ", "),
		subject,
		time.Now().Format(time.RFC1123Z),
		body,
	))

	auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := smtp.SendMailTLS(addr, auth, s.cfg.From, to, msg); err != nil {
		return "", fmt.Errorf("smtp send to %v: %w", to, err)
	}

	s.log.Info().Strs("to", to).Str("subject", subject).Msg("mail sent")
	return out.SendStatusSent, nil
}
