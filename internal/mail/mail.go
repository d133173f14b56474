// Package mail delivers account emails queued by the API.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/events"
	"github.com/imrishuroy/go-esewa-storefront/internal/logging"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, msg events.EmailPayload) error
}

// SMTPConfig points at an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends HTML mail through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, msg events.EmailPayload) error {
	if msg.To == "" {
		return fmt.Errorf("send mail: empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.sendMail(addr, auth, s.cfg.From, []string{msg.To}, compose(s.cfg.From, msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func compose(from string, msg events.EmailPayload) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// LogSender logs emails instead of sending them. Used when no SMTP host is configured.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(ctx context.Context, msg events.EmailPayload) error {
	logger := s.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	logger.Info("email not sent, no smtp relay configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}
