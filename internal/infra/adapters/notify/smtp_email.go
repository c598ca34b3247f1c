// File: internal/infra/adapters/notify/smtp_email.go
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"esim-reseller/internal/config"
	"esim-reseller/internal/domain/ports/adapter"
)

var _ adapter.EmailSender = (*SMTPEmailSender)(nil)

// SMTPEmailSender delivers HTML mail over plain SMTP with AUTH.
type SMTPEmailSender struct {
	host     string
	port     int
	username string
	password string
	sender   string
}

func NewSMTPEmailSender(cfg config.SMTPConfig) *SMTPEmailSender {
	return &SMTPEmailSender{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		sender:   cfg.Sender,
	}
}

func (s *SMTPEmailSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if s.host == "" {
		return fmt.Errorf("smtp host not configured")
	}
	var msg strings.Builder
	msg.WriteString("From: " + s.sender + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, s.sender, []string{to}, []byte(msg.String()))
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
