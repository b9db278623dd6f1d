// Package notify delivers transactional email for quote lifecycle events.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sellaris/backend-crm/internal/common"
)

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	Addr     string
	Username string
	Password string
	From     string
}

// Send implements common.EmailSender.
func (s SMTPSender) Send(to, subject, html string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("notify: recipient is required")
	}
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		html,
	}, "\r\n")

	var auth smtp.Auth
	if s.Username != "" {
		host := s.Addr
		if idx := strings.LastIndex(host, ":"); idx >= 0 {
			host = host[:idx]
		}
		auth = smtp.PlainAuth("", s.Username, s.Password, host)
	}
	if err := smtp.SendMail(s.Addr, auth, s.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}
	return nil
}

// NewSender selects an email backend by provider name. Unknown providers and
// "noop" both yield a sender that silently discards mail.
func NewSender(provider, smtpAddr, username, password, from string) common.EmailSender {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "smtp":
		return SMTPSender{Addr: smtpAddr, Username: username, Password: password, From: from}
	case "recording":
		return &common.RecordingEmail{}
	default:
		return common.NopEmailSender{}
	}
}
