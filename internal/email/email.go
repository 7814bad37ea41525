package email

import (
	"fmt"
	"net/smtp"

	"purrductive.app/cloud/internal/logger"
)

// Sender delivers plain text mail over SMTP. A nil Sender is valid and drops
// every message, which keeps email optional in deployments without SMTP.
type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func (s *Sender) Send(to, subject, body string) error {
	if s == nil {
		logger.Debug("Email sending disabled, dropping message", map[string]interface{}{
			"to":      to,
			"subject": subject,
		})
		return nil
	}

	if s.Host == "" || s.Port == "" || s.Username == "" || s.Password == "" {
		logger.Error("SMTP configuration missing")
		return fmt.Errorf("SMTP configuration missing")
	}

	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)

	msg := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", s.From, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	return smtp.SendMail(addr, auth, s.From, []string{to}, msg)
}
