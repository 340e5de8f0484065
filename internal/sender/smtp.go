package sender

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/regabilling/retarget/internal/config"
)

// SMTPSender delivers email over plain SMTP.
type SMTPSender struct {
	host      string
	port      int
	user      string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender builds an SMTP sender from the email config.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.SMTPHost,
		port:      cfg.SMTPPort,
		user:      cfg.SMTPUser,
		password:  cfg.SMTPPassword,
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
	}
}

// SendEmail dials the SMTP server and sends one message. SMTP gives us no
// provider id back, so we stamp our own Message-ID and return it.
func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, htmlBody, recipientName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), s.host)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.fromEmail, s.fromName)
	m.SetAddressHeader("To", to, recipientName)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(s.host, s.port, s.user, s.password)
	if err := d.DialAndSend(m); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return messageID, nil
}
