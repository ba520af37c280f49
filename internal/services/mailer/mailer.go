package mailer

import (
	"fmt"
	"net/smtp"
)

// Mailer sends plain-text mail over SMTP (OTP delivery, contact-us and
// issue reports).
type Mailer struct {
	Host string
	Port string
	User string
	Pass string
}

func NewMailer(host, port, user, pass string) *Mailer {
	return &Mailer{Host: host, Port: port, User: user, Pass: pass}
}

func (m *Mailer) Send(to, subject, body string) error {
	if m.Host == "" || m.User == "" {
		return fmt.Errorf("smtp not configured: set SMTP_HOST, EMAIL_USER, EMAIL_PASS")
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.User, to, subject, body)

	auth := smtp.PlainAuth("", m.User, m.Pass, m.Host)
	return smtp.SendMail(m.Host+":"+m.Port, auth, m.User, []string{to}, []byte(msg))
}
