package email

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"

	"gopkg.in/gomail.v2"
)

type Message struct {
	FromName  string
	FromEmail string
	To        []string
	Subject   string
	TextBody  string
}

type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLSMode is "tls" for implicit TLS, otherwise STARTTLS is used when the
	// server offers it.
	TLSMode string
}

type SMTPSender struct {
	Settings SMTPSettings

	dial func(d *gomail.Dialer, m *gomail.Message) error
}

func NewSMTPSender(settings SMTPSettings) *SMTPSender {
	return &SMTPSender{Settings: settings}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("email: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d := gomail.NewDialer(s.Settings.Host, s.Settings.Port, s.Settings.Username, s.Settings.Password)
	d.SSL = strings.EqualFold(s.Settings.TLSMode, "tls")
	d.TLSConfig = &tls.Config{ServerName: s.Settings.Host, MinVersion: tls.VersionTLS12}

	dial := s.dial
	if dial == nil {
		dial = func(d *gomail.Dialer, m *gomail.Message) error { return d.DialAndSend(m) }
	}
	return dial(d, buildMessage(msg))
}

func buildMessage(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	if msg.FromName != "" {
		m.SetAddressHeader("From", msg.FromEmail, msg.FromName)
	} else {
		m.SetHeader("From", msg.FromEmail)
	}
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.TextBody)
	return m
}
