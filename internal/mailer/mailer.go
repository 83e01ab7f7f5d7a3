// Package mailer delivers one-time codes to users by email.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"
	"time"

	"github.com/jordan-wright/email"
)

const appName = "GoQuote"

// Mailer sends the emails that carry one-time codes.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, fullName, code string) error
	SendPasswordResetCode(ctx context.Context, to, code string) error
}

// SMTPConfig holds SMTP server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// VerificationMessage renders the email-verification code email.
func VerificationMessage(fullName, code string, ttl time.Duration) Message {
	greeting := "Hi,"
	if fullName != "" {
		greeting = fmt.Sprintf("Hi %s,", fullName)
	}
	minutes := int(ttl.Minutes())
	return Message{
		Subject: fmt.Sprintf("Verify your email - %s", appName),
		HTML: fmt.Sprintf(`<p>%s</p>
<p>Your verification code is: <strong>%s</strong></p>
<p>This code expires in %d minutes. If you didn't create an account, you can ignore this email.</p>
<p>%s</p>`, greeting, code, minutes, appName),
		Text: fmt.Sprintf("%s\n\nYour verification code is: %s\n\nThis code expires in %d minutes. If you didn't create an account, you can ignore this email.\n\n%s\n",
			greeting, code, minutes, appName),
	}
}

// PasswordResetMessage renders the password-reset code email.
func PasswordResetMessage(code string, ttl time.Duration) Message {
	minutes := int(ttl.Minutes())
	return Message{
		Subject: fmt.Sprintf("Password reset code - %s", appName),
		HTML: fmt.Sprintf(`<p>You requested a password reset.</p>
<p>Your reset code is: <strong>%s</strong></p>
<p>This code expires in %d minutes. If you didn't request this, you can ignore this email.</p>
<p>%s</p>`, code, minutes, appName),
		Text: fmt.Sprintf("You requested a password reset.\n\nYour reset code is: %s\n\nThis code expires in %d minutes. If you didn't request this, you can ignore this email.\n\n%s\n",
			code, minutes, appName),
	}
}

// SMTPMailer sends mail through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	cfg  SMTPConfig
	ttl  time.Duration
	send func(addr string, a smtp.Auth, e *email.Email) error
}

// NewSMTPMailer creates an SMTPMailer. ttl is quoted in the message body.
func NewSMTPMailer(cfg SMTPConfig, ttl time.Duration) *SMTPMailer {
	return &SMTPMailer{
		cfg: cfg,
		ttl: ttl,
		send: func(addr string, a smtp.Auth, e *email.Email) error {
			return e.Send(addr, a)
		},
	}
}

// SendVerificationCode implements Mailer.
func (m *SMTPMailer) SendVerificationCode(ctx context.Context, to, fullName, code string) error {
	return m.deliver(to, VerificationMessage(fullName, code, m.ttl))
}

// SendPasswordResetCode implements Mailer.
func (m *SMTPMailer) SendPasswordResetCode(ctx context.Context, to, code string) error {
	return m.deliver(to, PasswordResetMessage(code, m.ttl))
}

func (m *SMTPMailer) deliver(to string, msg Message) error {
	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = []string{to}
	e.Subject = msg.Subject
	e.HTML = []byte(msg.HTML)
	e.Text = []byte(msg.Text)

	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := m.send(addr, auth, e); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	return nil
}

// LogMailer writes codes to the structured log instead of sending email.
// It is the fallback when no SMTP relay is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer. A nil logger uses slog.Default().
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendVerificationCode implements Mailer.
func (m *LogMailer) SendVerificationCode(ctx context.Context, to, fullName, code string) error {
	m.logger.InfoContext(ctx, "email not configured, verification code logged", "to", to, "code", code)
	return nil
}

// SendPasswordResetCode implements Mailer.
func (m *LogMailer) SendPasswordResetCode(ctx context.Context, to, code string) error {
	m.logger.InfoContext(ctx, "email not configured, password reset code logged", "to", to, "code", code)
	return nil
}
