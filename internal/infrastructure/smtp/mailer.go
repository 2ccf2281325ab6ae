package smtp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/otp-auth-api/internal/application/otp"
	"github.com/otp-auth-api/internal/config"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer renders a template and hands it to an SMTP relay.
type Mailer struct {
	host      string
	port      string
	from      string
	username  string
	password  string
	templates TemplateSource
	send      sendFunc
}

var _ otp.Mailer = (*Mailer)(nil)

func NewMailer(cfg config.SMTP, templates TemplateSource) *Mailer {
	return &Mailer{
		host:      cfg.Host,
		port:      cfg.Port,
		from:      cfg.From,
		username:  cfg.Username,
		password:  cfg.Password,
		templates: templates,
		send:      smtp.SendMail,
	}
}

func (m *Mailer) Send(ctx context.Context, to, subject, templateID string, data otp.TemplateData) error {
	tmpl, err := m.templates.Template(ctx, templateID)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render template %s: %w", templateID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := m.compose(to, subject, body.Bytes())
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	if err := m.send(addr, auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	slog.DebugContext(ctx, "mail sent", "template", templateID, "to", to)
	return nil
}

func (m *Mailer) compose(to, subject string, body []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.Write(body)
	return b.Bytes()
}
