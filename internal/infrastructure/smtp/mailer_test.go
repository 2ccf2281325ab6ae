package smtp

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/otp-auth-api/internal/application/otp"
	"github.com/otp-auth-api/internal/config"
	"github.com/otp-auth-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newTestMailer(t *testing.T, cfg config.SMTP, sendErr error) (*Mailer, *captured) {
	t.Helper()
	tmpls, err := NewEmbeddedTemplates()
	require.NoError(t, err)
	m := NewMailer(cfg, tmpls)
	c := &captured{}
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		c.addr, c.auth, c.from, c.to, c.msg = addr, a, from, to, string(msg)
		return sendErr
	}
	return m, c
}

func TestEmbeddedTemplates_KnownIDs(t *testing.T) {
	tmpls, err := NewEmbeddedTemplates()
	require.NoError(t, err)
	for _, id := range []string{domain.TemplateActivation, domain.TemplateForgotPassword} {
		_, err := tmpls.Template(context.Background(), id)
		assert.NoError(t, err, id)
	}
	_, err = tmpls.Template(context.Background(), "nope")
	assert.Error(t, err)
}

func TestMailer_Send_RendersTemplate(t *testing.T) {
	cfg := config.SMTP{Host: "mail.local", Port: "1025", From: "noreply@example.com"}
	m, c := newTestMailer(t, cfg, nil)

	err := m.Send(context.Background(), "alice@example.com", "Verify your email",
		domain.TemplateActivation, otp.TemplateData{Name: "Alice", OTP: "01234"})
	require.NoError(t, err)

	assert.Equal(t, "mail.local:1025", c.addr)
	assert.Nil(t, c.auth)
	assert.Equal(t, "noreply@example.com", c.from)
	assert.Equal(t, []string{"alice@example.com"}, c.to)
	assert.Contains(t, c.msg, "Subject: Verify your email\r\n")
	assert.Contains(t, c.msg, "Content-Type: text/html")
	assert.Contains(t, c.msg, "Hi Alice,")
	assert.Contains(t, c.msg, "01234")
}

func TestMailer_Send_EscapesName(t *testing.T) {
	m, c := newTestMailer(t, config.SMTP{Host: "h", Port: "25"}, nil)

	err := m.Send(context.Background(), "x@example.com", "s",
		domain.TemplateForgotPassword, otp.TemplateData{Name: "<script>", OTP: "11111"})
	require.NoError(t, err)
	assert.NotContains(t, c.msg, "<script>")
	assert.Contains(t, c.msg, "&lt;script&gt;")
}

func TestMailer_Send_UsesAuthWhenConfigured(t *testing.T) {
	m, c := newTestMailer(t, config.SMTP{Host: "h", Port: "587", Username: "u", Password: "p"}, nil)

	require.NoError(t, m.Send(context.Background(), "x@example.com", "s",
		domain.TemplateActivation, otp.TemplateData{Name: "X", OTP: "22222"}))
	assert.NotNil(t, c.auth)
}

func TestMailer_Send_RelayFailure(t *testing.T) {
	m, _ := newTestMailer(t, config.SMTP{Host: "h", Port: "25"}, errors.New("relay down"))

	err := m.Send(context.Background(), "x@example.com", "s",
		domain.TemplateActivation, otp.TemplateData{Name: "X", OTP: "22222"})
	assert.ErrorContains(t, err, "relay down")
}

func TestMailer_Send_UnknownTemplate(t *testing.T) {
	m, c := newTestMailer(t, config.SMTP{Host: "h", Port: "25"}, nil)

	err := m.Send(context.Background(), "x@example.com", "s", "missing", otp.TemplateData{})
	assert.Error(t, err)
	assert.Empty(t, c.addr)
}
