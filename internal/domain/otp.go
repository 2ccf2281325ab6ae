package domain

import "time"

// OtpChallenge is the live one-time code for an email. At most one exists per
// email; issuing a new one overwrites it.
type OtpChallenge struct {
	Email    string    `json:"email"`
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
}

// Mail template identifiers.
const (
	TemplateActivation     = "user-activation-mail"
	TemplateForgotPassword = "forgot-password-user-mail"
)
