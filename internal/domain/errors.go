package domain

import (
	"errors"
	"fmt"
)

// Repository-level sentinels. Stores return these so services can branch on
// them without depending on the storage backend.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// Kind classifies an Error. The HTTP layer only looks at the kind.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindAuth           Kind = "auth"
	KindRateLimit      Kind = "rate_limit"
	KindInvalidCode    Kind = "invalid_code"
	KindInfrastructure Kind = "infrastructure"
)

// Reasons refine a kind. They are stable strings returned to clients.
const (
	ReasonMissingFields    = "missing_fields"
	ReasonMalformedInput   = "malformed_input"
	ReasonAccountExists    = "account_exists"
	ReasonAccountNotFound  = "account_not_found"
	ReasonBadCredentials   = "bad_credentials"
	ReasonBadToken         = "bad_token"
	ReasonCooldown         = "cooldown"
	ReasonSpamLocked       = "spam_locked"
	ReasonAccountLocked    = "account_locked"
	ReasonInvalidCode      = "invalid_code"
	ReasonExpiredOrUnknown = "expired_or_unknown"
	ReasonSamePassword     = "same_password"
	ReasonCodeStore        = "code_store"
	ReasonMailDelivery     = "mail_delivery"
	ReasonAccountStore     = "account_store"
)

// Error is the single error type produced by the application layer.
// Details carries structured data such as per-field messages or the number
// of remaining attempts.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind, and on reason when the target sets one, so
// errors.Is(err, ErrRateLimit) and errors.Is(err, ErrCooldown) both work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// WithDetail returns a copy of e with key set in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Kind-level sentinels for errors.Is.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrAuth           = &Error{Kind: KindAuth}
	ErrRateLimit      = &Error{Kind: KindRateLimit}
	ErrCode           = &Error{Kind: KindInvalidCode}
	ErrInfrastructure = &Error{Kind: KindInfrastructure}
)

// Denials with fixed user-facing messages.
var (
	ErrCooldown = &Error{
		Kind:    KindRateLimit,
		Reason:  ReasonCooldown,
		Message: "please wait 1 minute before requesting a new code",
	}
	ErrSpamLocked = &Error{
		Kind:    KindRateLimit,
		Reason:  ReasonSpamLocked,
		Message: "too many code requests, please wait 1 hour before trying again",
	}
	ErrAccountLocked = &Error{
		Kind:    KindRateLimit,
		Reason:  ReasonAccountLocked,
		Message: "account locked due to multiple failed attempts, try again after 30 minutes",
	}
	ErrInvalidCode = &Error{
		Kind:    KindInvalidCode,
		Reason:  ReasonInvalidCode,
		Message: "incorrect code",
	}
	ErrExpiredOrUnknown = &Error{
		Kind:    KindInvalidCode,
		Reason:  ReasonExpiredOrUnknown,
		Message: "code expired or not found",
	}
	ErrSamePassword = &Error{
		Kind:    KindValidation,
		Reason:  ReasonSamePassword,
		Message: "new password must be different from the current one",
	}
	ErrBadCredentials = &Error{
		Kind:    KindAuth,
		Reason:  ReasonBadCredentials,
		Message: "invalid email or password",
	}
	ErrAccountExists = &Error{
		Kind:    KindConflict,
		Reason:  ReasonAccountExists,
		Message: "an account with this email already exists",
		Details: map[string]any{"email": "email is already registered"},
	}
	ErrAccountNotFound = &Error{
		Kind:    KindValidation,
		Reason:  ReasonAccountNotFound,
		Message: "no account is registered with this email",
	}
	ErrBadToken = &Error{
		Kind:    KindAuth,
		Reason:  ReasonBadToken,
		Message: "invalid or expired token",
	}
)

// Validation builds a validation error with per-field details.
func Validation(reason, msg string, fields map[string]string) *Error {
	e := &Error{Kind: KindValidation, Reason: reason, Message: msg}
	if len(fields) > 0 {
		e.Details = make(map[string]any, len(fields))
		for k, v := range fields {
			e.Details[k] = v
		}
	}
	return e
}

// Conflict builds a conflict error.
func Conflict(reason, msg string) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: msg}
}

// Infrastructure wraps a transport or storage failure. These are retryable
// and never the caller's fault.
func Infrastructure(reason, msg string, err error) *Error {
	return &Error{Kind: KindInfrastructure, Reason: reason, Message: msg, Err: err}
}

// AsError extracts the *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
