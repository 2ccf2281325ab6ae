package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/otp-auth-api/internal/domain"
)

// MessageEnvelope is the generic success wrapper.
type MessageEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// AuthEnvelope wraps login and refresh responses. The refresh token travels
// only in its cookie.
type AuthEnvelope struct {
	Status      string                 `json:"status"`
	Message     string                 `json:"message,omitempty"`
	AccessToken string                 `json:"access_token,omitempty"`
	ExpiresAt   int64                  `json:"expires_at,omitempty"`
	Account     *domain.AccountSummary `json:"account,omitempty"`
}

// AccountEnvelope wraps a single account summary.
type AccountEnvelope struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Account *domain.AccountSummary `json:"account"`
}

// ErrorEnvelope is the body of every failed request.
type ErrorEnvelope struct {
	Status  string         `json:"status"`
	Kind    string         `json:"kind"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

const statusSuccess = "success"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Status: statusSuccess, Message: msg})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(k domain.Kind) int {
	switch k {
	case domain.KindValidation, domain.KindInvalidCode:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	case domain.KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// httpError writes err as an ErrorEnvelope. Errors outside the domain
// taxonomy are logged and reported as a generic 500.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		slog.ErrorContext(r.Context(), "unhandled error", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorEnvelope{
			Status: "error", Kind: "internal", Message: "internal server error",
		})
		return
	}
	status := statusFor(de.Kind)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "reason", de.Reason, "err", err)
	}
	writeJSON(w, status, ErrorEnvelope{
		Status:  "error",
		Kind:    string(de.Kind),
		Reason:  de.Reason,
		Message: de.Message,
		Details: de.Details,
	})
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var syntax *json.SyntaxError
		msg := "invalid request body"
		if errors.As(err, &syntax) {
			msg = "request body is not valid JSON"
		}
		return domain.Validation(domain.ReasonMalformedInput, msg, nil)
	}
	return nil
}
