package handler

import (
	"context"
	"net/http"

	"github.com/otp-auth-api/internal/application/auth"
	"github.com/otp-auth-api/internal/domain"
	"github.com/otp-auth-api/internal/transport/http/middleware"
)

// AuthHandler serves the /v1/auth endpoints.
type AuthHandler struct {
	svc     auth.Service
	cookies Cookies
}

func NewAuthHandler(svc auth.Service, cookies Cookies) *AuthHandler {
	return &AuthHandler{svc: svc, cookies: cookies}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.Register(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "verification code sent, please check your email")
}

func (h *AuthHandler) VerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyRegistrationRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	acct, err := h.svc.VerifyRegistration(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AccountEnvelope{Status: statusSuccess, Message: "account created", Account: acct})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	h.respondSession(w, r, "login successful", func(ctx context.Context) (*auth.Session, error) {
		return h.svc.Login(ctx, req)
	})
}

// Refresh reads the refresh token from its cookie, or from the body for
// non-browser clients.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(refreshCookie); err == nil {
		token = c.Value
	} else {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := decode(r, &req); err != nil {
			httpError(w, r, domain.ErrBadToken)
			return
		}
		token = req.RefreshToken
	}
	h.respondSession(w, r, "token refreshed", func(ctx context.Context) (*auth.Session, error) {
		return h.svc.Refresh(ctx, token)
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.cookies.clear(w)
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httpError(w, r, domain.ErrBadToken)
		return
	}
	acct, err := h.svc.Me(r.Context(), claims.Subject)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountEnvelope{Status: statusSuccess, Account: acct})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ForgotPasswordRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "reset code sent, please check your email")
}

func (h *AuthHandler) VerifyForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyResetRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.VerifyResetOTP(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "code verified, you can now reset your password")
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetPasswordRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "password reset successfully")
}

func (h *AuthHandler) respondSession(w http.ResponseWriter, r *http.Request, msg string, fn func(context.Context) (*auth.Session, error)) {
	sess, err := fn(r.Context())
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.cookies.set(w, sess.AccessToken, sess.RefreshToken)
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Status:      statusSuccess,
		Message:     msg,
		AccessToken: sess.AccessToken.Value,
		ExpiresAt:   sess.AccessToken.ExpiresAt.Unix(),
		Account:     sess.Account,
	})
}
