package handler

import (
	"net/http"
	"time"

	jwtinfra "github.com/otp-auth-api/internal/infrastructure/jwt"
	"github.com/otp-auth-api/internal/transport/http/middleware"
)

const refreshCookie = "refresh_token"

// Cookies writes the auth cookies. Secure is set outside development so
// browsers only send them over TLS.
type Cookies struct {
	Secure bool
}

func (c Cookies) set(w http.ResponseWriter, access, refresh jwtinfra.Token) {
	http.SetCookie(w, c.cookie(middleware.AccessCookie, access.Value, access.ExpiresAt))
	http.SetCookie(w, c.cookie(refreshCookie, refresh.Value, refresh.ExpiresAt))
}

func (c Cookies) clear(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessCookie, refreshCookie} {
		ck := c.cookie(name, "", time.Unix(0, 0))
		ck.MaxAge = -1
		http.SetCookie(w, ck)
	}
}

func (c Cookies) cookie(name, value string, expires time.Time) *http.Cookie {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
