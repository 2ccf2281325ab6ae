package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/otp-auth-api/internal/domain"
	jwtinfra "github.com/otp-auth-api/internal/infrastructure/jwt"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// AccessCookie is the cookie carrying the access token for browser clients.
const AccessCookie = "access_token"

type accessVerifier interface {
	VerifyAccessToken(tokenStr string) (*jwtinfra.AccessClaims, error)
}

// Auth returns middleware that validates the access token and injects its
// claims into the context. The Authorization header wins over the cookie.
func Auth(verifier accessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := tokenFromRequest(r)
			if tokenStr == "" {
				writeJSONError(w, http.StatusUnauthorized, string(domain.KindAuth), domain.ReasonBadToken, "missing access token")
				return
			}
			claims, err := verifier.VerifyAccessToken(tokenStr)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, string(domain.KindAuth), domain.ReasonBadToken, domain.ErrBadToken.Message)
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		return c.Value
	}
	return ""
}

// ClaimsFromContext extracts access claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.AccessClaims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtinfra.AccessClaims)
	return c, ok
}
