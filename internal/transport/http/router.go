package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otp-auth-api/internal/application/auth"
	"github.com/otp-auth-api/internal/config"
	jwtinfra "github.com/otp-auth-api/internal/infrastructure/jwt"
	"github.com/otp-auth-api/internal/transport/http/handler"
	appmiddleware "github.com/otp-auth-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds what the router needs from the composition root.
type Deps struct {
	Auth   auth.Service
	Tokens *jwtinfra.Provider
	// Ready lists the dependencies checked by /health-check/ready.
	Ready map[string]handler.Pinger
}

// NewRouter builds and returns the application router. ctx bounds the
// lifetime of background work started by middleware.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10, applied to public auth endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	healthH := handler.NewHealthHandler(deps.Ready)
	authH := handler.NewAuthHandler(deps.Auth, handler.Cookies{Secure: cfg.IsProduction()})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(sensitiveRL.Limit)

				r.Post("/user-register", authH.Register)
				r.Post("/user-verify", authH.VerifyRegistration)
				r.Post("/user-login", authH.Login)
				r.Post("/refresh-token", authH.Refresh)
				r.Post("/user-forgot", authH.ForgotPassword)
				r.Post("/user-forgot-verify", authH.VerifyForgotPassword)
				r.Post("/user-reset-password", authH.ResetPassword)
			})
			r.Post("/logout", authH.Logout)

			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.Auth(deps.Tokens))
				r.Get("/me", authH.Me)
			})
		})
	})

	return r
}
