package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/otp-auth-api/internal/application/auth"
	"github.com/otp-auth-api/internal/application/otp"
	"github.com/otp-auth-api/internal/application/ratelimit"
	"github.com/otp-auth-api/internal/config"
	"github.com/otp-auth-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/otp-auth-api/internal/infrastructure/jwt"
	"github.com/otp-auth-api/internal/infrastructure/postgres"
	redisinfra "github.com/otp-auth-api/internal/infrastructure/redis"
	s3infra "github.com/otp-auth-api/internal/infrastructure/s3"
	"github.com/otp-auth-api/internal/infrastructure/smtp"
	transporthttp "github.com/otp-auth-api/internal/transport/http"
	"github.com/otp-auth-api/internal/transport/http/handler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	if err := run(cfg); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	store := redisinfra.NewStore(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.OpTimeout)

	ready := map[string]handler.Pinger{"redis": store}

	accounts, closeAccounts, err := openAccounts(ctx, cfg, ready)
	if err != nil {
		return err
	}
	defer closeAccounts.Close()

	templates, err := mailTemplates(ctx, cfg)
	if err != nil {
		return err
	}

	tokens, err := jwtinfra.NewProvider(cfg.JWT)
	if err != nil {
		return fmt.Errorf("load signing keys: %w", err)
	}

	guard := ratelimit.NewGuard(store, ratelimit.Limits{
		RequestWindow:    cfg.OTP.RequestWindow,
		SpamThreshold:    cfg.OTP.SpamThreshold,
		SpamLockTTL:      cfg.OTP.SpamLockTTL,
		AttemptWindow:    cfg.OTP.CodeTTL,
		AttemptThreshold: cfg.OTP.AttemptThreshold,
		AccountLockTTL:   cfg.OTP.AccountLockTTL,
	})
	otpSvc := otp.NewService(otp.ServiceDeps{
		Store:     store,
		Guard:     guard,
		Generator: otp.NewGenerator(cfg.OTP.Digits),
		Mailer:    smtp.NewMailer(cfg.SMTP, templates),
		CodeTTL:   cfg.OTP.CodeTTL,
		Cooldown:  cfg.OTP.Cooldown,
	})
	authSvc := auth.NewService(auth.ServiceDeps{
		Accounts: accounts,
		OTP:      otpSvc,
		Tokens:   tokens,
	})

	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		Auth:   authSvc,
		Tokens: tokens,
		Ready:  ready,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "account_store", cfg.AccountStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// openAccounts builds the configured account directory and registers it
// with the readiness probe.
func openAccounts(ctx context.Context, cfg *config.Config, ready map[string]handler.Pinger) (auth.AccountDirectory, io.Closer, error) {
	switch cfg.AccountStore {
	case config.AccountStorePostgres:
		conn, err := postgres.NewConnection(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		ready["postgres"] = conn
		return postgres.NewAccountRepository(conn), conn, nil
	default:
		awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, err
		}
		client := dynamo.NewClient(awsCfg, cfg.AWS.EndpointURL)
		dynamo.Bootstrap(ctx, client, cfg.Dynamo.AccountsTable)
		repo := dynamo.NewAccountRepo(client, cfg.Dynamo.AccountsTable)
		ready["dynamo"] = repo
		return repo, nopCloser{}, nil
	}
}

// mailTemplates reads templates from S3 when a bucket is configured and
// falls back to the embedded set otherwise.
func mailTemplates(ctx context.Context, cfg *config.Config) (smtp.TemplateSource, error) {
	if cfg.Mail.TemplateBucket == "" {
		return smtp.NewEmbeddedTemplates()
	}
	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	client := s3infra.NewClient(awsCfg, cfg.AWS.EndpointURL)
	return s3infra.NewTemplateStore(client, cfg.Mail.TemplateBucket, cfg.Mail.TemplatePrefix), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
