package otp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/otp-auth-api/internal/application/ratelimit"
	"github.com/otp-auth-api/internal/domain"
)

const challengeKeyPrefix = "otp:"

func ChallengeKey(email string) string { return challengeKeyPrefix + email }

// Subjects per template. Unknown templates fall back to a generic subject.
var subjects = map[string]string{
	domain.TemplateActivation:     "Verify your email",
	domain.TemplateForgotPassword: "Reset your password",
}

type challengeStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	DeleteIfEquals(ctx context.Context, key, value string) (bool, error)
}

type guard interface {
	AdmitIssuance(ctx context.Context, email string) error
	RefundIssuance(ctx context.Context, email string) error
	RecordFailure(ctx context.Context, email string) (int, error)
	CheckLocked(ctx context.Context, email string) error
}

type codeGenerator interface {
	Generate() (string, error)
}

// TemplateData is passed to the mail template.
type TemplateData struct {
	Name string
	OTP  string
}

// Mailer delivers a rendered template to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, templateID string, data TemplateData) error
}

type Service interface {
	// Issue admits, generates and delivers a code, then records it with a
	// cooldown. Nothing is recorded unless delivery succeeded, and any
	// failure after admission refunds the request budget.
	Issue(ctx context.Context, name, email, templateID string) error
	// Verify checks code and consumes the challenge on success.
	Verify(ctx context.Context, email, code string) error
	// Check is Verify without consuming the challenge. Failures still count.
	Check(ctx context.Context, email, code string) error
}

type ServiceDeps struct {
	Store     challengeStore
	Guard     guard
	Generator codeGenerator
	Mailer    Mailer
	CodeTTL   time.Duration
	Cooldown  time.Duration
	Now       func() time.Time
}

type service struct {
	store     challengeStore
	guard     guard
	generator codeGenerator
	mailer    Mailer
	codeTTL   time.Duration
	cooldown  time.Duration
	now       func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		store:     deps.Store,
		guard:     deps.Guard,
		generator: deps.Generator,
		mailer:    deps.Mailer,
		codeTTL:   deps.CodeTTL,
		cooldown:  deps.Cooldown,
		now:       now,
	}
}

func (s *service) Issue(ctx context.Context, name, email, templateID string) error {
	if err := s.guard.AdmitIssuance(ctx, email); err != nil {
		return err
	}

	code, err := s.generator.Generate()
	if err != nil {
		s.refund(ctx, email)
		return err
	}

	subject, ok := subjects[templateID]
	if !ok {
		subject = "Your verification code"
	}
	if err := s.mailer.Send(ctx, email, subject, templateID, TemplateData{Name: name, OTP: code}); err != nil {
		slog.Warn("otp delivery failed", "email", email, "template", templateID, "err", err)
		s.refund(ctx, email)
		return domain.Infrastructure(domain.ReasonMailDelivery, "could not deliver verification email", err)
	}

	raw, err := json.Marshal(domain.OtpChallenge{Email: email, Code: code, IssuedAt: s.now().UTC()})
	if err != nil {
		s.refund(ctx, email)
		return fmt.Errorf("marshal otp challenge: %w", err)
	}
	if err := s.store.Set(ctx, ChallengeKey(email), string(raw), s.codeTTL); err != nil {
		s.refund(ctx, email)
		return err
	}
	if err := s.store.Set(ctx, ratelimit.CooldownKey(email), "1", s.cooldown); err != nil {
		// A challenge without its cooldown is withdrawn so the failed request
		// leaves no state behind.
		if _, derr := s.store.DeleteIfEquals(ctx, ChallengeKey(email), string(raw)); derr != nil {
			slog.Warn("could not withdraw otp challenge", "email", email, "err", derr)
		}
		s.refund(ctx, email)
		return err
	}
	return nil
}

func (s *service) Verify(ctx context.Context, email, code string) error {
	raw, err := s.match(ctx, email, code)
	if err != nil {
		return err
	}
	consumed, err := s.store.DeleteIfEquals(ctx, ChallengeKey(email), raw)
	if err != nil {
		return err
	}
	if !consumed {
		// Another request consumed the same code first.
		return domain.ErrExpiredOrUnknown
	}
	return nil
}

func (s *service) Check(ctx context.Context, email, code string) error {
	_, err := s.match(ctx, email, code)
	return err
}

// match returns the stored challenge value when code matches it. A lock
// always wins, even over a correct code, and costs no attempt.
func (s *service) match(ctx context.Context, email, code string) (string, error) {
	if err := s.guard.CheckLocked(ctx, email); err != nil {
		return "", err
	}
	raw, found, err := s.store.Get(ctx, ChallengeKey(email))
	if err != nil {
		return "", err
	}
	if !found {
		return "", domain.ErrExpiredOrUnknown
	}
	var ch domain.OtpChallenge
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return "", fmt.Errorf("decode otp challenge: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(ch.Code), []byte(code)) != 1 {
		remaining, err := s.guard.RecordFailure(ctx, email)
		if err != nil {
			return "", err
		}
		invalid := domain.ErrInvalidCode.WithDetail("remaining", remaining)
		invalid.Message = fmt.Sprintf("incorrect code, %d attempts left", remaining)
		return "", invalid
	}
	return raw, nil
}

func (s *service) refund(ctx context.Context, email string) {
	if err := s.guard.RefundIssuance(ctx, email); err != nil {
		slog.Warn("could not refund otp issuance budget", "email", email, "err", err)
	}
}
