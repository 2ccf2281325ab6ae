package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/otp-auth-api/internal/application/otp"
	"github.com/otp-auth-api/internal/domain"
	jwtinfra "github.com/otp-auth-api/internal/infrastructure/jwt"
	"github.com/otp-auth-api/internal/pkg/id"
	"github.com/otp-auth-api/internal/pkg/password"
	"github.com/otp-auth-api/internal/pkg/validate"
)

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
}

type VerifyRegistrationRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
	OTP      string `json:"otp" validate:"required,numeric"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyResetRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,numeric"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required,numeric"`
	NewPassword string `json:"new_password" validate:"required,password"`
}

// Session is the result of a successful login or refresh.
type Session struct {
	AccessToken  jwtinfra.Token
	RefreshToken jwtinfra.Token
	Account      *domain.AccountSummary
}

// AccountDirectory owns account records. Email is the unique natural key.
type AccountDirectory interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, accountID string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

type credentialIssuer interface {
	IssueAccessToken(subjectID, email, role string) (jwtinfra.Token, error)
	IssueRefreshToken(subjectID, name, role string) (jwtinfra.Token, error)
	VerifyRefreshToken(tokenStr string) (*jwtinfra.RefreshClaims, error)
}

type Service interface {
	// Register sends an activation code. No account exists until
	// VerifyRegistration succeeds.
	Register(ctx context.Context, req RegisterRequest) error
	VerifyRegistration(ctx context.Context, req VerifyRegistrationRequest) (*domain.AccountSummary, error)
	Login(ctx context.Context, req LoginRequest) (*Session, error)
	// Refresh reissues both tokens from a valid refresh token.
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	Me(ctx context.Context, accountID string) (*domain.AccountSummary, error)
	RequestPasswordReset(ctx context.Context, req ForgotPasswordRequest) error
	VerifyResetOTP(ctx context.Context, req VerifyResetRequest) error
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
}

type ServiceDeps struct {
	Accounts AccountDirectory
	OTP      otp.Service
	Tokens   credentialIssuer
	Now      func() time.Time
}

type service struct {
	accounts AccountDirectory
	otp      otp.Service
	tokens   credentialIssuer
	now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		accounts: deps.Accounts,
		otp:      deps.OTP,
		tokens:   deps.Tokens,
		now:      now,
	}
}

// dummyHash is a cost-10 bcrypt hash compared against on unknown logins.
var dummyHash = password.MustHash("otp-auth-api-unknown-account")

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) Register(ctx context.Context, req RegisterRequest) error {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return err
	}
	if err := s.ensureAvailable(ctx, req.Email); err != nil {
		return err
	}
	return s.otp.Issue(ctx, req.Name, req.Email, domain.TemplateActivation)
}

func (s *service) VerifyRegistration(ctx context.Context, req VerifyRegistrationRequest) (*domain.AccountSummary, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if err := s.ensureAvailable(ctx, req.Email); err != nil {
		return nil, err
	}
	// The code is consumed only after the account is stored, so a failed
	// write leaves it valid for a retry.
	if err := s.otp.Check(ctx, req.Email, req.OTP); err != nil {
		return nil, err
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	a := &domain.Account{
		AccountID:    id.New(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.ErrAccountExists
		}
		return nil, err
	}
	s.consume(ctx, a.Email, req.OTP)
	slog.InfoContext(ctx, "account created", "account_id", a.AccountID)
	return a.Summary(), nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	a, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Same bcrypt cost as a real comparison, so response time does
			// not reveal whether the email is registered.
			_ = password.Verify(req.Password, dummyHash)
			return nil, domain.ErrBadCredentials
		}
		return nil, err
	}
	if !password.Verify(req.Password, a.PasswordHash) {
		return nil, domain.ErrBadCredentials
	}
	return s.issueSession(a)
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, domain.ErrBadToken
	}
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, domain.ErrBadToken
	}
	a, err := s.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBadToken
		}
		return nil, err
	}
	return s.issueSession(a)
}

func (s *service) Me(ctx context.Context, accountID string) (*domain.AccountSummary, error) {
	a, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBadToken
		}
		return nil, err
	}
	return a.Summary(), nil
}

func (s *service) RequestPasswordReset(ctx context.Context, req ForgotPasswordRequest) error {
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return err
	}
	a, err := s.existing(ctx, req.Email)
	if err != nil {
		return err
	}
	return s.otp.Issue(ctx, a.Name, a.Email, domain.TemplateForgotPassword)
}

// VerifyResetOTP confirms the code without consuming it; ResetPassword
// consumes it.
func (s *service) VerifyResetOTP(ctx context.Context, req VerifyResetRequest) error {
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return err
	}
	if _, err := s.existing(ctx, req.Email); err != nil {
		return err
	}
	return s.otp.Check(ctx, req.Email, req.OTP)
}

func (s *service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return err
	}
	a, err := s.existing(ctx, req.Email)
	if err != nil {
		return err
	}
	// The code is checked before the same-password rule so a rejected
	// password does not burn it, and consumed only after the new hash is
	// stored.
	if err := s.otp.Check(ctx, a.Email, req.OTP); err != nil {
		return err
	}
	if password.Verify(req.NewPassword, a.PasswordHash) {
		return domain.ErrSamePassword
	}

	hash, err := password.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, a.Email, hash); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrAccountNotFound
		}
		return err
	}
	s.consume(ctx, a.Email, req.OTP)
	slog.InfoContext(ctx, "password reset", "account_id", a.AccountID)
	return nil
}

// consume spends a code whose write already committed. A failure here cannot
// undo the write, so it is logged and the code is left to expire.
func (s *service) consume(ctx context.Context, email, code string) {
	if err := s.otp.Verify(ctx, email, code); err != nil {
		slog.WarnContext(ctx, "could not consume otp after commit", "email", email, "err", err)
	}
}

func (s *service) ensureAvailable(ctx context.Context, email string) error {
	_, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return domain.ErrAccountExists
	case errors.Is(err, domain.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *service) existing(ctx context.Context, email string) (*domain.Account, error) {
	a, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *service) issueSession(a *domain.Account) (*Session, error) {
	access, err := s.tokens.IssueAccessToken(a.AccountID, a.Email, a.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefreshToken(a.AccountID, a.Name, a.Role)
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: access, RefreshToken: refresh, Account: a.Summary()}, nil
}
