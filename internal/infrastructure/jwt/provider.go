package jwtinfra

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/otp-auth-api/internal/config"
	"github.com/otp-auth-api/internal/pkg/id"
)

// AccessClaims is the payload of a short-lived access token.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a long-lived refresh token.
type RefreshClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// KeyPair is one RS256 signing key and its public half.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// Token is a signed token and its absolute expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Provider signs and verifies access and refresh tokens. The two token types
// use separate key pairs so a leaked refresh key cannot mint access tokens.
// Keys are loaded once and only read afterwards.
type Provider struct {
	access     KeyPair
	refresh    KeyPair
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// NewProvider loads both key pairs from the PEM files named in cfg.
func NewProvider(cfg config.JWT) (*Provider, error) {
	access, err := loadKeyPair(cfg.AccessPrivateKeyPath, cfg.AccessPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("access key: %w", err)
	}
	refresh, err := loadKeyPair(cfg.RefreshPrivateKeyPath, cfg.RefreshPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("refresh key: %w", err)
	}
	return New(access, refresh, cfg.AccessTTL, cfg.RefreshTTL, cfg.Issuer), nil
}

func New(access, refresh KeyPair, accessTTL, refreshTTL time.Duration, issuer string) *Provider {
	return &Provider{
		access:     access,
		refresh:    refresh,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     issuer,
		now:        time.Now,
	}
}

func loadKeyPair(privPath, pubPath string) (KeyPair, error) {
	privBytes, err := os.ReadFile(privPath)
	if err != nil {
		return KeyPair{}, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privBytes)
	if err != nil {
		return KeyPair{}, fmt.Errorf("parse private key: %w", err)
	}

	pubBytes, err := os.ReadFile(pubPath)
	if err != nil {
		return KeyPair{}, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubBytes)
	if err != nil {
		return KeyPair{}, fmt.Errorf("parse public key: %w", err)
	}
	return KeyPair{Private: privKey, Public: pubKey}, nil
}

func (p *Provider) registered(subjectID string, ttl time.Duration) (jwt.RegisteredClaims, time.Time) {
	now := p.now()
	exp := now.Add(ttl)
	return jwt.RegisteredClaims{
		Issuer:    p.issuer,
		Subject:   subjectID,
		ID:        id.New(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}, exp
}

// IssueAccessToken signs an access token for the account.
func (p *Provider) IssueAccessToken(subjectID, email, role string) (Token, error) {
	rc, exp := p.registered(subjectID, p.accessTTL)
	claims := AccessClaims{Email: email, Role: role, RegisteredClaims: rc}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.access.Private)
	if err != nil {
		return Token{}, fmt.Errorf("sign access token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// IssueRefreshToken signs a refresh token for the account.
func (p *Provider) IssueRefreshToken(subjectID, name, role string) (Token, error) {
	rc, exp := p.registered(subjectID, p.refreshTTL)
	claims := RefreshClaims{Name: name, Role: role, RegisteredClaims: rc}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.refresh.Private)
	if err != nil {
		return Token{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

func (p *Provider) VerifyAccessToken(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := p.parse(tokenStr, claims, p.access.Public); err != nil {
		return nil, err
	}
	return claims, nil
}

func (p *Provider) VerifyRefreshToken(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := p.parse(tokenStr, claims, p.refresh.Public); err != nil {
		return nil, err
	}
	return claims, nil
}

func (p *Provider) parse(tokenStr string, claims jwt.Claims, key *rsa.PublicKey) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token claims")
	}
	return nil
}
