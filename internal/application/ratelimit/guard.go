package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/otp-auth-api/internal/domain"
)

// Key prefixes, one set per email.
const (
	keyCooldown     = "cooldown:"
	keyRequestCount = "requestCount:"
	keySpamLock     = "spamLock:"
	keyAttemptCount = "attemptCount:"
	keyAccountLock  = "accountLock:"
)

func CooldownKey(email string) string     { return keyCooldown + email }
func RequestCountKey(email string) string { return keyRequestCount + email }
func SpamLockKey(email string) string     { return keySpamLock + email }
func AttemptCountKey(email string) string { return keyAttemptCount + email }
func AccountLockKey(email string) string  { return keyAccountLock + email }

// counterStore is the subset of the code store the guard needs. All methods
// must be atomic with respect to other instances.
type counterStore interface {
	Exists(ctx context.Context, keys ...string) (int64, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Limits holds thresholds and lifetimes. Zero values are not valid; use
// DefaultLimits as a base.
type Limits struct {
	RequestWindow    time.Duration
	SpamThreshold    int
	SpamLockTTL      time.Duration
	AttemptWindow    time.Duration
	AttemptThreshold int
	AccountLockTTL   time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		RequestWindow:    time.Hour,
		SpamThreshold:    2,
		SpamLockTTL:      time.Hour,
		AttemptWindow:    5 * time.Minute,
		AttemptThreshold: 2,
		AccountLockTTL:   30 * time.Minute,
	}
}

// Guard derives cooldown, spam lock and account lock from counters in the
// code store. There is no unlock operation; every flag expires by TTL.
type Guard struct {
	store  counterStore
	limits Limits
}

func NewGuard(store counterStore, limits Limits) *Guard {
	return &Guard{store: store, limits: limits}
}

// AdmitIssuance returns nil when a new code may be issued to email, or one of
// ErrAccountLocked, ErrSpamLocked, ErrCooldown. Only an admitted request
// consumes issuance budget.
func (g *Guard) AdmitIssuance(ctx context.Context, email string) error {
	if err := g.CheckLocked(ctx, email); err != nil {
		return err
	}
	if err := g.denyIfPresent(ctx, SpamLockKey(email), domain.ErrSpamLocked); err != nil {
		return err
	}
	if err := g.denyIfPresent(ctx, CooldownKey(email), domain.ErrCooldown); err != nil {
		return err
	}

	n, err := g.store.Incr(ctx, RequestCountKey(email), g.limits.RequestWindow)
	if err != nil {
		return err
	}
	if n >= int64(g.limits.SpamThreshold) {
		if _, err := g.store.SetNX(ctx, SpamLockKey(email), "1", g.limits.SpamLockTTL); err != nil {
			return err
		}
		slog.Info("otp issuance spam-locked", "email", email, "requests", n)
		return domain.ErrSpamLocked
	}
	return nil
}

// RefundIssuance gives back one unit of issuance budget after an admitted
// request could not be delivered.
func (g *Guard) RefundIssuance(ctx context.Context, email string) error {
	_, err := g.store.Decr(ctx, RequestCountKey(email))
	return err
}

// RecordFailure counts a wrong code. It returns the attempts left before the
// lock, or ErrAccountLocked when this failure reached the threshold.
func (g *Guard) RecordFailure(ctx context.Context, email string) (int, error) {
	n, err := g.store.Incr(ctx, AttemptCountKey(email), g.limits.AttemptWindow)
	if err != nil {
		return 0, err
	}
	if n >= int64(g.limits.AttemptThreshold) {
		if _, err := g.store.SetNX(ctx, AccountLockKey(email), "1", g.limits.AccountLockTTL); err != nil {
			return 0, err
		}
		slog.Info("account locked after failed code attempts", "email", email, "attempts", n)
		return 0, domain.ErrAccountLocked
	}
	return g.limits.AttemptThreshold - int(n), nil
}

// CheckLocked returns ErrAccountLocked while the account lock is present.
func (g *Guard) CheckLocked(ctx context.Context, email string) error {
	return g.denyIfPresent(ctx, AccountLockKey(email), domain.ErrAccountLocked)
}

func (g *Guard) denyIfPresent(ctx context.Context, key string, denial error) error {
	n, err := g.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if n > 0 {
		return denial
	}
	return nil
}
