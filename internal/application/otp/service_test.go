package otp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/otp-auth-api/internal/application/ratelimit"
	"github.com/otp-auth-api/internal/domain"
	redisinfra "github.com/otp-auth-api/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	email = "alice@example.com"
	code  = "48213"
)

// --- mocks ---

type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(ctx context.Context, to, subject, templateID string, data TemplateData) error {
	return m.Called(ctx, to, subject, templateID, data).Error(0)
}

type fixedGenerator struct{ code string }

func (g fixedGenerator) Generate() (string, error) { return g.code, nil }

// --- builder ---

type fixture struct {
	mr     *miniredis.Miniredis
	mailer *mockMailer
	svc    Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisinfra.NewStore(client, "", time.Second)
	ml := &mockMailer{}
	svc := NewService(ServiceDeps{
		Store:     store,
		Guard:     ratelimit.NewGuard(store, ratelimit.DefaultLimits()),
		Generator: fixedGenerator{code: code},
		Mailer:    ml,
		CodeTTL:   5 * time.Minute,
		Cooldown:  time.Minute,
	})
	return &fixture{mr: mr, mailer: ml, svc: svc}
}

func (f *fixture) issue(t *testing.T) {
	t.Helper()
	f.mailer.On("Send", mock.Anything, email, mock.Anything, domain.TemplateActivation, TemplateData{Name: "Alice", OTP: code}).Return(nil).Once()
	require.NoError(t, f.svc.Issue(context.Background(), "Alice", email, domain.TemplateActivation))
}

// --- Issue ---

func TestIssue_StoresChallengeAndCooldown(t *testing.T) {
	f := newFixture(t)
	f.issue(t)

	raw, err := f.mr.Get(ChallengeKey(email))
	require.NoError(t, err)
	var ch domain.OtpChallenge
	require.NoError(t, json.Unmarshal([]byte(raw), &ch))
	assert.Equal(t, email, ch.Email)
	assert.Equal(t, code, ch.Code)
	assert.False(t, ch.IssuedAt.IsZero())

	assert.Equal(t, 5*time.Minute, f.mr.TTL(ChallengeKey(email)))
	assert.Equal(t, time.Minute, f.mr.TTL(ratelimit.CooldownKey(email)))
	f.mailer.AssertExpectations(t)
}

func TestIssue_SecondWithinCooldownDenied(t *testing.T) {
	f := newFixture(t)
	f.issue(t)

	err := f.svc.Issue(context.Background(), "Alice", email, domain.TemplateActivation)
	assert.True(t, errors.Is(err, domain.ErrCooldown))
	f.mailer.AssertNumberOfCalls(t, "Send", 1)
}

func TestIssue_SecondAfterCooldownSpamLocked(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	f.mr.FastForward(61 * time.Second)

	err := f.svc.Issue(context.Background(), "Alice", email, domain.TemplateActivation)
	assert.True(t, errors.Is(err, domain.ErrSpamLocked))
	f.mailer.AssertNumberOfCalls(t, "Send", 1)

	f.mr.FastForward(time.Hour + time.Second)
	f.issue(t)
}

func TestIssue_DeliveryFailureWritesNothingAndRefunds(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, email, mock.Anything, domain.TemplateActivation, mock.Anything).
		Return(errors.New("smtp: connection refused")).Once()

	err := f.svc.Issue(context.Background(), "Alice", email, domain.TemplateActivation)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInfrastructure))

	assert.False(t, f.mr.Exists(ChallengeKey(email)))
	assert.False(t, f.mr.Exists(ratelimit.CooldownKey(email)))
	v, _ := f.mr.Get(ratelimit.RequestCountKey(email))
	assert.Equal(t, "0", v)

	// Budget was refunded, so a retry is admitted immediately.
	f.issue(t)
}

// failingSetStore fails Set for one key and passes everything else through.
type failingSetStore struct {
	*redisinfra.Store
	failKey string
}

func (s failingSetStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == s.failKey {
		return domain.Infrastructure(domain.ReasonCodeStore, "code store unavailable", errors.New("i/o timeout"))
	}
	return s.Store.Set(ctx, key, value, ttl)
}

func newFailingSetFixture(t *testing.T, failKey string) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisinfra.NewStore(client, "", time.Second)
	ml := &mockMailer{}
	svc := NewService(ServiceDeps{
		Store:     failingSetStore{Store: store, failKey: failKey},
		Guard:     ratelimit.NewGuard(store, ratelimit.DefaultLimits()),
		Generator: fixedGenerator{code: code},
		Mailer:    ml,
		CodeTTL:   5 * time.Minute,
		Cooldown:  time.Minute,
	})
	return &fixture{mr: mr, mailer: ml, svc: svc}
}

func TestIssue_StoreFailureAfterDeliveryRefunds(t *testing.T) {
	for name, failKey := range map[string]string{
		"challenge": ChallengeKey(email),
		"cooldown":  ratelimit.CooldownKey(email),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFailingSetFixture(t, failKey)
			f.mailer.On("Send", mock.Anything, email, mock.Anything, domain.TemplateActivation, mock.Anything).Return(nil)

			err := f.svc.Issue(context.Background(), "Alice", email, domain.TemplateActivation)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInfrastructure))

			assert.False(t, f.mr.Exists(ChallengeKey(email)))
			assert.False(t, f.mr.Exists(ratelimit.CooldownKey(email)))
			v, _ := f.mr.Get(ratelimit.RequestCountKey(email))
			assert.Equal(t, "0", v)
		})
	}
}

func TestIssue_OverwritesPreviousChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mr.Set(ChallengeKey(email), `{"email":"alice@example.com","code":"11111"}`))

	f.issue(t)

	err := f.svc.Verify(ctx, email, "11111")
	assert.True(t, errors.Is(err, domain.ErrInvalidCode))
}

// --- Verify ---

func TestVerify_NoChallenge(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Verify(context.Background(), email, code)
	assert.True(t, errors.Is(err, domain.ErrExpiredOrUnknown))
	assert.False(t, f.mr.Exists(ratelimit.AttemptCountKey(email)), "unknown code costs no attempt")
}

func TestVerify_Expired(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	f.mr.FastForward(5*time.Minute + time.Second)

	err := f.svc.Verify(context.Background(), email, code)
	assert.True(t, errors.Is(err, domain.ErrExpiredOrUnknown))
}

func TestVerify_SingleUse(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Verify(ctx, email, code))
	err := f.svc.Verify(ctx, email, code)
	assert.True(t, errors.Is(err, domain.ErrExpiredOrUnknown))
}

func TestVerify_SuccessKeepsCounters(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	ctx := context.Background()

	_ = f.svc.Verify(ctx, email, "00000")
	require.NoError(t, f.svc.Verify(ctx, email, code))

	assert.True(t, f.mr.Exists(ratelimit.AttemptCountKey(email)))
	assert.True(t, f.mr.Exists(ratelimit.RequestCountKey(email)))
}

func TestVerify_WrongTwiceLocksAndLockBeatsCorrectCode(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	ctx := context.Background()

	err := f.svc.Verify(ctx, email, "00000")
	require.True(t, errors.Is(err, domain.ErrInvalidCode))
	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, 1, de.Details["remaining"])

	err = f.svc.Verify(ctx, email, "00001")
	assert.True(t, errors.Is(err, domain.ErrAccountLocked))
	assert.Equal(t, 30*time.Minute, f.mr.TTL(ratelimit.AccountLockKey(email)))

	err = f.svc.Verify(ctx, email, code)
	assert.True(t, errors.Is(err, domain.ErrAccountLocked))
	v, _ := f.mr.Get(ratelimit.AttemptCountKey(email))
	assert.Equal(t, "2", v, "a locked attempt consumes nothing")
	assert.True(t, f.mr.Exists(ChallengeKey(email)), "a locked attempt does not consume the code")
}

func TestVerify_ConcurrentCorrectCodeConsumedOnce(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	ctx := context.Background()

	var ok, expired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.svc.Verify(ctx, email, code)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrExpiredOrUnknown):
				expired.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(7), expired.Load())
}

// --- Check ---

func TestCheck_DoesNotConsume(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Check(ctx, email, code))
	require.NoError(t, f.svc.Check(ctx, email, code))
	require.NoError(t, f.svc.Verify(ctx, email, code))
}

func TestCheck_CountsFailures(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	ctx := context.Background()

	_ = f.svc.Check(ctx, email, "00000")
	err := f.svc.Check(ctx, email, "00000")
	assert.True(t, errors.Is(err, domain.ErrAccountLocked))
}
