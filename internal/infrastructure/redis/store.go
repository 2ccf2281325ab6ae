package redisinfra

import (
	"context"
	"errors"
	"time"

	"github.com/otp-auth-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

// INCR and, when this call created the key, attach the TTL. Running both in
// one script keeps a crash between them from leaving a counter with no expiry.
var incrWithTTLLua = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

var decrIfPositiveLua = redis.NewScript(`
local v = tonumber(redis.call("GET", KEYS[1]) or "0")
if v > 0 then
  return redis.call("DECR", KEYS[1])
end
return 0
`)

var deleteIfEqualsLua = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store is the Redis-backed code store. Every mutation is a single atomic
// Redis command or Lua script, so instances sharing the same Redis never need
// in-process locks.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

func NewStore(client redis.UniversalClient, prefix string, opTimeout time.Duration) *Store {
	return &Store{redis: client, prefix: prefix, opTimeout: opTimeout}
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = s.key(k)
	}
	return out
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func unavailable(err error) error {
	return domain.Infrastructure(domain.ReasonCodeStore, "code store unavailable", err)
}

// Get returns the value at key and whether it was present.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	v, err := s.redis.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable(err)
	}
	return v, true, nil
}

// Set overwrites key and resets its TTL.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.redis.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// SetNX sets key only when absent. An existing key keeps its TTL.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	ok, err := s.redis.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

// Incr increments key and returns the new value. A key created by this call
// expires after ttl; an existing key keeps its remaining TTL.
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	n, err := incrWithTTLLua.Run(ctx, s.redis, []string{s.key(key)}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Decr decrements key when it holds a positive value and returns the result.
func (s *Store) Decr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	n, err := decrIfPositiveLua.Run(ctx, s.redis, []string{s.key(key)}).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Exists returns how many of keys are present.
func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	n, err := s.redis.Exists(ctx, s.keys(keys)...).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.redis.Del(ctx, s.keys(keys)...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteIfEquals deletes key only if it still holds value. It reports whether
// this call performed the delete, so exactly one of several concurrent
// callers wins.
func (s *Store) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	n, err := deleteIfEqualsLua.Run(ctx, s.redis, []string{s.key(key)}, value).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
