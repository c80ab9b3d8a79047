package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/redis/go-redis/v9"
)

// Keys: <prefix>:u:<userID> holds the token hash of the user's live session,
// <prefix>:t:<tokenHash> holds the JSON entry. Both expire with the token.

const addSessionScript = `
local current = redis.call("GET", KEYS[1])
if current then
  return current
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return ""
`

var addSessionLua = redis.NewScript(addSessionScript)

const removeSessionScript = `
redis.call("DEL", KEYS[2])
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`

var removeSessionLua = redis.NewScript(removeSessionScript)

const updateSessionScript = `
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
return 1
`

var updateSessionLua = redis.NewScript(updateSessionScript)

// maxAddAttempts bounds the evict-and-retry loop of Add when stale tokens keep appearing.
const maxAddAttempts = 3

type redisEntry struct {
	Token        string    `json:"token"`
	UserID       string    `json:"uid"`
	Identifier   string    `json:"ident,omitempty"`
	Entitlements uint64    `json:"ent"`
	CreatedAt    time.Time `json:"created_at"`
}

// RedisRegistry is a [Registry] shared by every process using the same Redis and prefix.
// Password hashes are never written to Redis.
type RedisRegistry struct {
	redis  redis.UniversalClient
	tokens TokenValidator
	prefix string
	now    func() time.Time
}

// NewRedisRegistry returns a registry storing sessions under prefix.
func NewRedisRegistry(client redis.UniversalClient, tokens TokenValidator, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "qs"
	}
	return &RedisRegistry{redis: client, tokens: tokens, prefix: prefix, now: time.Now}
}

func (r *RedisRegistry) userKey(userID string) string {
	return r.prefix + ":u:" + userID
}

func (r *RedisRegistry) tokenKey(hash string) string {
	return r.prefix + ":t:" + hash
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Add implements [Registry].
func (r *RedisRegistry) Add(ctx context.Context, token string, user account.User) error {
	exp, err := r.tokens.ExpiresAt(token)
	if err != nil {
		return err
	}
	if user.ID == "" {
		return ErrInvalidUser
	}
	ttl := exp.Sub(r.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	payload, err := json.Marshal(redisEntry{
		Token:        token,
		UserID:       user.ID,
		Identifier:   user.Identifier,
		Entitlements: user.Entitlements.Raw(),
		CreatedAt:    r.now().UTC(),
	})
	if err != nil {
		return err
	}

	hash := hashToken(token)
	userKey := r.userKey(user.ID)
	for attempt := 0; attempt < maxAddAttempts; attempt++ {
		current, err := addSessionLua.Run(ctx, r.redis,
			[]string{userKey, r.tokenKey(hash)},
			hash, payload, ttl.Milliseconds(),
		).Text()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if current == "" {
			return nil
		}

		live, err := r.liveByHash(ctx, current)
		if err != nil {
			return err
		}
		if live {
			return ErrSessionConflict
		}
		if _, err := removeSessionLua.Run(ctx, r.redis, []string{userKey, r.tokenKey(current)}, current).Result(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return ErrSessionConflict
}

// liveByHash reports whether the session stored under hash still has a valid token.
func (r *RedisRegistry) liveByHash(ctx context.Context, hash string) (bool, error) {
	entry, ok, err := r.load(ctx, hash)
	if err != nil || !ok {
		return false, err
	}
	return r.tokens.Validate(entry.Token) == nil, nil
}

func (r *RedisRegistry) load(ctx context.Context, hash string) (redisEntry, bool, error) {
	raw, err := r.redis.Get(ctx, r.tokenKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return redisEntry{}, false, nil
		}
		return redisEntry{}, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry is treated as absent and overwritten on the next Add.
		return redisEntry{}, false, nil
	}
	return entry, true, nil
}

// User implements [Registry].
func (r *RedisRegistry) User(ctx context.Context, token string) (account.User, bool, error) {
	if err := r.tokens.Validate(token); err != nil {
		return account.User{}, false, err
	}
	entry, ok, err := r.load(ctx, hashToken(token))
	if err != nil || !ok {
		return account.User{}, false, err
	}
	return account.User{
		ID:           entry.UserID,
		Identifier:   entry.Identifier,
		Entitlements: permission.Mask64(entry.Entitlements),
	}, true, nil
}

// IsAlive implements [Registry].
func (r *RedisRegistry) IsAlive(ctx context.Context, token string) (bool, error) {
	if err := r.tokens.Validate(token); err != nil {
		if rmErr := r.Remove(ctx, token); rmErr != nil {
			return false, rmErr
		}
		return false, err
	}
	n, err := r.redis.Exists(ctx, r.tokenKey(hashToken(token))).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// Remove implements [Registry].
func (r *RedisRegistry) Remove(ctx context.Context, token string) error {
	hash := hashToken(token)
	entry, ok, err := r.load(ctx, hash)
	if err != nil {
		return err
	}
	if !ok {
		if err := r.redis.Del(ctx, r.tokenKey(hash)).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}
	if _, err := removeSessionLua.Run(ctx, r.redis, []string{r.userKey(entry.UserID), r.tokenKey(hash)}, hash).Result(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Update implements [Registry].
func (r *RedisRegistry) Update(ctx context.Context, token string, user account.User) error {
	hash := hashToken(token)
	entry, ok, err := r.load(ctx, hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	if entry.UserID != user.ID {
		return ErrUserMismatch
	}
	entry.Identifier = user.Identifier
	entry.Entitlements = user.Entitlements.Raw()
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	updated, err := updateSessionLua.Run(ctx, r.redis, []string{r.tokenKey(hash)}, payload).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if updated == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Count scans the user index. It is O(n) and meant for admin tooling only.
func (r *RedisRegistry) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := r.redis.Scan(ctx, cursor, r.prefix+":u:*", 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return total, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (r *RedisRegistry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
