//go:build integration
// +build integration

package test

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/quizcore"
	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/jwt"
	"github.com/MrEthical07/quizcore/password"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/session"
	"github.com/MrEthical07/quizcore/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const integrationPassword = "integration-password"

var integrationSecret = []byte("integration-secret-0123456789abcdef")

func integrationConfig() quizcore.Config {
	cfg := quizcore.DefaultConfig()
	cfg.JWT.PrivateKey = integrationSecret
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func newIntegrationRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

// newIntegrationStore seeds a memory store with one user holding every entitlement.
func newIntegrationStore(t *testing.T) *memory.Store {
	t.Helper()

	cfg := integrationConfig()
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	hash, err := hasher.Hash(integrationPassword)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	s := memory.New()
	err = s.PutUser(context.Background(), account.User{
		ID:           "u1",
		Identifier:   "dana",
		PasswordHash: hash,
		Entitlements: permission.NewMask64(permission.EntitlementTake, permission.EntitlementAuthor, permission.EntitlementManage),
	})
	if err != nil {
		t.Fatalf("PutUser failed: %v", err)
	}
	return s
}

func newIntegrationEngine(t *testing.T, rdb redis.UniversalClient, s *memory.Store) *quizcore.Engine {
	t.Helper()

	engine, err := quizcore.New().
		WithConfig(integrationConfig()).
		WithRedis(rdb).
		WithStore(s).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newIntegrationRegistry(t *testing.T, rdb redis.UniversalClient, ttl time.Duration) (*session.RedisRegistry, *jwt.Manager) {
	t.Helper()

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:  ttl,
		PrivateKey: integrationSecret,
		Roles:      permission.Roles(),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return session.NewRedisRegistry(rdb, tokens, "qs"), tokens
}

func integrationUser(id string) account.User {
	return account.User{
		ID:           id,
		Identifier:   id,
		Entitlements: permission.NewMask64(permission.EntitlementTake),
	}
}
