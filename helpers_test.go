package quizcore

import (
	"context"
	"testing"

	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/password"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-password-123"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// seedStore returns a memory store with alice (taker), bob (taker, author) and carol
// (every role), all sharing testPassword.
func seedStore(t *testing.T, cfg Config) *memory.Store {
	t.Helper()
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	s := memory.New()
	users := []account.User{
		{ID: "u-alice", Identifier: "alice", Entitlements: permission.NewMask64(permission.EntitlementTake)},
		{ID: "u-bob", Identifier: "bob", Entitlements: permission.NewMask64(permission.EntitlementTake, permission.EntitlementAuthor)},
		{ID: "u-carol", Identifier: "carol", Entitlements: permission.NewMask64(
			permission.EntitlementTake, permission.EntitlementAuthor, permission.EntitlementManage)},
	}
	for _, u := range users {
		u.PasswordHash = hash
		if err := s.PutUser(context.Background(), u); err != nil {
			t.Fatalf("put user %s: %v", u.ID, err)
		}
	}
	return s
}

type engineOpts struct {
	cfg   Config
	redis *redis.Client
	sink  AuditSink
}

func newTestEngine(t *testing.T, opts engineOpts) (*Engine, *memory.Store) {
	t.Helper()
	if opts.cfg.JWT.AccessTTL == 0 {
		opts.cfg = testConfig()
	}
	s := seedStore(t, opts.cfg)

	b := New().WithConfig(opts.cfg).WithStore(s)
	if opts.redis != nil {
		b = b.WithRedis(opts.redis)
	}
	if opts.sink != nil {
		b = b.WithAuditSink(opts.sink)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, s
}

func login(t *testing.T, e *Engine, identifier, role string) *LoginResult {
	t.Helper()
	res, err := e.Login(context.Background(), identifier, testPassword, role)
	if err != nil {
		t.Fatalf("login %s as %q: %v", identifier, role, err)
	}
	return res
}

func sampleDraft(title string) QuizSnapshot {
	return QuizSnapshot{
		Title: title,
		Questions: []Question{
			{
				Text:            "2+2",
				CorrectPoints:   2,
				IncorrectPoints: -1,
				Answers: []Answer{
					{Text: "4", IsCorrect: true},
					{Text: "5"},
				},
			},
			{
				Text:          "capital of France",
				CorrectPoints: 3,
				Answers: []Answer{
					{Text: "Paris", IsCorrect: true},
					{Text: "Lyon"},
				},
			},
		},
	}
}
