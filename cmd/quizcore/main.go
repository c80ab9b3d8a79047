package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/quizcore"
	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/metrics/export/prometheus"
	"github.com/MrEthical07/quizcore/password"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/store/memory"
	"github.com/MrEthical07/quizcore/store/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const demoPassword = "demo-password-123"

// backend is a quiz store that can also seed users.
type backend interface {
	quizcore.Store
	quizcore.UserProvider
	PutUser(ctx context.Context, u account.User) error
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of takers to seed")
		concurrency = flag.Int("concurrency", 16, "number of concurrent workers")
		contenders  = flag.Int("contenders", 32, "concurrent logins racing for one user")
		rounds      = flag.Int("rounds", 5, "quiz completions per taker")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *users <= 0 || *concurrency <= 0 || *contenders <= 0 || *rounds <= 0 {
		logger.Error("users, concurrency, contenders and rounds must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	if os.Getenv("QUIZCORE_JWT_SECRET") == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logger.Error("generate secret", "error", err)
			os.Exit(1)
		}
		_ = os.Setenv("QUIZCORE_JWT_SECRET", hex.EncodeToString(secret))
	}
	cfg, err := quizcore.LoadConfigFromEnv()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Audit.Enabled = *verbose

	client, cleanup, err := openRedis(*redisAddr, logger)
	if err != nil {
		logger.Error("redis", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	store, closeStore, err := openStore(ctx, cfg.Store.DatabaseURL, logger)
	if err != nil {
		logger.Error("store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		logger.Error("hasher", "error", err)
		os.Exit(1)
	}
	hash, err := hasher.Hash(demoPassword)
	if err != nil {
		logger.Error("hash", "error", err)
		os.Exit(1)
	}

	runID := time.Now().Format("150405")
	takers, err := seedUsers(ctx, store, runID, hash, *users)
	if err != nil {
		logger.Error("seed users", "error", err)
		os.Exit(1)
	}

	engine, err := quizcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithStore(store).
		WithLogger(logger).
		WithAuditSink(quizcore.NewSlogSink(logger)).
		Build()
	if err != nil {
		logger.Error("build engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	quizID, answers, err := publishQuiz(ctx, engine, "author-"+runID)
	if err != nil {
		logger.Error("publish quiz", "error", err)
		os.Exit(1)
	}
	logger.Info("quiz published", "quiz_id", quizID, "questions", len(answers))

	contention := runContentionPhase(ctx, engine, takers[0], *contenders)
	completion := runCompletionPhase(ctx, engine, takers, quizID, answers, *rounds, *concurrency)

	fmt.Println("---- results ----")
	fmt.Printf("contention: contenders=%d winners=%d conflicts=%d other=%d\n",
		*contenders, contention.winners, contention.conflicts, contention.other)
	printStats("complete", completion)
	fmt.Println("---- metrics ----")
	fmt.Print(prometheus.NewPrometheusExporter(engine).RenderContext(ctx))
}

func openRedis(addr string, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Info("using miniredis", "addr", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	logger.Info("using redis", "addr", addr)
	return client, func() { _ = client.Close() }, nil
}

func openStore(ctx context.Context, dsn string, logger *slog.Logger) (backend, func(), error) {
	if dsn == "" {
		logger.Info("using in-memory store")
		return memory.New(), func() {}, nil
	}
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	s, err := postgres.New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info("using postgres store")
	return s, func() { _ = db.Close() }, nil
}

func seedUsers(ctx context.Context, store backend, runID, hash string, n int) ([]string, error) {
	author := account.User{
		ID:           "author-" + runID,
		Identifier:   "author-" + runID,
		PasswordHash: hash,
		Entitlements: permission.NewMask64(permission.EntitlementTake, permission.EntitlementAuthor),
	}
	if err := store.PutUser(ctx, author); err != nil {
		return nil, err
	}

	takers := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("taker-%s-%d", runID, i)
		err := store.PutUser(ctx, account.User{
			ID:           id,
			Identifier:   id,
			PasswordHash: hash,
			Entitlements: permission.NewMask64(permission.EntitlementTake),
		})
		if err != nil {
			return nil, err
		}
		takers[i] = id
	}
	return takers, nil
}

func publishQuiz(ctx context.Context, engine *quizcore.Engine, author string) (int64, []quizcore.SubmittedAnswer, error) {
	res, err := engine.Login(ctx, author, demoPassword, string(quizcore.RoleAuthor))
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = engine.Logout(ctx, res.Token) }()

	draft := quizcore.QuizSnapshot{Title: "load test", Description: "generated"}
	for i := 0; i < 10; i++ {
		draft.Questions = append(draft.Questions, quizcore.Question{
			Text:            fmt.Sprintf("question %d", i+1),
			CorrectPoints:   2,
			IncorrectPoints: -1,
			Answers: []quizcore.Answer{
				{Text: "right", IsCorrect: true},
				{Text: "wrong"},
				{Text: "also wrong"},
			},
		})
	}
	q, err := engine.CreateQuiz(ctx, res.Token, draft, "")
	if err != nil {
		return 0, nil, err
	}

	answers := make([]quizcore.SubmittedAnswer, 0, len(q.Questions))
	for _, question := range q.Questions {
		pick := question.Answers[mrand.Intn(len(question.Answers))]
		answers = append(answers, quizcore.SubmittedAnswer{QuestionID: question.ID, AnswerID: pick.ID})
	}
	return q.ID, answers, nil
}

type contentionStats struct {
	winners   int64
	conflicts int64
	other     int64
}

func runContentionPhase(ctx context.Context, engine *quizcore.Engine, user string, contenders int) contentionStats {
	var (
		wg     sync.WaitGroup
		stats  contentionStats
		tokens sync.Map
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.Login(ctx, user, demoPassword, "")
			switch {
			case err == nil:
				atomic.AddInt64(&stats.winners, 1)
				tokens.Store(res.Token, struct{}{})
			case errors.Is(err, quizcore.ErrSessionConflict):
				atomic.AddInt64(&stats.conflicts, 1)
			default:
				atomic.AddInt64(&stats.other, 1)
			}
		}()
	}
	wg.Wait()

	tokens.Range(func(k, _ any) bool {
		_ = engine.Logout(ctx, k.(string))
		return true
	})
	return stats
}

func runCompletionPhase(ctx context.Context, engine *quizcore.Engine, takers []string, quizID int64, answers []quizcore.SubmittedAnswer, rounds, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(takers)*rounds)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(takers) {
					return
				}
				res, err := engine.Login(ctx, takers[i], demoPassword, "")
				if err != nil {
					atomic.AddInt64(&failures, int64(rounds))
					continue
				}
				for r := 0; r < rounds; r++ {
					t0 := time.Now()
					_, err := engine.CompleteQuiz(ctx, res.Token, quizID, answers)
					d := time.Since(t0)
					if err != nil {
						atomic.AddInt64(&failures, 1)
					}
					mu.Lock()
					latencies = append(latencies, d)
					mu.Unlock()
				}
				_ = engine.Logout(ctx, res.Token)
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
