package quizcore

import (
	"errors"
	"io"
	"log/slog"

	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/internal/audit"
	"github.com/MrEthical07/quizcore/internal/rate"
	"github.com/MrEthical07/quizcore/jwt"
	"github.com/MrEthical07/quizcore/password"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/quizcache"
	"github.com/MrEthical07/quizcore/session"
	"github.com/MrEthical07/quizcore/store"
	"github.com/redis/go-redis/v9"
)

// Builder wires an [Engine]. Configure it once, call Build, then discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store        store.Store
	userProvider account.Provider
	auditSink    AuditSink
	logger       *slog.Logger

	built bool
}

// New returns a builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis switches the session registry to Redis and enables the login throttle.
// Without it sessions live in process memory.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the durable quiz store. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithUserProvider sets the user lookup. When omitted, a store that also implements
// [UserProvider] is used.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets where audit events go when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for swallowed failures. The default discards.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the score latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready engine. A builder can only be
// used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("durable store required")
	}
	users := b.userProvider
	if users == nil {
		up, ok := b.store.(account.Provider)
		if !ok {
			return nil, errors.New("user provider required")
		}
		users = up
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// -------- TOKEN SERVICE --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		Roles:         permission.Roles(),
	})
	if err != nil {
		return nil, err
	}

	// -------- SESSION REGISTRY --------
	var registry session.Registry
	if b.redis != nil {
		registry = session.NewRedisRegistry(b.redis, jm, cfg.Session.RedisPrefix)
	} else {
		registry = session.NewMemoryRegistry(jm)
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		tokens:   jm,
		gate:     permission.NewGate(jm),
		registry: registry,
		cache:    quizcache.New(b.store),
		store:    b.store,
		users:    users,
		hasher:   ph,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
	}

	if b.redis != nil && cfg.Security.EnableLoginThrottle {
		engine.limiter = rate.New(b.redis, rate.Config{
			Prefix:                cfg.Session.RedisPrefix + ":rl",
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		})
	}

	engine.initFlows()
	b.built = true

	return engine, nil
}
