package quizcore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of the engine. Start from DefaultConfig and override.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Password PasswordConfig
	Security SecurityConfig
	Cache    CacheConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Store    StoreConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the token service.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte // shared secret for hs256
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the session registry. RedisPrefix only matters when a Redis
// client is wired.
type SessionConfig struct {
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters for credential and quiz passwords.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig configures the failed login throttle. It needs Redis.
type SecurityConfig struct {
	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig configures the per-user quiz cache.
type CacheConfig struct {
	// PageFillSize is the store page size used when an author's cache is filled.
	PageFillSize int
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters and the score latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// StoreConfig locates the durable store. An empty DatabaseURL selects the in-memory store
// in cmd/quizcore.
type StoreConfig struct {
	DatabaseURL string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. JWT.PrivateKey must still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "quizcore",
		},
		Session: SessionConfig{
			RedisPrefix: "qs",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   true,
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Cache: CacheConfig{
			PageFillSize: 100,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("Security LoginCooldownDuration must be > 0")
		}
	}

	// Cache
	if c.Cache.PageFillSize <= 0 {
		return errors.New("Cache PageFillSize must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

/*
====================================
ENVIRONMENT
====================================
*/

// LoadConfigFromEnv starts from DefaultConfig and applies QUIZCORE_* variables. The hs256
// secret is read hex-encoded from QUIZCORE_JWT_SECRET. The result is validated.
func LoadConfigFromEnv() (Config, error) {
	cfg := defaultConfig()

	cfg.JWT.AccessTTL = getEnvDuration("QUIZCORE_JWT_TTL", cfg.JWT.AccessTTL)
	cfg.JWT.Issuer = getEnv("QUIZCORE_JWT_ISSUER", cfg.JWT.Issuer)
	if secret := getEnv("QUIZCORE_JWT_SECRET", ""); secret != "" {
		key, err := hex.DecodeString(secret)
		if err != nil {
			return Config{}, fmt.Errorf("QUIZCORE_JWT_SECRET must be hex: %w", err)
		}
		cfg.JWT.PrivateKey = key
	}
	cfg.Session.RedisPrefix = getEnv("QUIZCORE_REDIS_PREFIX", cfg.Session.RedisPrefix)
	cfg.Security.EnableLoginThrottle = getEnvBool("QUIZCORE_LOGIN_THROTTLE", cfg.Security.EnableLoginThrottle)
	cfg.Security.EnableIPThrottle = getEnvBool("QUIZCORE_IP_THROTTLE", cfg.Security.EnableIPThrottle)
	cfg.Security.MaxLoginAttempts = getEnvInt("QUIZCORE_MAX_LOGIN_ATTEMPTS", cfg.Security.MaxLoginAttempts)
	cfg.Security.LoginCooldownDuration = getEnvDuration("QUIZCORE_LOGIN_COOLDOWN", cfg.Security.LoginCooldownDuration)
	cfg.Cache.PageFillSize = getEnvInt("QUIZCORE_CACHE_FILL_SIZE", cfg.Cache.PageFillSize)
	cfg.Audit.Enabled = getEnvBool("QUIZCORE_AUDIT", cfg.Audit.Enabled)
	cfg.Metrics.Enabled = getEnvBool("QUIZCORE_METRICS", cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = getEnvBool("QUIZCORE_LATENCY_HISTOGRAMS", cfg.Metrics.EnableLatencyHistograms)
	cfg.Store.DatabaseURL = getEnv("DATABASE_URL", cfg.Store.DatabaseURL)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
