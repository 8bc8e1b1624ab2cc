package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MinSecretBytes is the minimum accepted length of the token signing secret.
const MinSecretBytes = 32

// Config holds all service configuration. It is loaded once at startup from
// environment variables and treated as immutable afterwards.
type Config struct {
	// Environment: "production" or anything else (dev, test, staging).
	Environment string

	// Database
	DatabaseDSN string

	// Auth
	AuthSecret      []byte
	EphemeralSecret bool
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Lockout
	LockoutMaxAttempts int
	LockoutWindow      time.Duration
	LockoutDuration    time.Duration

	// Lockout counter store: empty means in-process memory store.
	RedisAddr string

	// Impersonation
	ImpersonationTTL time.Duration

	// HTTP
	ServerAddr      string
	RateLimitPerSec int
	RateLimitBurst  int
	MaxBodyBytes    int64
	AuditBufferSize int
	ShutdownTimeout time.Duration
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads configuration from the environment.
//
// In production VELO_AUTH_SECRET is mandatory and must be at least 32 bytes;
// a missing or weak secret is a startup failure, never a runtime fallback. In
// any other environment a random ephemeral secret is synthesized once at boot
// when none is supplied; the caller is expected to log that fact.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: strings.ToLower(getEnvString("VELO_ENV", "development")),
	}

	cfg.DatabaseDSN = os.Getenv("VELO_PG_DSN")

	secret := os.Getenv("VELO_AUTH_SECRET")
	switch {
	case secret != "":
		if len(secret) < MinSecretBytes {
			return nil, fmt.Errorf("config: VELO_AUTH_SECRET must be at least %d bytes, got %d", MinSecretBytes, len(secret))
		}
		cfg.AuthSecret = []byte(secret)
	case cfg.IsProduction():
		return nil, fmt.Errorf("config: VELO_AUTH_SECRET is required in production")
	default:
		raw := make([]byte, MinSecretBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("config: generate ephemeral secret: %w", err)
		}
		cfg.AuthSecret = []byte(base64.RawStdEncoding.EncodeToString(raw))
		cfg.EphemeralSecret = true
	}

	cfg.AccessTokenTTL = getEnvDuration("VELO_ACCESS_TTL", 15*time.Minute)
	cfg.RefreshTokenTTL = getEnvDuration("VELO_REFRESH_TTL", 30*24*time.Hour)

	cfg.LockoutMaxAttempts = getEnvInt("VELO_LOCKOUT_MAX_ATTEMPTS", 5)
	cfg.LockoutWindow = getEnvDuration("VELO_LOCKOUT_WINDOW", 15*time.Minute)
	cfg.LockoutDuration = getEnvDuration("VELO_LOCKOUT_DURATION", 15*time.Minute)

	cfg.RedisAddr = os.Getenv("VELO_REDIS_ADDR")

	cfg.ImpersonationTTL = getEnvDuration("VELO_IMPERSONATION_TTL", 30*time.Minute)

	cfg.ServerAddr = getEnvString("VELO_SERVER_ADDR", ":8080")
	cfg.RateLimitPerSec = getEnvInt("VELO_RATE_LIMIT_PER_SEC", 20)
	cfg.RateLimitBurst = getEnvInt("VELO_RATE_LIMIT_BURST", 40)
	cfg.MaxBodyBytes = getEnvInt64("VELO_MAX_BODY_BYTES", 1<<20)
	cfg.AuditBufferSize = getEnvInt("VELO_AUDIT_BUFFER", 1024)
	cfg.ShutdownTimeout = getEnvDuration("VELO_SHUTDOWN_TIMEOUT", 10*time.Second)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
