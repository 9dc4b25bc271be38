// Package config loads runtime settings from the environment, reading a
// .env file first when one exists.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	KVBackendSQLite = "sqlite"
	KVBackendRedis  = "redis"
	KVBackendMemory = "memory"

	RemoteBackendMongo  = "mongo"
	RemoteBackendMemory = "memory"
)

type Config struct {
	HTTPPort           string
	KVBackend          string
	SQLitePath         string
	RedisAddr          string
	RemoteBackend      string
	MongoURI           string
	MongoDBName        string
	RemoteCallTimeout  time.Duration
	ReconcileInterval  time.Duration
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	LogEnv             string
	BreakerMaxFailures uint32
	// DotEnvLoaded reports whether a .env file was found.
	DotEnvLoaded bool
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	loaded := godotenv.Load() == nil
	return FromEnv(loaded)
}

// FromEnv builds the config from the process environment only.
func FromEnv(dotEnvLoaded bool) (*Config, error) {
	cfg := &Config{
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		KVBackend:     getEnv("KV_BACKEND", KVBackendSQLite),
		SQLitePath:    getEnv("SQLITE_PATH", "./cartsync.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RemoteBackend: getEnv("REMOTE_BACKEND", RemoteBackendMongo),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "shop"),
		LogEnv:        getEnv("LOG_ENV", "development"),
		DotEnvLoaded:  dotEnvLoaded,
	}

	var err error
	if cfg.RemoteCallTimeout, err = getDuration("REMOTE_CALL_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = getDuration("RECONCILE_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	maxFailures, err := strconv.ParseUint(getEnv("BREAKER_MAX_FAILURES", "5"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid BREAKER_MAX_FAILURES: %w", err)
	}
	cfg.BreakerMaxFailures = uint32(maxFailures)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.KVBackend {
	case KVBackendSQLite, KVBackendRedis, KVBackendMemory:
	default:
		return fmt.Errorf("unknown KV_BACKEND %q", c.KVBackend)
	}
	switch c.RemoteBackend {
	case RemoteBackendMongo, RemoteBackendMemory:
	default:
		return fmt.Errorf("unknown REMOTE_BACKEND %q", c.RemoteBackend)
	}
	if c.RemoteCallTimeout <= 0 {
		return fmt.Errorf("REMOTE_CALL_TIMEOUT must be positive")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
