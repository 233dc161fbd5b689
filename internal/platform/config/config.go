// Package config loads server and CLI settings from TILECACHE_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Tier backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the full server configuration.
type Config struct {
	Addr     string `env:"TILECACHE_ADDR"      envDefault:":8080"`
	LogLevel string `env:"TILECACHE_LOG_LEVEL" envDefault:"info"`
	// Backend selects where tiers live: memory or redis.
	Backend string `env:"TILECACHE_BACKEND" envDefault:"memory"`

	Redis    RedisConfig
	Sessions SessionConfig
	Defaults PageDefaults
	Delays   DelayConfig
}

// RedisConfig configures the Redis client backing both tiers.
type RedisConfig struct {
	URL          string        `env:"TILECACHE_REDIS_URL"`
	PoolSize     int           `env:"TILECACHE_REDIS_POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"TILECACHE_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"TILECACHE_REDIS_DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"TILECACHE_REDIS_READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"TILECACHE_REDIS_WRITE_TIMEOUT"  envDefault:"3s"`
}

// SessionConfig bounds the session registry.
type SessionConfig struct {
	IdleTTL  time.Duration `env:"TILECACHE_SESSION_IDLE_TTL" envDefault:"30m"`
	Capacity int           `env:"TILECACHE_SESSION_CAPACITY" envDefault:"10000"`
}

// PageDefaults fill page parameters a client omits.
type PageDefaults struct {
	MaxSectionsToStore int  `env:"TILECACHE_MAX_SECTIONS_TO_STORE" envDefault:"10"`
	StaleMinutes       int  `env:"TILECACHE_STALE_MINUTES"         envDefault:"30"`
	AssumeConsent      bool `env:"TILECACHE_ASSUME_CONSENT"`
}

// DelayConfig sets when deferred callbacks run.
type DelayConfig struct {
	Prompt  time.Duration `env:"TILECACHE_PROMPT_DELAY"  envDefault:"500ms"`
	Restore time.Duration `env:"TILECACHE_RESTORE_DELAY" envDefault:"1s"`
	Evict   time.Duration `env:"TILECACHE_EVICT_DELAY"   envDefault:"2s"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("TILECACHE_REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Defaults.MaxSectionsToStore < 0 || c.Defaults.StaleMinutes < 0 {
		return fmt.Errorf("page defaults must be non-negative")
	}
	if c.Sessions.Capacity <= 0 || c.Sessions.IdleTTL <= 0 {
		return fmt.Errorf("session capacity and idle TTL must be positive")
	}
	return nil
}
