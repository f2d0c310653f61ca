package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	"github.com/trmquang93/planning-poker-sub001/internal/util"
)

type Config struct {
	Port                    int    `env:"PORT" envDefault:"8080"`
	Environment             string `env:"APP_ENV" envDefault:"development"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`
	SessionTTLMinutes       int    `env:"SESSION_TTL_MINUTES" envDefault:"120"`
	SweepIntervalSeconds    int    `env:"SWEEP_INTERVAL_SECONDS" envDefault:"300"`
	EnforceVoteScale        bool   `env:"ENFORCE_VOTE_SCALE" envDefault:"false"`
	DatabaseURL             string `env:"DATABASE_URL"`
	SnapshotIntervalSeconds int    `env:"SNAPSHOT_INTERVAL_SECONDS" envDefault:"30"`
	RedisURL                string `env:"REDIS_URL"`
	RateLimitPerMin         int    `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	AdminKeyHash            string `env:"ADMIN_KEY_HASH"`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminKeyHash != "" && !util.IsBcryptHash(c.AdminKeyHash) {
		return fmt.Errorf("ADMIN_KEY_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <key>)")
	}

	for name, value := range map[string]int{
		"SESSION_TTL_MINUTES":       c.SessionTTLMinutes,
		"SWEEP_INTERVAL_SECONDS":    c.SweepIntervalSeconds,
		"SNAPSHOT_INTERVAL_SECONDS": c.SnapshotIntervalSeconds,
		"RATE_LIMIT_PER_MIN":        c.RateLimitPerMin,
	} {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, value)
		}
	}

	if isProduction {
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.AdminKeyHash == "" {
			log.Warn().Msg("ADMIN_KEY_HASH is empty in production: admin routes are disabled")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
