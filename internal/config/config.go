package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	GeminiAPIKey            string  `env:"GEMINI_API_KEY"`
	GeminiModel             string  `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeneratorTimeoutSeconds int     `env:"GENERATOR_TIMEOUT_SECONDS" envDefault:"60"`
	GeneratorRequestsPerMin int     `env:"GENERATOR_REQUESTS_PER_MIN" envDefault:"30"`
	GeneratorTemperature    float64 `env:"GENERATOR_TEMPERATURE" envDefault:"0.4"`
	GapFillBudgetSeconds    int     `env:"GAP_FILL_BUDGET_SECONDS" envDefault:"45"`

	IngestTokenHash         string `env:"INGEST_TOKEN_HASH"`
	IngestRateLimitPerMin   int    `env:"INGEST_RATE_LIMIT_PER_MIN" envDefault:"30"`
	PublicRateLimitPerMin   int    `env:"PUBLIC_RATE_LIMIT_PER_MIN" envDefault:"120"`
	MaxBodyBytes            int64  `env:"MAX_BODY_BYTES" envDefault:"10485760"`
	ViewCacheTTLSeconds     int    `env:"VIEW_CACHE_TTL_SECONDS" envDefault:"300"`
	HealOnRead              bool   `env:"HEAL_ON_READ" envDefault:"true"`
	MentorDirectoryPath     string `env:"MENTOR_DIRECTORY_PATH"`
	BackfillIntervalMinutes int    `env:"BACKFILL_INTERVAL_MINUTES" envDefault:"0"`
	BackfillBatchSize       int    `env:"BACKFILL_BATCH_SIZE" envDefault:"25"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.GeneratorTimeoutSeconds) * time.Second
}

// GapFillBudget bounds all generator calls made for one session write.
func (c *Config) GapFillBudget() time.Duration {
	return time.Duration(c.GapFillBudgetSeconds) * time.Second
}

func (c *Config) ViewCacheTTL() time.Duration {
	return time.Duration(c.ViewCacheTTLSeconds) * time.Second
}

// BackfillInterval is zero when the periodic backfill job is disabled.
func (c *Config) BackfillInterval() time.Duration {
	return time.Duration(c.BackfillIntervalMinutes) * time.Minute
}

func (c *Config) Validate(isProduction bool) error {
	if c.IngestTokenHash != "" {
		if len(c.IngestTokenHash) != 64 {
			return fmt.Errorf("INGEST_TOKEN_HASH must be a sha256 hex digest (generate with: sessionctl token)")
		}
		if _, err := hex.DecodeString(c.IngestTokenHash); err != nil {
			return fmt.Errorf("INGEST_TOKEN_HASH must be a sha256 hex digest (generate with: sessionctl token)")
		}
	}
	if c.GeneratorTemperature < 0 || c.GeneratorTemperature > 2 {
		return fmt.Errorf("GENERATOR_TEMPERATURE must be between 0 and 2")
	}
	if c.GeneratorRequestsPerMin <= 0 {
		return fmt.Errorf("GENERATOR_REQUESTS_PER_MIN must be positive")
	}
	if c.GapFillBudgetSeconds <= 0 || c.GapFillBudget()+SessionWriteTimeout >= ServerRequestTimeout {
		return fmt.Errorf("GAP_FILL_BUDGET_SECONDS must be positive and leave %s of the %s request timeout for the write",
			SessionWriteTimeout, ServerRequestTimeout)
	}
	if c.BackfillIntervalMinutes < 0 || c.BackfillBatchSize <= 0 {
		return fmt.Errorf("BACKFILL_INTERVAL_MINUTES must be >= 0 and BACKFILL_BATCH_SIZE positive")
	}

	if isProduction {
		if c.IngestTokenHash == "" {
			return fmt.Errorf("INGEST_TOKEN_HASH is required in production")
		}
		if c.GeminiAPIKey == "" {
			log.Warn().Msg("GEMINI_API_KEY is empty in production: gap filling and summaries are disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	} else if c.IngestTokenHash == "" {
		log.Warn().Msg("INGEST_TOKEN_HASH is empty: write endpoints accept unauthenticated requests")
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
