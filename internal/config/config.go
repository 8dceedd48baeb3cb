// Package config loads the rawrfetch CLI configuration from the environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all CLI configuration loaded from environment variables.
type Config struct {
	API   APIConfig
	Cache CacheConfig
	Debug DebugConfig
	Log   LogConfig
}

// APIConfig holds REST API client settings.
type APIConfig struct {
	BaseURL   string        `envconfig:"RAWR_API_URL" default:"http://localhost:8080"`
	Token     string        `envconfig:"RAWR_API_TOKEN" default:""`
	CompanyID string        `envconfig:"RAWR_COMPANY_ID" default:""`
	Timeout   time.Duration `envconfig:"RAWR_API_TIMEOUT" default:"10s"`
	RateLimit float64       `envconfig:"RAWR_RATE_LIMIT" default:"20"`
	RateBurst int           `envconfig:"RAWR_RATE_BURST" default:"10"`
}

// CacheConfig holds response cache settings. At most one of RedisAddr and
// SQLitePath may be set.
type CacheConfig struct {
	Capacity  int           `envconfig:"RAWR_CACHE_CAPACITY" default:"500"`
	TTL       time.Duration `envconfig:"RAWR_CACHE_TTL" default:"5m"`
	L1MaxCost int64         `envconfig:"RAWR_CACHE_L1_MAX_COST" default:"0"`

	RedisAddr     string `envconfig:"RAWR_REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"RAWR_REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"RAWR_REDIS_DB" default:"0"`

	SQLitePath string `envconfig:"RAWR_CACHE_SQLITE_PATH" default:""`
}

// DebugConfig holds the optional debug HTTP server and tracing settings.
type DebugConfig struct {
	Addr        string `envconfig:"RAWR_DEBUG_ADDR" default:""`
	TraceStdout bool   `envconfig:"RAWR_TRACE_STDOUT" default:"false"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `envconfig:"RAWR_LOG_LEVEL" default:"info"`
	Format string `envconfig:"RAWR_LOG_FORMAT" default:"logfmt"`
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	if c.Cache.RedisAddr != "" && c.Cache.SQLitePath != "" {
		return errors.New("config: RAWR_REDIS_ADDR and RAWR_CACHE_SQLITE_PATH are mutually exclusive")
	}
	switch c.Log.Format {
	case "logfmt", "json":
	default:
		return fmt.Errorf("config: unknown RAWR_LOG_FORMAT %q", c.Log.Format)
	}
	return nil
}

// Load reads the given .env files (".env" when none is given), then the
// environment. Missing .env files are ignored; variables already set in the
// environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
