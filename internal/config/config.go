package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// DefaultDictionarySourceURL is the canonical MKB-10 CSV published on GitHub.
const DefaultDictionarySourceURL = "https://raw.githubusercontent.com/ak4nv/mkb10/master/mkb10.csv"

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	Dictionary DictionaryConfig `mapstructure:",squash"`
}

// DictionaryConfig controls how the diagnosis dictionary is fetched,
// parsed, refreshed and cached.
type DictionaryConfig struct {
	SourceURL      string        `mapstructure:"DICTIONARY_SOURCE_URL"`
	FallbackPath   string        `mapstructure:"DICTIONARY_FALLBACK_PATH"`
	Schema         string        `mapstructure:"DICTIONARY_SCHEMA"`
	FetchTimeout   time.Duration `mapstructure:"DICTIONARY_FETCH_TIMEOUT"`
	SyncTimeout    time.Duration `mapstructure:"DICTIONARY_SYNC_TIMEOUT"`
	SyncCron       string        `mapstructure:"DICTIONARY_SYNC_CRON"`
	SyncOnStartup  bool          `mapstructure:"DICTIONARY_SYNC_ON_STARTUP"`
	CacheMaxItems  int           `mapstructure:"DICTIONARY_CACHE_MAX_ENTRIES"`
	CacheWriteTTL  time.Duration `mapstructure:"DICTIONARY_CACHE_TTL_WRITE"`
	CacheAccessTTL time.Duration `mapstructure:"DICTIONARY_CACHE_TTL_ACCESS"`
}

var keys = []string{
	"PORT",
	"ENV",
	"LOG_LEVEL",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"CORS_ORIGINS",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT",
	"BODY_LIMIT",
	"DICTIONARY_SOURCE_URL",
	"DICTIONARY_FALLBACK_PATH",
	"DICTIONARY_SCHEMA",
	"DICTIONARY_FETCH_TIMEOUT",
	"DICTIONARY_SYNC_TIMEOUT",
	"DICTIONARY_SYNC_CRON",
	"DICTIONARY_SYNC_ON_STARTUP",
	"DICTIONARY_CACHE_MAX_ENTRIES",
	"DICTIONARY_CACHE_TTL_WRITE",
	"DICTIONARY_CACHE_TTL_ACCESS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("DICTIONARY_SOURCE_URL", DefaultDictionarySourceURL)
	v.SetDefault("DICTIONARY_FALLBACK_PATH", "")
	v.SetDefault("DICTIONARY_SCHEMA", "mkb10")
	v.SetDefault("DICTIONARY_FETCH_TIMEOUT", "30s")
	v.SetDefault("DICTIONARY_SYNC_TIMEOUT", "5m")
	v.SetDefault("DICTIONARY_SYNC_CRON", "0 2 * * *")
	v.SetDefault("DICTIONARY_SYNC_ON_STARTUP", true)
	v.SetDefault("DICTIONARY_CACHE_MAX_ENTRIES", 20000)
	v.SetDefault("DICTIONARY_CACHE_TTL_WRITE", "15m")
	v.SetDefault("DICTIONARY_CACHE_TTL_ACCESS", "10m")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil || (len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",")) {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	return c.Dictionary.Validate()
}

func (d DictionaryConfig) Validate() error {
	switch d.Schema {
	case "mkb10", "plain":
	default:
		return fmt.Errorf("DICTIONARY_SCHEMA must be \"mkb10\" or \"plain\", got %q", d.Schema)
	}
	if d.SourceURL == "" {
		return fmt.Errorf("DICTIONARY_SOURCE_URL is required")
	}
	if d.FetchTimeout <= 0 {
		return fmt.Errorf("DICTIONARY_FETCH_TIMEOUT must be positive, got %s", d.FetchTimeout)
	}
	if d.SyncTimeout < d.FetchTimeout {
		return fmt.Errorf("DICTIONARY_SYNC_TIMEOUT (%s) must be at least DICTIONARY_FETCH_TIMEOUT (%s)", d.SyncTimeout, d.FetchTimeout)
	}
	if _, err := cron.ParseStandard(d.SyncCron); err != nil {
		return fmt.Errorf("DICTIONARY_SYNC_CRON %q: %w", d.SyncCron, err)
	}
	if d.CacheMaxItems <= 0 {
		return fmt.Errorf("DICTIONARY_CACHE_MAX_ENTRIES must be positive, got %d", d.CacheMaxItems)
	}
	if d.CacheWriteTTL <= 0 || d.CacheAccessTTL <= 0 {
		return fmt.Errorf("dictionary cache TTLs must be positive")
	}
	return nil
}
