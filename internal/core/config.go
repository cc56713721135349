package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the client configuration. Values come from defaults, then the
// optional stcache.toml file, then the environment (including a .env file).
type Config struct {
	BaseURL        string        `toml:"base_url"`
	Token          string        `toml:"-"`
	Callsign       string        `toml:"callsign"`
	CacheDir       string        `toml:"cache_dir"`
	Codec          string        `toml:"codec"` // json or msgpack
	ShardPrefixLen int           `toml:"shard_prefix_len"`
	PageLimit      int           `toml:"page_limit"`
	PageDelay      time.Duration `toml:"-"`
	PageDelayMS    int           `toml:"page_delay_ms"`
	ChartDepth     int           `toml:"chart_depth"`
	PrimeCooldowns bool          `toml:"prime_cooldowns"`
	RequestTimeout time.Duration `toml:"-"`
	TimeoutSeconds int           `toml:"request_timeout_seconds"`
	LogLevel       string        `toml:"log_level"`
	LogPretty      bool          `toml:"log_pretty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        APIBaseURL,
		Callsign:       DefaultCallsign,
		CacheDir:       CacheRoot(),
		Codec:          "json",
		ShardPrefixLen: DefaultShardPrefixLen,
		PageLimit:      PageLimit,
		PageDelay:      DefaultPageDelay,
		PageDelayMS:    int(DefaultPageDelay / time.Millisecond),
		ChartDepth:     DefaultChartDepth,
		RequestTimeout: 60 * time.Second,
		TimeoutSeconds: 60,
		LogLevel:       "info",
		LogPretty:      true,
	}
}

// LoadConfig builds the configuration. A missing file at path is not an error
// when path is the default file name.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if path != DefaultConfigFile {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	cfg.applyEnv()

	cfg.PageDelay = time.Duration(cfg.PageDelayMS) * time.Millisecond
	cfg.RequestTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second

	abs, err := filepath.Abs(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve cache dir: %w", err)
	}
	cfg.CacheDir = abs

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Token = getEnv(TokenEnvVar, c.Token)
	c.Callsign = getEnv(CallsignEnvVar, c.Callsign)
	c.BaseURL = getEnv("SPACETRADERS_BASE_URL", c.BaseURL)
	c.CacheDir = getEnv("STCACHE_DIR", c.CacheDir)
	c.Codec = getEnv("STCACHE_CODEC", c.Codec)
	c.LogLevel = getEnv("STCACHE_LOG_LEVEL", c.LogLevel)
	c.PageDelayMS = getEnvAsInt("STCACHE_PAGE_DELAY_MS", c.PageDelayMS)
	c.ChartDepth = getEnvAsInt("STCACHE_CHART_DEPTH", c.ChartDepth)
	c.PrimeCooldowns = getEnvAsBool("STCACHE_PRIME_COOLDOWNS", c.PrimeCooldowns)
}

// Validate reports every setting that would break the cache at runtime.
func (c *Config) Validate() error {
	var errs []error

	if c.CacheDir == "" {
		errs = append(errs, fmt.Errorf("cache_dir must not be empty"))
	}
	if c.Codec != "json" && c.Codec != "msgpack" {
		errs = append(errs, fmt.Errorf("codec must be json or msgpack, got %q", c.Codec))
	}
	if c.ShardPrefixLen < 1 {
		errs = append(errs, fmt.Errorf("shard_prefix_len must be >= 1"))
	}
	if c.PageLimit < 1 || c.PageLimit > PageLimit {
		errs = append(errs, fmt.Errorf("page_limit must be between 1 and %d", PageLimit))
	}
	if c.PageDelayMS < 0 {
		errs = append(errs, fmt.Errorf("page_delay_ms must be >= 0"))
	}
	if c.ChartDepth < 1 {
		errs = append(errs, fmt.Errorf("chart_depth must be >= 1"))
	}
	if c.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("request_timeout_seconds must be >= 0"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
