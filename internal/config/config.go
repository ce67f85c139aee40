package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds application configuration. Values come from defaults, then
// an optional YAML file named by BKKRT_CONFIG, then environment variables.
type Config struct {
	Port        int    `yaml:"port" validate:"gt=0,lte=65535"`
	Environment string `yaml:"environment" validate:"oneof=development production"`

	APIBaseDev  string `yaml:"api_base_dev" validate:"required,url"`
	APIBaseProd string `yaml:"api_base_prod" validate:"required,url"`
	StaticBase  string `yaml:"static_base" validate:"omitempty,url"` // empty = this server

	FetchTimeoutSec int `yaml:"fetch_timeout_sec" validate:"gt=0"`
	CacheTTLMS      int `yaml:"cache_ttl_ms" validate:"gt=0"`

	DBPath       string `yaml:"db_path"`
	RedisAddr    string `yaml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisChannel string `yaml:"redis_channel" validate:"required_with=RedisAddr"`

	LogLevel   string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat  string `yaml:"log_format" validate:"oneof=text json"`
	DataSource string `yaml:"data_source" validate:"required"`
}

func defaults() Config {
	return Config{
		Port:            8080,
		Environment:     EnvDevelopment,
		APIBaseDev:      "http://localhost:3001",
		APIBaseProd:     "https://futar.bkk.hu",
		FetchTimeoutSec: 30,
		CacheTTLMS:      120000,
		RedisChannel:    "bkkrt:snapshots",
		LogLevel:        "info",
		LogFormat:       "text",
		DataSource:      "bkk-futar",
	}
}

var validate = validator.New()

// Load reads configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("BKKRT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = envInt("BKKRT_PORT", cfg.Port)
	cfg.Environment = envStr("BKKRT_ENV", cfg.Environment)
	cfg.APIBaseDev = envStr("BKKRT_API_BASE_DEV", cfg.APIBaseDev)
	cfg.APIBaseProd = envStr("BKKRT_API_BASE_PROD", cfg.APIBaseProd)
	cfg.StaticBase = envStr("BKKRT_STATIC_BASE", cfg.StaticBase)
	cfg.FetchTimeoutSec = envInt("BKKRT_FETCH_TIMEOUT_SEC", cfg.FetchTimeoutSec)
	cfg.CacheTTLMS = envInt("BKKRT_CACHE_TTL_MS", cfg.CacheTTLMS)
	cfg.DBPath = envStr("BKKRT_DB_PATH", cfg.DBPath)
	cfg.RedisAddr = envStr("BKKRT_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisChannel = envStr("BKKRT_REDIS_CHANNEL", cfg.RedisChannel)
	cfg.LogLevel = strings.ToLower(envStr("BKKRT_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envStr("BKKRT_LOG_FORMAT", cfg.LogFormat))
	cfg.DataSource = envStr("BKKRT_DATA_SOURCE", cfg.DataSource)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration, including values set by flags after Load.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// APIBase returns the realtime proxy base URL for the configured environment.
func (c *Config) APIBase() string {
	if c.Environment == EnvProduction {
		return c.APIBaseProd
	}
	return c.APIBaseDev
}

// StaticURL returns the base URL of the static resources, defaulting to
// the copies embedded in this server.
func (c *Config) StaticURL() string {
	if c.StaticBase != "" {
		return c.StaticBase
	}
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMS) * time.Millisecond
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
