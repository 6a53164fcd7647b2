package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all console and fake gateway configuration
type Config struct {
	API     APIConfig     `yaml:"api"`
	Poll    PollConfig    `yaml:"poll"`
	Logs    LogsConfig    `yaml:"logs"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Gateway GatewayConfig `yaml:"gateway"`
}

// APIConfig points the console at a gateway
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PollConfig drives the periodic refresh
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LogsConfig holds attack log view defaults
type LogsConfig struct {
	PageSize int  `yaml:"page_size"`
	LiveTail bool `yaml:"live_tail"`
}

// LogConfig holds application logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig holds the prometheus listener; empty Addr disables it
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// GatewayConfig holds fake gateway settings
type GatewayConfig struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	JWTSecret   string `yaml:"jwt_secret"`
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: strings.TrimRight(getEnv("WAF_API_URL", "http://localhost:8080"), "/"),
			Timeout: getEnvDuration("WAF_HTTP_TIMEOUT", 15*time.Second),
		},
		Poll: PollConfig{
			Interval: getEnvDuration("WAF_POLL_INTERVAL", 5*time.Second),
		},
		Logs: LogsConfig{
			PageSize: getEnvInt("WAF_LOG_PAGE_SIZE", 20),
			LiveTail: getEnvBool("WAF_LIVE_TAIL", true),
		},
		Log: LogConfig{
			Level:  getEnv("WAF_LOG_LEVEL", "info"),
			Pretty: getEnvBool("WAF_PRETTY_LOG", true),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("WAF_METRICS_ADDR", ""),
		},
		Gateway: GatewayConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("APP_ENV", "development"),
			JWTSecret:   getEnv("JWT_SECRET", "super_secret_waf_key_change_me"),
		},
	}
}

// LoadFile loads the environment and overlays the YAML file at path, if any.
// Keys absent from the file keep their environment or default value.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		path = getEnv("WAF_CONSOLE_CONFIG", "")
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	return cfg, nil
}

// Validate reports every out-of-range value at once
func (c *Config) Validate() error {
	var errs []error
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Logs.PageSize < 1 {
		errs = append(errs, errors.New("log page size must be at least 1"))
	}
	if c.API.Timeout < 0 {
		errs = append(errs, errors.New("http timeout must not be negative"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// IsProduction returns true if the fake gateway runs in production mode
func (c *Config) IsProduction() bool {
	return c.Gateway.Environment == "production"
}

// getEnv retrieves an environment variable or returns a fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
