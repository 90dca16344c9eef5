// Package config loads application configuration from a YAML file, a .env file
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// backend
	BackendURL        string  `yaml:"backend_url"`
	HTTPTimeoutSec    int     `yaml:"http_timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	RequestBurst      int     `yaml:"request_burst"`

	// listing
	PageSize      int `yaml:"page_size"`
	StatusWorkers int `yaml:"status_workers"`

	// local storage
	StorePath string `yaml:"store_path"`

	// events
	NatsURL          string `yaml:"nats_url"`
	FavoritesSubject string `yaml:"favorites_subject"`

	// local host
	HTTPPort    int      `yaml:"http_port"`
	CORSOrigins []string `yaml:"cors_origins"`

	// logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		BackendURL:        "http://localhost:5000",
		HTTPTimeoutSec:    15,
		RequestsPerSecond: 10,
		RequestBurst:      5,
		PageSize:          5,
		StatusWorkers:     4,
		StorePath:         "./data/stagesync.db",
		FavoritesSubject:  "favorites.count",
		HTTPPort:          3100,
		CORSOrigins:       []string{"*"},
		LogLevel:          "info",
		LogFile:           "",
	}
}

// Load reads configuration with sensible defaults.
// A .env file in the working directory is loaded when present; STAGESYNC_CONFIG
// points at an optional YAML file. Environment variables win over both.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("STAGESYNC_CONFIG"); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	cfg.BackendURL = getEnv("BACKEND_URL", cfg.BackendURL)
	cfg.HTTPTimeoutSec = getEnvInt("HTTP_TIMEOUT_SECONDS", cfg.HTTPTimeoutSec)
	cfg.RequestsPerSecond = getEnvFloat("REQUESTS_PER_SECOND", cfg.RequestsPerSecond)
	cfg.RequestBurst = getEnvInt("REQUEST_BURST", cfg.RequestBurst)
	cfg.PageSize = getEnvInt("PAGE_SIZE", cfg.PageSize)
	cfg.StatusWorkers = getEnvInt("STATUS_WORKERS", cfg.StatusWorkers)
	cfg.StorePath = getEnv("STORE_PATH", cfg.StorePath)
	cfg.NatsURL = getEnv("NATS_URL", cfg.NatsURL)
	cfg.FavoritesSubject = getEnv("FAVORITES_SUBJECT", cfg.FavoritesSubject)
	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML config file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values the engine cannot run without.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend_url %q is not an absolute url", c.BackendURL))
	}
	if c.HTTPTimeoutSec <= 0 {
		errs = append(errs, errors.New("http_timeout_seconds must be positive"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, errors.New("page_size must be positive"))
	}
	if c.StatusWorkers <= 0 {
		errs = append(errs, errors.New("status_workers must be positive"))
	}
	if c.StorePath == "" {
		errs = append(errs, errors.New("store_path is required"))
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("http_port %d out of range", c.HTTPPort))
	}

	return errors.Join(errs...)
}

// HTTPTimeout returns the per-request timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvList splits a comma separated variable.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
