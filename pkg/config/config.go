// Package config loads the proxy configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/meta-ads-proxy/pkg/client"
	"github.com/Sternrassler/meta-ads-proxy/pkg/logging"
	"github.com/joho/godotenv"
)

// Config is the proxy configuration.
type Config struct {
	Port string

	// Graph API
	AccessToken string
	APIVersion  string
	BaseURL     string

	RequestTimeout    time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	CircuitBreaker    bool

	// RedisURL selects the shared credential store; empty keeps the token in memory.
	RedisURL string

	// StaticDir is served at "/" when set.
	StaticDir string

	LogLevel  string
	LogPretty bool
}

// Load reads an optional .env file from the working directory, then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the environment only.
func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		Port:        getEnv("PORT", "3000"),
		AccessToken: strings.TrimSpace(os.Getenv("META_ACCESS_TOKEN")),
		APIVersion:  getEnv("META_API_VERSION", "v24.0"),
		BaseURL:     getEnv("META_BASE_URL", "https://graph.facebook.com"),
		RedisURL:    os.Getenv("REDIS_URL"),
		StaticDir:   os.Getenv("STATIC_DIR"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	cfg.RequestTimeout = getDurationEnv("REQUEST_TIMEOUT", 30*time.Second, &errs)
	cfg.MaxRetries = getIntEnv("MAX_RETRIES", 3, &errs)
	cfg.RequestsPerSecond = getFloatEnv("REQUESTS_PER_SECOND", 0, &errs)
	cfg.CircuitBreaker = getBoolEnv("CIRCUIT_BREAKER", false, &errs)
	cfg.LogPretty = getBoolEnv("LOG_PRETTY", false, &errs)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a port number (got %q)", c.Port))
	}
	if c.APIVersion == "" {
		errs = append(errs, errors.New("META_API_VERSION must not be empty"))
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("META_BASE_URL is invalid: %w", err))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be > 0 (got %v)", c.RequestTimeout))
	}
	if c.MaxRetries < 0 || c.MaxRetries > client.MaxRetryLimit {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be between 0 and %d (got %d)", client.MaxRetryLimit, c.MaxRetries))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("REQUESTS_PER_SECOND must be >= 0 (got %v)", c.RequestsPerSecond))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int, errs *[]error) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, value))
		return fallback
	}
	return i
}

func getFloatEnv(key string, fallback float64, errs *[]error) float64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid number %q", key, value))
		return fallback
	}
	return f
}

func getBoolEnv(key string, fallback bool, errs *[]error) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, value))
		return fallback
	}
	return b
}

func getDurationEnv(key string, fallback time.Duration, errs *[]error) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	value = strings.TrimSpace(value)
	// Duration string (e.g. "30s") or integer seconds.
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if i, err := strconv.Atoi(value); err == nil {
		return time.Duration(i) * time.Second
	}
	*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, value))
	return fallback
}
