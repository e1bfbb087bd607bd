// Package config provides configuration loading and validation for the collector.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Target account. The deployment tracks exactly one username.
	TargetUsername string `validate:"required"`

	// X API credentials. Absence is valid and forces the scraper variant.
	APIBearerToken string
	APIKey         string
	APISecret      string

	// Database
	DatabaseURL string

	// Source selection
	UseAPIFirst bool

	// Scraper behavior
	ScraperRateLimit     float64 `validate:"gt=0"` // requests per second
	ScraperMaxRetries    int     `validate:"gte=1"`
	ScraperBackoffFactor float64 `validate:"gte=1"`
	ScraperTimeout       time.Duration

	// Scheduling
	CollectionInterval time.Duration `validate:"gt=0"`
	MaxPostsPerJob     int           `validate:"gte=1,lte=1000"`

	// Server
	Port        int `validate:"gte=1,lte=65535"`
	MetricsPort int

	Verbose bool
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		TargetUsername:       getEnv("X_TARGET_USERNAME", "elonmusk"),
		APIBearerToken:       getEnv("X_API_BEARER_TOKEN", ""),
		APIKey:               getEnv("X_API_KEY", ""),
		APISecret:            getEnv("X_API_SECRET", ""),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		UseAPIFirst:          getEnvBool("USE_API_FIRST", true),
		ScraperRateLimit:     getEnvFloat("SCRAPER_RATE_LIMIT", 0.5),
		ScraperMaxRetries:    getEnvInt("SCRAPER_MAX_RETRIES", 3),
		ScraperBackoffFactor: getEnvFloat("SCRAPER_BACKOFF_FACTOR", 2.0),
		ScraperTimeout:       getEnvDuration("SCRAPER_TIMEOUT", 30*time.Second),
		CollectionInterval:   getEnvDuration("COLLECTION_INTERVAL", 15*time.Minute),
		MaxPostsPerJob:       getEnvInt("MAX_POSTS_PER_JOB", 200),
		Port:                 getEnvInt("API_PORT", 8080),
		MetricsPort:          getEnvInt("METRICS_PORT", 0),
		Verbose:              getEnvBool("VERBOSE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// HasAPICredentials reports whether X API credentials are configured.
func (c *Config) HasAPICredentials() bool {
	return c.APIBearerToken != "" || (c.APIKey != "" && c.APISecret != "")
}

// ShouldUseAPI reports whether the API variant should service collection jobs.
// This is the sole source-selection policy: API-first and credentialed.
func (c *Config) ShouldUseAPI() bool {
	return c.UseAPIFirst && c.HasAPICredentials()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
