// Package config loads service settings from environment variables, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the service.
type Config struct {
	// Server
	Port            string
	LogLevel        string // debug, info, warn, error
	ShutdownTimeout time.Duration

	// AI
	AnthropicAPIKey string
	AnthropicModel  string // empty selects the adapter default
	AITemperature   float64
	AIMaxTokens     int
	AIMaxRetries    int

	// External terminology APIs
	RxNormBaseURL   string // empty selects the public RxNav endpoint
	FDABaseURL      string // empty selects the public openFDA endpoint
	FDAResultLimit  int
	ExternalTimeout time.Duration
	MaxRetries      int

	// Cache
	CacheEnabled bool
	CacheTTL     time.Duration
	CacheMaxSize int

	// Calculation
	PRNDefaultMaxPerDay int    // doses per day assumed for uncapped PRN SIGs
	StrengthPolicy      string // warn or strict

	// Rate limiting
	RateLimitEnabled bool
	RateLimitPerMin  int
	RateLimitBurst   int

	// Tracing
	TracingEnabled bool
	OTLPEndpoint   string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT_MS", 15*time.Second),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  os.Getenv("ANTHROPIC_MODEL"),
		AITemperature:   getEnvFloat("AI_TEMPERATURE", 0.1),
		AIMaxTokens:     getEnvInt("AI_MAX_TOKENS", 2048),
		AIMaxRetries:    getEnvInt("AI_MAX_RETRIES", 2),

		RxNormBaseURL:   os.Getenv("RXNORM_BASE_URL"),
		FDABaseURL:      os.Getenv("FDA_BASE_URL"),
		FDAResultLimit:  getEnvInt("FDA_RESULT_LIMIT", 100),
		ExternalTimeout: getEnvDuration("EXTERNAL_TIMEOUT_MS", 10*time.Second),
		MaxRetries:      getEnvInt("MAX_RETRIES", 3),

		CacheEnabled: getEnvBool("CACHE_ENABLED", true),
		CacheTTL:     getEnvDuration("CACHE_TTL_MS", time.Hour),
		CacheMaxSize: getEnvInt("CACHE_MAX_SIZE", 1024),

		PRNDefaultMaxPerDay: getEnvInt("PRN_DEFAULT_MAX_PER_DAY", 4),
		StrengthPolicy:      getEnv("STRENGTH_POLICY", "warn"),

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MIN", 60),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 10),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	switch cfg.StrengthPolicy {
	case "warn", "strict":
	default:
		return nil, fmt.Errorf("STRENGTH_POLICY must be warn or strict, got %q", cfg.StrengthPolicy)
	}
	if cfg.PRNDefaultMaxPerDay < 1 || cfg.PRNDefaultMaxPerDay > 24 {
		return nil, fmt.Errorf("PRN_DEFAULT_MAX_PER_DAY must be between 1 and 24, got %d", cfg.PRNDefaultMaxPerDay)
	}
	if cfg.RateLimitPerMin < 1 || cfg.RateLimitPerMin > 10000 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MIN must be between 1 and 10000, got %d", cfg.RateLimitPerMin)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
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
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration reads a millisecond count.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// ListenAddr returns the address the HTTP server binds.
func (c *Config) ListenAddr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
