// Package config provides configuration management for the ATS optimizer API.
// It handles loading configuration from environment variables with sensible
// defaults and validates the configuration to ensure the application starts
// safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 3001)
//   - ENVIRONMENT: "development" or "production" (default: development)
//   - LOG_LEVEL: Logging level (default: info)
//   - FRONTEND_BASE_URL: Base URL used in emails and upgrade links
//     (default: http://localhost:3000)
//
// Database Configuration:
//   - DATABASE_URL: PostgreSQL connection string (required)
//
// Redis Configuration (optional; enables the shared rate-limit store):
//   - REDIS_ADDRESS: Redis server address
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Security Configuration:
//   - JWT_SECRET: Session token signing secret (required, minimum 32 characters)
//
// Rate Limiting:
//   - RATE_LIMIT_ENABLED: Enable rate limiting (default: true)
//
// Analysis Provider:
//   - OPENAI_API_KEY: API key for the analysis provider
//   - OPENAI_MODEL: Model name (default: gpt-4o-mini)
//
// Email (optional; reset links are logged when SMTP is not configured):
//   - SMTP_ENABLED, SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASS,
//     SMTP_FROM, SMTP_FROM_NAME
package config

import (
	"os"
	"strconv"

	"ats-optimizer/internal/common/errors"
)

// Config holds all configuration values for the application. All string
// fields correspond to environment variables that can be set to override the
// default values.
//
// The configuration is loaded using the Load() function and should be
// validated using the Validate() method before use.
type Config struct {
	// Application settings
	Port            string // Server port number
	Environment     string // "development" or "production"
	LogLevel        string // Logging level (debug, info, warn, error)
	FrontendBaseURL string // Base URL for reset links and upgrade hints

	// Database configuration
	DatabaseURL string // PostgreSQL connection string

	// Redis configuration for the shared rate-limit store
	RedisAddress  string // Redis server address (host:port), empty disables Redis
	RedisPassword string // Redis authentication password
	RedisDB       string // Redis database number (0-15)
	RedisPoolSize string // Redis connection pool size

	// Rate limiting configuration
	RateLimitEnabled bool // Whether rate limiting is enabled

	// Session token configuration
	JWTSecret string // Secret key for session token signing (required)

	// Analysis provider configuration
	OpenAIAPIKey string // API key for the analysis provider
	OpenAIModel  string // Chat model used for analysis

	// SMTP configuration for password reset emails
	SMTPEnabled  bool
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SMTPFromName string
}

// Load creates a new Config instance with values loaded from environment
// variables. If an environment variable is not set, the corresponding default
// value is used.
//
// This function does not validate the configuration - call Validate() on the
// returned Config to ensure all required values are properly set and valid.
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "3001"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		FrontendBaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),

		JWTSecret: getEnv("JWT_SECRET", ""),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		SMTPEnabled:  getBoolEnv("SMTP_ENABLED", false),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPass:     getEnv("SMTP_PASS", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "ATS Optimizer"),
	}
}

// IsProduction reports whether the application runs in production mode.
// Session cookies are only marked Secure in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv retrieves an environment variable value or returns a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or returns a default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate performs comprehensive validation on the configuration to ensure
// all required fields are present and all values are valid.
//
// The process must refuse to start rather than run with a weak or implicit
// signing secret, so JWT_SECRET is checked here and never defaulted.
//
// Returns:
//   - error: A descriptive error if validation fails, nil if configuration is valid
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.ConfigError("JWT_SECRET environment variable is required")
	}

	if len(c.JWTSecret) < 32 {
		return errors.ConfigError("JWT_SECRET must be at least 32 characters long for security")
	}

	if c.DatabaseURL == "" {
		return errors.ConfigError("DATABASE_URL environment variable is required")
	}

	if c.OpenAIAPIKey == "" {
		return errors.ConfigError("OPENAI_API_KEY environment variable is required")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return errors.ConfigError("PORT must be a valid port number between 1 and 65535")
	}

	switch c.Environment {
	case "development", "production":
	default:
		return errors.ConfigError("ENVIRONMENT must be 'development' or 'production'")
	}

	// Validate Redis config if provided
	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return errors.ConfigError("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return errors.ConfigError("REDIS_POOL_SIZE must be a positive number")
		}
	}

	if c.SMTPEnabled {
		if c.SMTPHost == "" {
			return errors.ConfigError("SMTP_HOST is required when SMTP_ENABLED is true")
		}
		if c.SMTPFrom == "" && c.SMTPUser == "" {
			return errors.ConfigError("SMTP_FROM or SMTP_USER is required when SMTP_ENABLED is true")
		}
		if port, err := strconv.Atoi(c.SMTPPort); err != nil || port < 1 || port > 65535 {
			return errors.ConfigError("SMTP_PORT must be a valid port number")
		}
	}

	return nil
}
