package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Authentication, session and SSO configuration
//   - database.go: Database and Redis configuration
//   - http.go: HTTP server configuration
//   - client.go: CLI client configuration
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Authentication configuration
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Notes API configuration
	Notes NotesConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Auth.Sanitize()
	c.Notes.Sanitize()
	c.Observability.Sanitize()

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// NotesConfig controls paging limits for the notes API.
type NotesConfig struct {
	DefaultPageSize int `env:"NOTES_DEFAULT_PAGE_SIZE" envDefault:"50"`
	MaxPageSize     int `env:"NOTES_MAX_PAGE_SIZE"     envDefault:"200"`
}

// Sanitize keeps page sizes positive and ordered.
func (n *NotesConfig) Sanitize() {
	if n.MaxPageSize < 1 {
		n.MaxPageSize = 200
	}
	if n.DefaultPageSize < 1 {
		n.DefaultPageSize = 50
	}
	if n.DefaultPageSize > n.MaxPageSize {
		n.DefaultPageSize = n.MaxPageSize
	}
}
