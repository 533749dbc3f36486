package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/target/notekeeper/config"
)

// InitLogger initializes the structured logger at the given level
// (debug, info, warn, error; anything else means info).
func InitLogger(level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLogLevel(level),
	}))
	slog.SetDefault(logger)
	return logger
}

// ParseLogLevel maps a LOG_LEVEL value to a slog level.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	if err := loadDotEnv(); err != nil {
		return config.AppConfig{}, err
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// LoadClientConfig loads the CLI configuration from environment variables.
func LoadClientConfig() (config.ClientConfig, error) {
	if err := loadDotEnv(); err != nil {
		return config.ClientConfig{}, err
	}

	var cfg config.ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse client config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateServerConfig rejects configurations the server cannot start with.
func ValidateServerConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("server config is required")
	}
	if cfg.Auth.JWTSecret == "" && !cfg.IsDev {
		return errors.New("AUTH_JWT_SECRET is required outside development")
	}
	if cfg.Notes.DefaultPageSize > cfg.Notes.MaxPageSize {
		return fmt.Errorf("NOTES_DEFAULT_PAGE_SIZE (%d) exceeds NOTES_MAX_PAGE_SIZE (%d)",
			cfg.Notes.DefaultPageSize, cfg.Notes.MaxPageSize)
	}
	return nil
}

// loadDotEnv loads a .env file if one exists (development).
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return fmt.Errorf("load .env file: %w", err)
		}
	}
	return nil
}
